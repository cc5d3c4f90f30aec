package models

// User is the minimal identity kept alongside the tokens.
type User struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// TokenPair is an access/refresh pair as returned by the token endpoints.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Complete reports whether both tokens are present.
func (p TokenPair) Complete() bool {
	return p.Access != "" && p.Refresh != ""
}

// Session is the authenticated user's credential bundle.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// Valid reports whether the session is fully present: both tokens and a username.
func (s Session) Valid() bool {
	return s.AccessToken != "" && s.RefreshToken != "" && s.User.Username != ""
}

// Registration is the response of the register endpoint, which signs the user in directly.
type Registration struct {
	Access   string `json:"access"`
	Refresh  string `json:"refresh"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Tokens returns the token half of the registration.
func (r Registration) Tokens() TokenPair {
	return TokenPair{Access: r.Access, Refresh: r.Refresh}
}

// Identity returns the user half of the registration.
func (r Registration) Identity() User {
	return User{Username: r.Username, Email: r.Email}
}

// Profile holds the per-user preferences sent on registration.
type Profile struct {
	PhoneNumber string `json:"phone_number"`
	Gender      string `json:"gender"`
	Address     string `json:"address"`
	Currency    string `json:"currency"`
	Theme       string `json:"theme"`
}

// RegisterRequest is the body posted to the register endpoint.
type RegisterRequest struct {
	Username      string  `json:"username"`
	Email         string  `json:"email"`
	Password      string  `json:"password"`
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	HouseholdName string  `json:"household_name"`
	Profile       Profile `json:"profile"`
}

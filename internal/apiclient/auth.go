package apiclient

import (
	"context"
	"net/http"

	"github.com/AneeshNi47/walletfit-ui/internal/models"
)

// Auth endpoints, relative to the base URL.
const (
	PathToken    = "users/token/"
	PathRegister = "users/register/"
	PathLogout   = "users/logout/"
	PathRefresh  = "token/refresh/"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshBody struct {
	Refresh string `json:"refresh"`
}

type accessBody struct {
	Access string `json:"access"`
}

// ObtainToken exchanges a username or email and password for a token pair.
func (c *Client) ObtainToken(ctx context.Context, username, password string) (models.TokenPair, error) {
	var pair models.TokenPair
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        PathToken,
		body:        credentials{Username: username, Password: password},
		noBearer:    true,
		noIntercept: true,
	}, &pair)
	return pair, err
}

// Register creates an account. The response already carries a token pair.
func (c *Client) Register(ctx context.Context, in models.RegisterRequest) (models.Registration, error) {
	var reg models.Registration
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        PathRegister,
		body:        in,
		noBearer:    true,
		noIntercept: true,
	}, &reg)
	return reg, err
}

// RefreshAccess exchanges a refresh token for a new access token.
func (c *Client) RefreshAccess(ctx context.Context, refresh string) (string, error) {
	var out accessBody
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     PathRefresh,
		body:     refreshBody{Refresh: refresh},
		noBearer: true,
	}, &out)
	return out.Access, err
}

// RevokeRefresh invalidates a refresh token, authenticating with access.
func (c *Client) RevokeRefresh(ctx context.Context, access, refresh string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   PathLogout,
		body:   refreshBody{Refresh: refresh},
		bearer: access,
	}, nil)
}

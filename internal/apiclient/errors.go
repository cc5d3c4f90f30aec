package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrAuthExpired matches a 401/403 received while a session existed.
	ErrAuthExpired = errors.New("session expired")
	// ErrUnauthorized matches a 401/403 received without a session, such as a rejected login.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation matches a 4xx response carrying field errors.
	ErrValidation = errors.New("validation failed")
	// ErrRequest matches any other 4xx response.
	ErrRequest = errors.New("request rejected")
	// ErrServer matches a 5xx response.
	ErrServer = errors.New("server error")
	// ErrNetwork matches a request that got no response.
	ErrNetwork = errors.New("network error")
)

// messageKeys carry a general message rather than a field error.
var messageKeys = map[string]bool{
	"detail":           true,
	"message":          true,
	"error":            true,
	"non_field_errors": true,
	"code":             true,
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Method  string
	Path    string
	Message string
	// Fields maps a field name (dotted for nested objects) to its first error message.
	Fields map[string]string
	Body   []byte

	kind error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + e.Fields[k]
		}
		msg = strings.TrimSpace(msg + " " + strings.Join(parts, "; "))
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

// Is lets errors.Is match the response class sentinels.
func (e *APIError) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

// Kind returns the sentinel this error matches.
func (e *APIError) Kind() error { return e.kind }

// FieldErrors returns the field errors of err if it is an APIError, else nil.
func FieldErrors(err error) map[string]string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Fields
	}
	return nil
}

// StatusCode returns the HTTP status of err if it is an APIError, else 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// newAPIError classifies a response. sessionPresent decides whether a
// 401/403 is an expired session or a plain rejection.
func newAPIError(method, path string, status int, body []byte, sessionPresent bool) *APIError {
	e := &APIError{Status: status, Method: method, Path: path, Body: body}
	e.Message, e.Fields = parseErrorBody(body)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if sessionPresent {
			e.kind = ErrAuthExpired
		} else {
			e.kind = ErrUnauthorized
		}
	case status >= 500:
		e.kind = ErrServer
	case status >= 400 && len(e.Fields) > 0:
		e.kind = ErrValidation
	default:
		e.kind = ErrRequest
	}
	return e
}

// parseErrorBody extracts a general message and flattened field errors from
// a JSON error payload. Non-JSON bodies yield neither.
func parseErrorBody(body []byte) (string, map[string]string) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		var list []any
		if err := json.Unmarshal(body, &list); err == nil {
			return firstMessage(list), nil
		}
		return "", nil
	}

	var message string
	fields := map[string]string{}
	for key, value := range payload {
		if messageKeys[key] {
			if message == "" {
				message = firstMessage(value)
			}
			continue
		}
		flatten(fields, key, value)
	}
	if len(fields) == 0 {
		fields = nil
	}
	return message, fields
}

func flatten(out map[string]string, prefix string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for k, inner := range v {
			flatten(out, prefix+"."+k, inner)
		}
	default:
		if msg := firstMessage(v); msg != "" {
			out[prefix] = msg
		}
	}
}

func firstMessage(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if msg := firstMessage(item); msg != "" {
				return msg
			}
		}
	case map[string]any:
		// {"message": "..."} or {"string": "...", "code": "..."} entries
		for _, key := range []string{"message", "string", "detail"} {
			if s, ok := v[key].(string); ok {
				return s
			}
		}
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
	return ""
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AneeshNi47/walletfit-ui/internal/models"
)

// DefaultKey is the well-known key the session record is stored under.
const DefaultKey = "auth"

// ErrNotFound is returned by Load when no session record exists.
// Absence of the record is the logged-out state.
var ErrNotFound = errors.New("no stored session")

// ErrCorrupt is returned by Load when the stored record cannot be decoded.
var ErrCorrupt = errors.New("stored session is corrupt")

// CredentialStore persists the single session record.
type CredentialStore interface {
	// Load returns the stored session or ErrNotFound.
	Load(ctx context.Context) (*models.Session, error)
	// Save replaces the stored session.
	Save(ctx context.Context, s *models.Session) error
	// Clear removes the stored session. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

func encodeSession(s *models.Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	return json.Marshal(s)
}

func decodeSession(data []byte) (*models.Session, error) {
	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return &s, nil
}

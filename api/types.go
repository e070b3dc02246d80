package api

import (
	"context"
	"net/http"

	"mural-api/domain"
)

const postBodyMaxSize = 64 * 1024 // 64 KiB

// Boards is the board engine surface handlers consume.
type Boards interface {
	Board(ctx context.Context, scopeTag string) ([]domain.Column, error)
	AddCard(ctx context.Context, scopeTag, columnID, content string) (domain.Card, error)
	EditCard(ctx context.Context, scopeTag, cardID, columnID, content string) error
	DeleteCard(ctx context.Context, scopeTag, cardID, columnID string) error
	ApplyGestures(ctx context.Context, scopeTag string, gestures []domain.Gesture) error
}

// Accounts abstracts user persistence for the auth endpoints.
type Accounts interface {
	InsertUser(ctx context.Context, user domain.User) (domain.User, error)
	FetchUser(ctx context.Context, id string) (domain.User, error)
	FetchUserByLogin(ctx context.Context, login string) (domain.User, error)
	FetchUserByEmail(ctx context.Context, email string) (domain.User, error)
}

// Identity is the caller extracted from a verified session token.
type Identity struct {
	UserID     string
	Name       string
	Department string
}

// Sessions is implemented by types able to verify and issue session tokens.
type Sessions interface {
	IdentityFromHeader(http.Header) (Identity, error)
	IssueSession(user domain.User) (string, error)
}

// Deduper prevents reprocessing of duplicate card submissions.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}

// AccountConfig tunes registration validation.
type AccountConfig struct {
	// EmailDomain restricts registration to one corporate domain when set,
	// e.g. "example.org".
	EmailDomain string
	// MinPasswordLen defaults to 6.
	MinPasswordLen int
}

type boardResponse struct {
	ScopeTag string          `json:"scopeTag"`
	Columns  []domain.Column `json:"columns"`
}

type errorResponse struct {
	Error string `json:"error"`
}

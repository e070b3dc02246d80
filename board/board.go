// Package board owns the in-memory mirror of a persisted kanban board: value
// snapshots of columns and cards, the drag-gesture reconciler and the
// position write fan-out that keeps the store in step with committed moves.
package board

import (
	"context"

	"mural-api/domain"
)

// Store is the slice of persistence the board core consumes.
type Store interface {
	FetchColumns(ctx context.Context) ([]domain.Column, error)
	FetchCards(ctx context.Context, scopeTag string) ([]domain.Card, error)
	InsertCard(ctx context.Context, card domain.Card) (domain.Card, error)
	UpdateCardContent(ctx context.Context, scopeTag, id, content string) error
	UpdateCardPosition(ctx context.Context, scopeTag, id, columnID string, order int) error
	DeleteCard(ctx context.Context, scopeTag, id string) error
}

// EventSink receives committed board mutations for downstream consumers. A
// nil sink disables publishing.
type EventSink interface {
	EnqueueEvents(ctx context.Context, scopeTag string, events []domain.Event) error
}

// ValidationError marks input rejected before any store call.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

var (
	ErrEmptyContent  = ValidationError("card content is empty")
	ErrUnknownColumn = ValidationError("unknown column")
	ErrUnknownCard   = ValidationError("unknown card")
	ErrBadGesture    = ValidationError("unknown gesture type")
)

package board

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"mural-api/domain"
)

const eventEnqueueTimeout = 15 * time.Second

// Engine owns the board for one scope tag: the current snapshot plus the
// drag state. A mutex serializes every event so each transition runs to
// completion before the next one starts.
//
// Direct edits (add, edit, delete) are strict: the snapshot changes only
// after the confirming write succeeds and store errors propagate. Drag
// commits are optimistic: the snapshot changes first and position writes are
// fire-and-forget through the Syncer.
type Engine struct {
	mu       sync.Mutex
	scopeTag string
	store    Store
	events   EventSink
	syncer   Syncer
	logger   *log.Logger

	cols     Snapshot
	activeID string
	loaded   bool
}

func newEngine(scopeTag string, store Store, events EventSink, syncer Syncer, logger *log.Logger) *Engine {
	return &Engine{
		scopeTag: scopeTag,
		store:    store,
		events:   events,
		syncer:   syncer,
		logger:   logger,
	}
}

func (e *Engine) ensureLoaded(ctx context.Context) error {
	if e.loaded {
		return nil
	}
	cols, err := Load(ctx, e.store, e.scopeTag)
	if err != nil {
		return err
	}
	e.cols = cols
	e.loaded = true
	return nil
}

// Board returns a copy of the current snapshot, loading it on first use.
func (e *Engine) Board(ctx context.Context) ([]domain.Column, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return e.cols.Clone(), nil
}

// Refresh replaces the snapshot wholesale from the store. Used on scope-tag
// mount and as the reconciliation hook after failed optimistic writes.
func (e *Engine) Refresh(ctx context.Context) error {
	cols, err := Load(ctx, e.store, e.scopeTag)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.cols = cols
	e.loaded = true
	e.mu.Unlock()
	return nil
}

// AddCard validates, persists and appends a new card to the target column.
// The insert happens first so the generated id can be folded into the new
// snapshot.
func (e *Engine) AddCard(ctx context.Context, columnID, content string) (domain.Card, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Card{}, ErrEmptyContent
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoaded(ctx); err != nil {
		return domain.Card{}, err
	}
	ci := e.cols.columnIndex(columnID)
	if ci < 0 {
		return domain.Card{}, ErrUnknownColumn
	}

	created, err := e.store.InsertCard(ctx, domain.Card{
		Content:  content,
		ColumnID: columnID,
		Order:    len(e.cols[ci].Cards),
		ScopeTag: e.scopeTag,
	})
	if err != nil {
		return domain.Card{}, err
	}

	next := e.cols.Clone()
	col := &next[ci]
	col.Cards = insertAt(col.Cards, len(col.Cards), created)
	e.cols = next

	e.emit(created.ID, domain.EventCardCreated, created)
	return created, nil
}

// EditCard persists new content for a card and then rewrites it in the
// snapshot.
func (e *Engine) EditCard(ctx context.Context, cardID, columnID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyContent
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoaded(ctx); err != nil {
		return err
	}
	ci := e.cols.columnIndex(columnID)
	if ci < 0 {
		return ErrUnknownColumn
	}
	if cardIndex(e.cols[ci].Cards, cardID) < 0 {
		return ErrUnknownCard
	}

	if err := e.store.UpdateCardContent(ctx, e.scopeTag, cardID, content); err != nil {
		return err
	}

	next := e.cols.Clone()
	col := &next[ci]
	col.Cards[cardIndex(col.Cards, cardID)].Content = content
	e.cols = next

	e.emit(cardID, domain.EventCardUpdated, map[string]string{"content": content})
	return nil
}

// DeleteCard persists the removal, drops the card from the snapshot and
// renumbers the column back to a contiguous zero-based order. The renumber
// writes are best effort: the removal is already applied and is not rolled
// back when one of them fails.
func (e *Engine) DeleteCard(ctx context.Context, cardID, columnID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoaded(ctx); err != nil {
		return err
	}
	ci := e.cols.columnIndex(columnID)
	if ci < 0 {
		return ErrUnknownColumn
	}
	ai := cardIndex(e.cols[ci].Cards, cardID)
	if ai < 0 {
		return ErrUnknownCard
	}

	if err := e.store.DeleteCard(ctx, e.scopeTag, cardID); err != nil {
		return err
	}

	next := e.cols.Clone()
	col := &next[ci]
	col.Cards = removeAt(col.Cards, ai)
	renumber(col.Cards)
	e.cols = next

	for _, card := range col.Cards {
		if err := e.store.UpdateCardPosition(ctx, e.scopeTag, card.ID, card.ColumnID, card.Order); err != nil {
			e.logger.WithFields(log.Fields{
				"scope_tag": e.scopeTag,
				"card_id":   card.ID,
			}).Errorf("renumber after delete failed: %v", err)
		}
	}

	e.emit(cardID, domain.EventCardDeleted, nil)
	return nil
}

// Apply runs a batch of drag gestures in order. Previews only reshape the
// snapshot; a drag-end commits the placement and hands the affected cards to
// the syncer. Gestures referencing unresolvable ids are benign no-ops.
func (e *Engine) Apply(ctx context.Context, gestures []domain.Gesture) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoaded(ctx); err != nil {
		return err
	}

	for _, g := range gestures {
		switch g.Type {
		case domain.GestureStart:
			e.activeID = g.ActiveID
		case domain.GestureOver:
			if next, ok := previewOver(e.cols, g.ActiveID, g.OverID); ok {
				e.cols = next
			}
		case domain.GestureEnd:
			e.activeID = ""
			if g.OverID == "" {
				continue
			}
			next, persist, ok := commitDrag(e.cols, g.ActiveID, g.OverID)
			if !ok {
				continue
			}
			e.cols = next
			e.syncer.PersistPositions(e.scopeTag, persist)
			e.emit(g.ActiveID, domain.EventCardsMoved, map[string]any{"cards": persist})
		default:
			return ErrBadGesture
		}
	}
	return nil
}

// emit publishes a board event without blocking the caller. Publish failures
// only log; events are a downstream feed, not part of the commit.
func (e *Engine) emit(entityID, eventType string, data any) {
	if e.events == nil {
		return
	}
	ev := domain.Event{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		EntityType: "card",
		Type:       eventType,
		Time:       time.Now().UnixNano(),
	}
	if data != nil {
		payload, err := sonic.Marshal(data)
		if err != nil {
			e.logger.Errorf("marshal %s event: %v", eventType, err)
			return
		}
		ev.Data = payload
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventEnqueueTimeout)
		defer cancel()
		if err := e.events.EnqueueEvents(ctx, e.scopeTag, []domain.Event{ev}); err != nil {
			e.logger.Errorf("enqueue %s event: %v", eventType, err)
		}
	}()
}

// Engines hands out one Engine per scope tag, created on demand. It also
// implements the per-operation surface the HTTP layer consumes.
type Engines struct {
	mu      sync.Mutex
	store   Store
	events  EventSink
	syncer  Syncer
	logger  *log.Logger
	engines map[string]*Engine
}

// NewEngines creates the registry. events may be nil.
func NewEngines(store Store, events EventSink, syncer Syncer, logger *log.Logger) *Engines {
	if store == nil {
		panic("board.NewEngines: store is nil")
	}
	if syncer == nil {
		panic("board.NewEngines: syncer is nil")
	}
	if logger == nil {
		panic("board.NewEngines: logger is nil")
	}
	return &Engines{
		store:   store,
		events:  events,
		syncer:  syncer,
		logger:  logger,
		engines: make(map[string]*Engine),
	}
}

// Get returns the engine owning the given scope tag.
func (r *Engines) Get(scopeTag string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[scopeTag]; ok {
		return e
	}
	e := newEngine(scopeTag, r.store, r.events, r.syncer, r.logger)
	r.engines[scopeTag] = e
	return e
}

func (r *Engines) Board(ctx context.Context, scopeTag string) ([]domain.Column, error) {
	return r.Get(scopeTag).Board(ctx)
}

func (r *Engines) AddCard(ctx context.Context, scopeTag, columnID, content string) (domain.Card, error) {
	return r.Get(scopeTag).AddCard(ctx, columnID, content)
}

func (r *Engines) EditCard(ctx context.Context, scopeTag, cardID, columnID, content string) error {
	return r.Get(scopeTag).EditCard(ctx, cardID, columnID, content)
}

func (r *Engines) DeleteCard(ctx context.Context, scopeTag, cardID, columnID string) error {
	return r.Get(scopeTag).DeleteCard(ctx, cardID, columnID)
}

func (r *Engines) ApplyGestures(ctx context.Context, scopeTag string, gestures []domain.Gesture) error {
	return r.Get(scopeTag).Apply(ctx, gestures)
}

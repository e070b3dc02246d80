package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"mural-api/domain"
)

type fakeQueue struct {
	mu       sync.Mutex
	inFlight int
	max      int
	count    int
	failAt   int
	sleep    time.Duration
	payloads []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{failAt: -1, sleep: 1 * time.Millisecond}
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.mu.Lock()
	idx := f.count
	f.count++
	f.inFlight++
	if f.inFlight > f.max {
		f.max = f.inFlight
	}
	f.payloads = append(f.payloads, content)
	f.mu.Unlock()

	if f.sleep > 0 {
		select {
		case <-time.After(f.sleep):
		case <-ctx.Done():
			f.mu.Lock()
			f.inFlight--
			f.mu.Unlock()
			return azqueue.EnqueueMessagesResponse{}, ctx.Err()
		}
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.failAt >= 0 && idx == f.failAt {
		return azqueue.EnqueueMessagesResponse{}, errors.New("enqueue failure")
	}

	return azqueue.EnqueueMessagesResponse{}, nil
}

func testEvents(n int) []domain.Event {
	events := make([]domain.Event, n)
	for i := range events {
		events[i] = domain.Event{ID: "ev", EntityType: "card", Type: domain.EventCardCreated}
	}
	return events
}

func TestEnqueueEventsUsesConcurrency(t *testing.T) {
	fq := newFakeQueue()
	store := &Storage{
		eventQueue:       fq,
		queueConcurrency: 4,
	}

	if err := store.EnqueueEvents(context.Background(), "ops", testEvents(8)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if fq.max < 2 {
		t.Fatalf("expected concurrent sends, max in flight: %d", fq.max)
	}
	if fq.count != 8 {
		t.Fatalf("expected 8 sends, got %d", fq.count)
	}
}

func TestEnqueueEventsWrapsScopeTag(t *testing.T) {
	fq := newFakeQueue()
	store := &Storage{
		eventQueue:       fq,
		queueConcurrency: 1,
	}

	if err := store.EnqueueEvents(context.Background(), "ops", testEvents(1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var env domain.EventEnvelope
	if err := json.Unmarshal([]byte(fq.payloads[0]), &env); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}
	if env.ScopeTag != "ops" {
		t.Fatalf("scope tag = %q, want ops", env.ScopeTag)
	}
	if env.Event.Type != domain.EventCardCreated {
		t.Fatalf("event type = %q", env.Event.Type)
	}
}

func TestEnqueueEventsPropagatesErrors(t *testing.T) {
	fq := newFakeQueue()
	fq.failAt = 2
	store := &Storage{
		eventQueue:       fq,
		queueConcurrency: 3,
	}

	if err := store.EnqueueEvents(context.Background(), "ops", testEvents(6)); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnqueueEventsSequentialWhenConfigured(t *testing.T) {
	fq := newFakeQueue()
	store := &Storage{
		eventQueue:       fq,
		queueConcurrency: 1,
	}

	if err := store.EnqueueEvents(context.Background(), "ops", testEvents(5)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if fq.max != 1 {
		t.Fatalf("expected sequential sends, observed max in flight: %d", fq.max)
	}
}

func TestEnqueueEventsEmptyBatch(t *testing.T) {
	fq := newFakeQueue()
	store := &Storage{eventQueue: fq, queueConcurrency: 1}

	if err := store.EnqueueEvents(context.Background(), "ops", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if fq.count != 0 {
		t.Fatalf("empty batch sent %d messages", fq.count)
	}
}

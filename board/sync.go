package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"mural-api/domain"
)

// Syncer persists committed card positions. Implementations are
// fire-and-forget: the in-memory snapshot is never rolled back on failure.
type Syncer interface {
	PersistPositions(scopeTag string, cards []domain.Card)
}

// PositionWriter is the single store operation the syncer needs.
type PositionWriter interface {
	UpdateCardPosition(ctx context.Context, scopeTag, id, columnID string, order int) error
}

// SyncerConfig tunes the write fan-out worker pool.
type SyncerConfig struct {
	Workers        int
	Buffer         int
	WriteTimeout   time.Duration
	HandoffTimeout time.Duration
	// OnError fires once per failed batch with the scope tag and first
	// error, so callers can schedule a reconciling re-fetch.
	OnError func(scopeTag string, err error)
}

type positionJob struct {
	scopeTag string
	cards    []domain.Card
}

// WriteSyncer dispatches one position update per card through a bounded
// worker pool. Per-card failures are independent: successes are never rolled
// back and failures are logged, not retried.
type WriteSyncer struct {
	writer  PositionWriter
	logger  *log.Logger
	cfg     SyncerConfig
	jobs    chan positionJob
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool

	onErrMu sync.RWMutex
	onError func(scopeTag string, err error)
}

// NewSyncer starts the worker pool. Zero config fields get defaults.
func NewSyncer(writer PositionWriter, logger *log.Logger, cfg SyncerConfig) *WriteSyncer {
	if writer == nil {
		panic("board.NewSyncer: writer is nil")
	}
	if logger == nil {
		panic("board.NewSyncer: logger is nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.HandoffTimeout < 0 {
		cfg.HandoffTimeout = 0
	}

	s := &WriteSyncer{
		writer:  writer,
		logger:  logger,
		cfg:     cfg,
		jobs:    make(chan positionJob, cfg.Buffer),
		onError: cfg.OnError,
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// SetOnError installs the failed-batch hook. It is safe to call after the
// workers have started, so the hook can close over state constructed later
// than the syncer itself.
func (s *WriteSyncer) SetOnError(fn func(scopeTag string, err error)) {
	s.onErrMu.Lock()
	s.onError = fn
	s.onErrMu.Unlock()
}

// PersistPositions hands the batch to the pool without blocking the caller.
// When the buffer is saturated past the handoff timeout the writes run
// inline so a commit is never dropped.
func (s *WriteSyncer) PersistPositions(scopeTag string, cards []domain.Card) {
	if len(cards) == 0 {
		return
	}
	batch := make([]domain.Card, len(cards))
	copy(batch, cards)
	job := positionJob{scopeTag: scopeTag, cards: batch}

	select {
	case s.jobs <- job:
		return
	default:
	}

	if s.cfg.HandoffTimeout > 0 {
		timer := time.NewTimer(s.cfg.HandoffTimeout)
		defer timer.Stop()
		select {
		case s.jobs <- job:
			return
		case <-timer.C:
		}
	}

	s.logger.Warn("position sync buffer saturated; writing inline")
	s.run(job)
}

// Close stops the workers after draining queued jobs. Intended for tests and
// shutdown.
func (s *WriteSyncer) Close() {
	s.closeMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.closeMu.Unlock()
	s.wg.Wait()
}

func (s *WriteSyncer) worker() {
	defer s.wg.Done()
	for job := range s.jobs {
		s.run(job)
	}
}

func (s *WriteSyncer) run(job positionJob) {
	var firstErr error
	for _, card := range job.cards {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		err := s.writer.UpdateCardPosition(ctx, job.scopeTag, card.ID, card.ColumnID, card.Order)
		cancel()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.logger.WithFields(log.Fields{
				"scope_tag": job.scopeTag,
				"card_id":   card.ID,
				"column_id": card.ColumnID,
				"order":     card.Order,
			}).Errorf("persist position failed: %v", err)
		}
	}
	if firstErr != nil {
		s.onErrMu.RLock()
		onError := s.onError
		s.onErrMu.RUnlock()
		if onError != nil {
			onError(job.scopeTag, firstErr)
		}
	}
}

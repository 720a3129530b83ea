package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
)

// Refresher forces a fresh fetch of canonical server state after a conflict.
type Refresher func(ctx context.Context) error

// Mutation describes one optimistic change. Only Op and Remote are required.
type Mutation[T any] struct {
	// Op names the operation in errors and notices ("move task").
	Op string
	// Key coalesces mutations of the same resource ("task/42/stage"). Empty
	// disables coalescing.
	Key string

	Validate func() error
	// Snapshot captures the state Apply is about to change and returns the
	// closure that restores it.
	Snapshot func() (restore func())
	Apply    func()
	Remote   func(ctx context.Context) (T, error)
	// Reconcile installs the canonical server result.
	Reconcile func(T)
	Refresh   Refresher

	// Success is the notice text for a confirmed result. Empty means
	// "<Op> succeeded".
	Success string
}

type outcome int

const (
	pending outcome = iota
	succeeded
	failed
)

// flight tracks every outstanding mutation of one key.
type flight struct {
	latest      uint64
	latestState outcome
	inFlight    int
	baseline    func()
	fallback    func()
	fallbackSeq uint64
}

// Pipeline runs optimistic mutations: validate, snapshot, apply locally, call
// the server, then reconcile or roll back. Responses for a key only move local
// state if they come from the newest mutation of that key, so out of order
// responses never leave a stale value behind.
type Pipeline struct {
	mu       sync.Mutex
	flights  map[string]*flight
	notifier Notifier
	logger   *slog.Logger
}

func NewPipeline(notifier Notifier, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	return &Pipeline{
		flights:  make(map[string]*flight),
		notifier: notifier,
		logger:   logger,
	}
}

// InFlight reports how many mutations of key are awaiting a response.
func (p *Pipeline) InFlight(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.flights[key]; ok {
		return f.inFlight
	}
	return 0
}

// Execute runs m through p and returns the server result or a typed error
// from package board.
func Execute[T any](ctx context.Context, p *Pipeline, m Mutation[T]) (T, error) {
	var zero T
	if m.Remote == nil {
		return zero, fmt.Errorf("%s: mutation has no remote call", m.Op)
	}

	if m.Validate != nil {
		if err := m.Validate(); err != nil {
			err = asValidation(m.Op, err)
			p.fail(m.Op, err)
			return zero, err
		}
	}

	seq, restore := p.begin(m.Key, m.Snapshot, m.Apply)

	res, err := m.Remote(ctx)
	if err != nil {
		err = classify(m.Op, err)
		p.settleFailure(m.Key, seq, restore)
		p.logger.Warn("mutation rolled back", "op", m.Op, "key", m.Key, "seq", seq, "error", err)
		if errors.Is(err, board.ErrConflict) && m.Refresh != nil {
			if rerr := m.Refresh(ctx); rerr != nil {
				p.logger.Warn("refresh after conflict failed", "op", m.Op, "error", rerr)
			}
		}
		p.fail(m.Op, err)
		return zero, err
	}

	var reconcile func()
	switch {
	case m.Reconcile != nil:
		reconcile = func() { m.Reconcile(res) }
	case m.Key != "":
		// The confirmed state of a keyed mutation without Reconcile is what
		// Apply produced; it may be replayed as the fallback.
		reconcile = m.Apply
	}
	if p.settleSuccess(m.Key, seq, reconcile) {
		msg := m.Success
		if msg == "" {
			msg = m.Op + " succeeded"
		}
		p.notify(Notice{Level: NoticeInfo, Operation: m.Op, Message: msg})
	}
	return res, nil
}

// begin applies the mutation locally. Unkeyed mutations get their restore
// closure back directly; keyed ones share the baseline of their flight.
func (p *Pipeline) begin(key string, snapshot func() func(), apply func()) (uint64, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if key == "" {
		var restore func()
		if snapshot != nil {
			restore = snapshot()
		}
		if apply != nil {
			apply()
		}
		return 0, restore
	}

	f, ok := p.flights[key]
	if !ok {
		f = &flight{}
		p.flights[key] = f
		if snapshot != nil {
			f.baseline = snapshot()
		}
	}
	f.latest++
	f.latestState = pending
	f.inFlight++
	if apply != nil {
		apply()
	}
	return f.latest, nil
}

func (p *Pipeline) settleSuccess(key string, seq uint64, reconcile func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if key == "" {
		if reconcile != nil {
			reconcile()
		}
		return true
	}

	f := p.flights[key]
	defer p.release(key, f)

	// fallback always holds the newest confirmed state of the key.
	if seq <= f.fallbackSeq {
		p.logger.Debug("stale success ignored", "key", key, "seq", seq, "latest", f.latest)
		return false
	}
	f.fallback = reconcile
	f.fallbackSeq = seq

	switch {
	case seq == f.latest:
		f.latestState = succeeded
		if reconcile != nil {
			reconcile()
		}
		return true
	case f.latestState == failed:
		if reconcile != nil {
			reconcile()
		}
	default:
		p.logger.Debug("stale success held as fallback", "key", key, "seq", seq, "latest", f.latest)
	}
	return false
}

func (p *Pipeline) settleFailure(key string, seq uint64, restore func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if key == "" {
		if restore != nil {
			restore()
		}
		return
	}

	f := p.flights[key]
	defer p.release(key, f)

	if seq != f.latest {
		p.logger.Debug("stale failure ignored", "key", key, "seq", seq, "latest", f.latest)
		return
	}
	f.latestState = failed
	if f.fallbackSeq > 0 {
		if f.fallback != nil {
			f.fallback()
		}
		return
	}
	if f.baseline != nil {
		f.baseline()
	}
}

func (p *Pipeline) release(key string, f *flight) {
	f.inFlight--
	if f.inFlight <= 0 {
		delete(p.flights, key)
	}
}

func (p *Pipeline) fail(op string, err error) {
	p.notify(Notice{Level: NoticeError, Operation: op, Message: err.Error(), Err: err})
}

func (p *Pipeline) notify(n Notice) {
	n.ID = uuid.New().String()
	n.At = time.Now()
	p.notifier.Notify(n)
}

// classify maps an arbitrary error onto the board error kinds. Errors that
// already carry a kind pass through; everything else is a network failure.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, board.ErrValidation),
		errors.Is(err, board.ErrNetwork),
		errors.Is(err, board.ErrConflict),
		errors.Is(err, board.ErrUnauthorized):
		return err
	}
	return &board.NetworkError{Op: op, Err: err}
}

func asValidation(op string, err error) error {
	if errors.Is(err, board.ErrValidation) || errors.Is(err, board.ErrUnauthorized) {
		return err
	}
	return &board.ValidationError{Op: op, Reason: "invalid input", Err: err}
}

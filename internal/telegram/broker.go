package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/panjf2000/ants/v2"
	"github.com/teledrive-vn/teledrive/internal/conf"
	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"go.uber.org/zap"
)

// State of the broker's client handle. Only a Ready handle is handed to
// operations.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateReady
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Handle is an authorized client handle, valid only for the duration of
// the operation it was handed to.
type Handle struct {
	API  *tg.Client
	Self *tg.User
}

// Operation is a unit of remote work executed under the broker
type Operation func(ctx context.Context, h *Handle) error

// Broker owns the process's single authorized remote client. The session
// database locks exclusively while a client is connected, so every
// operation runs against a scratch snapshot and no two operations run
// concurrently.
type Broker struct {
	cfg    *conf.TelegramConfig
	store  *SessionStore
	logger *logger.Logger

	// single-worker runtime: all remote work funnels through here
	pool *ants.Pool
	sem  chan struct{}

	state atomic.Int32
}

// NewBroker creates the broker and its task runtime
func NewBroker(cfg *conf.TelegramConfig, store *SessionStore, log *logger.Logger) (*Broker, error) {
	pool, err := ants.NewPool(1)
	if err != nil {
		return nil, fmt.Errorf("create broker pool: %w", err)
	}

	return &Broker{
		cfg:    cfg,
		store:  store,
		logger: log.Named("broker"),
		pool:   pool,
		sem:    make(chan struct{}, 1),
	}, nil
}

// State returns the current handle state
func (b *Broker) State() State {
	return State(b.state.Load())
}

func (b *Broker) setState(s State) {
	b.state.Store(int32(s))
}

// Close releases the task runtime
func (b *Broker) Close() {
	b.pool.Release()
}

// Do runs one remote operation. Callers waiting for the session obey the
// acquire timeout and fail with SessionBusy when it elapses. The handle
// passed to op must not escape the call.
func (b *Broker) Do(ctx context.Context, op Operation) error {
	select {
	case b.sem <- struct{}{}:
	case <-time.After(b.cfg.AcquireTimeout):
		return apperrors.New(apperrors.ErrSessionBusy, "session acquisition timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-b.sem }()

	done := make(chan error, 1)
	if err := b.pool.Submit(func() {
		done <- b.run(ctx, op)
	}); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternalServer, "submit remote operation")
	}

	return <-done
}

func (b *Broker) run(ctx context.Context, op Operation) error {
	b.setState(StateConnecting)
	defer b.setState(StateClosed)

	scratch := filepath.Join(b.cfg.ScratchDir, fmt.Sprintf("session_%d.db", time.Now().UnixNano()))
	sessionPath := scratch

	// Snapshot logs its own failures and the fallback decision
	fallback, _ := b.store.Snapshot(scratch)
	if fallback {
		sessionPath = b.store.Path()
	} else {
		b.logger.Debug("using scratch session snapshot", zap.String("path", scratch))
		defer func() {
			// scratch cleanup is best-effort
			if err := os.Remove(scratch); err != nil && !os.IsNotExist(err) {
				b.logger.Warn("failed to remove scratch session", zap.String("path", scratch), zap.Error(err))
			}
		}()
	}

	client := telegram.NewClient(b.cfg.AppID, b.cfg.AppHash, telegram.Options{
		SessionStorage: NewBoltSessionStorage(sessionPath),
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timedOut atomic.Bool
	timer := time.AfterFunc(b.cfg.ConnectTimeout, func() {
		timedOut.Store(true)
		cancel()
	})
	defer timer.Stop()

	err := client.Run(runCtx, func(ctx context.Context) error {
		timer.Stop()

		status, err := client.Auth().Status(ctx)
		if err != nil {
			return MapError(err)
		}
		if !status.Authorized {
			// re-authentication is the login collaborator's job, never retried here
			return apperrors.New(apperrors.ErrNotAuthenticated)
		}

		self, err := client.Self(ctx)
		if err != nil {
			return MapError(err)
		}

		b.setState(StateReady)
		defer b.setState(StateClosing)

		return op(ctx, &Handle{API: client.API(), Self: self})
	})

	if err != nil && timedOut.Load() {
		return apperrors.Wrap(err, apperrors.ErrConnectTimeout)
	}
	if err != nil {
		return MapError(err)
	}
	return nil
}

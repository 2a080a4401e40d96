package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"strata/internal/config"
	"strata/internal/jobs"
	"strata/internal/logging"
	"strata/internal/workflow"
)

const defaultReclaimInterval = time.Minute

// Daemon coordinates the HTTP API and background loops and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *jobs.Store
	engine *workflow.Engine

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	LockFilePath string
	StoreDriver  string
	DatabasePath string
	Jobs         map[jobs.JobStatus]int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger, engine *workflow.Engine) (*Daemon, error) {
	if cfg == nil || store == nil || engine == nil {
		return nil, errors.New("daemon requires config, store, and engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		engine:   engine,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock, starts the API server, and launches the
// claim-expiry reclaim loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another stratad instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return err
	}

	d.wg.Add(1)
	go d.reclaimLoop(runCtx)

	d.running.Store(true)
	d.logger.Info("stratad started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("stratad stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr returns the bound API address, or empty when the server is not
// listening. With a ":0" bind this is the only way to learn the port.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Status returns the current daemon status. Job counts are best effort; a
// store error leaves them nil.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		StoreDriver:  d.store.Driver(),
	}
	if d.cfg.Database.Driver == "" || d.cfg.Database.Driver == "sqlite" {
		status.DatabasePath = d.cfg.DatabasePath()
	}
	counts, err := d.engine.JobStatusCounts(ctx)
	if err != nil {
		d.logger.Warn("failed to count jobs for status", logging.Error(err))
		return status
	}
	status.Jobs = counts
	return status
}

// reclaimLoop periodically requeues work items whose claims have expired.
// The first sweep runs immediately so a restart recovers stale claims
// without waiting out the interval.
func (d *Daemon) reclaimLoop(ctx context.Context) {
	defer d.wg.Done()

	interval := time.Duration(d.cfg.Orchestrator.ReclaimInterval) * time.Second
	if interval <= 0 {
		interval = defaultReclaimInterval
	}

	d.reclaimOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.reclaimOnce(ctx)
		}
	}
}

func (d *Daemon) reclaimOnce(ctx context.Context) {
	if _, err := d.engine.ReclaimExpired(ctx); err != nil && ctx.Err() == nil {
		d.logger.Warn("reclaim sweep failed", logging.Error(err))
	}
}

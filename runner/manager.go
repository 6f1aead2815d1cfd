package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/noticesync/config"
	"github.com/use-agent/noticesync/models"
	"github.com/use-agent/noticesync/portal"
	"github.com/use-agent/noticesync/runstore"
)

// Executor runs one sync to completion.
type Executor interface {
	Run(ctx context.Context, req models.SyncRequest) (*Result, error)
}

// Manager starts runs in the background and records their outcome. It caps
// concurrent runs (each holds a browser) and can refuse a second run for a
// roll number that already has one in flight.
type Manager struct {
	exec      Executor
	store     *runstore.Store
	sem       chan struct{}
	timeout   time.Duration
	serialize bool
	loc       *time.Location
	log       *slog.Logger

	// admit makes the in-flight check and the record insert atomic.
	admit   sync.Mutex
	closing bool
	wg      sync.WaitGroup
	active  atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager returns a Manager recording runs in store. Watermarks are
// checked against loc before a run is accepted; nil means UTC.
func NewManager(exec Executor, store *runstore.Store, cfg config.RunsConfig, loc *time.Location, logger *slog.Logger) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		exec:      exec,
		store:     store,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		timeout:   cfg.Timeout,
		serialize: cfg.SerializeIdentity,
		loc:       loc,
		log:       logger.With("component", "manager"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start validates the credentials and the watermark, records a running run and executes it in the
// background. The returned record is the acknowledgment; the outcome is
// read later with Get.
func (m *Manager) Start(req models.SyncRequest) (models.Run, error) {
	if err := req.Validate(); err != nil {
		return models.Run{}, models.NewSyncError(models.ErrKindInvalidInput, err.Error(), err)
	}
	if _, err := portal.ParseWatermark(req.LastKnownNoticeAt, m.loc); err != nil {
		return models.Run{}, err
	}

	m.admit.Lock()
	if m.closing {
		m.admit.Unlock()
		return models.Run{}, models.NewSyncError(models.ErrKindInternal, "shutting down", nil)
	}
	if m.serialize {
		if id, busy := m.store.Running(req.RollNo); busy {
			m.admit.Unlock()
			return models.Run{}, models.NewSyncError(models.ErrKindConflict,
				fmt.Sprintf("run %s for this roll number is still in progress", id), nil)
		}
	}
	run := models.Run{
		ID:        uuid.NewString(),
		Identity:  req.RollNo,
		Status:    models.RunStatusRunning,
		Watermark: req.LastKnownNoticeAt,
		StartedAt: time.Now().UTC(),
	}
	m.store.Put(run)
	m.wg.Add(1)
	m.admit.Unlock()

	m.log.Info("run accepted", "run_id", run.ID, "roll_no", run.Identity)
	go m.execute(run.ID, req)
	return run, nil
}

// Get returns the record of run id.
func (m *Manager) Get(id string) (models.Run, bool) {
	return m.store.Get(id)
}

// Active returns the number of runs currently holding a browser.
func (m *Manager) Active() int {
	return int(m.active.Load())
}

// MaxConcurrent returns the concurrency cap.
func (m *Manager) MaxConcurrent() int {
	return cap(m.sem)
}

// Shutdown stops accepting runs and waits for in-flight ones. When ctx
// expires first the remaining runs are cancelled, and Shutdown still waits
// for them to release their browsers before returning ctx's error.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.admit.Lock()
	m.closing = true
	m.admit.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}

func (m *Manager) execute(id string, req models.SyncRequest) {
	defer m.wg.Done()

	select {
	case m.sem <- struct{}{}:
	case <-m.ctx.Done():
		m.finish(id, nil, models.NewSyncError(models.ErrKindInternal, "cancelled before start", m.ctx.Err()))
		return
	}
	defer func() { <-m.sem }()

	m.active.Add(1)
	defer m.active.Add(-1)

	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	defer cancel()

	var (
		res *Result
		err error
	)
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = models.NewSyncError(models.ErrKindInternal, fmt.Sprintf("run panicked: %v", p), nil)
			}
		}()
		res, err = m.exec.Run(ctx, req)
	}()
	m.finish(id, res, err)
}

func (m *Manager) finish(id string, res *Result, err error) {
	now := time.Now().UTC()
	m.store.Update(id, func(r *models.Run) {
		r.FinishedAt = &now
		if err != nil {
			r.Status = models.RunStatusFailed
			r.Step = string(StepOf(err))
			r.Error = models.DetailOf(err)
			return
		}
		r.Status = models.RunStatusSucceeded
		if res != nil {
			r.Delivered = res.Delivered
		}
	})

	if err != nil {
		m.log.Error("run failed",
			"run_id", id,
			"step", string(StepOf(err)),
			"kind", models.KindOf(err),
			"error", err,
		)
		return
	}
	m.log.Info("run succeeded", "run_id", id, "delivered", res.Delivered)
}

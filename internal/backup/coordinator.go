// Package backup mirrors the ledger to the remote object store once it is
// big enough to be worth keeping, and restores today's snapshot on request.
package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/colmadogutierrez/debtbook/internal/ledger"
	"github.com/colmadogutierrez/debtbook/pkg/config"
	"github.com/colmadogutierrez/debtbook/pkg/enums"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
	"github.com/colmadogutierrez/debtbook/pkg/metrics"
	"github.com/colmadogutierrez/debtbook/pkg/netprobe"
	"github.com/colmadogutierrez/debtbook/pkg/storage/drive"
)

const (
	DefaultRootFolder = "Colmado Gutierrez Backups"
	DefaultThreshold  = 10
	DefaultDateLayout = "2/1/2006"
)

// LedgerSource is what the coordinator reads from the ledger.
type LedgerSource interface {
	Subscribe(fn func(ledger.Change)) func()
	Snapshot() ([]byte, error)
}

// SessionChecker reports whether a usable remote session exists.
type SessionChecker interface {
	CheckAndRefresh(ctx context.Context) (bool, error)
}

// CoordinatorParams wires a Coordinator.
type CoordinatorParams struct {
	Ledger  LedgerSource
	Remote  drive.Store
	Session SessionChecker
	Probe   netprobe.Prober
	Lock    Lock
	Logger  *logger.Logger
	Metrics *metrics.BackupMetrics
	Config  config.BackupConfig
	Clock   func() time.Time
}

// Coordinator uploads the full ledger as today's snapshot whenever a change
// leaves the ledger at or above the size threshold.
type Coordinator struct {
	ledger  LedgerSource
	remote  drive.Store
	session SessionChecker
	probe   netprobe.Prober
	lock    Lock
	logg    *logger.Logger
	metrics *metrics.BackupMetrics
	layout  remoteLayout
	now     func() time.Time

	threshold int
	pending   chan struct{}

	mu       sync.Mutex
	observed bool
	state    enums.BackupState
}

func NewCoordinator(params CoordinatorParams) (*Coordinator, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if params.Remote == nil {
		return nil, fmt.Errorf("remote store is required")
	}
	if params.Session == nil {
		return nil, fmt.Errorf("session checker is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	probe := params.Probe
	if probe == nil {
		probe = netprobe.Static(true)
	}
	lock := params.Lock
	if lock == nil {
		lock = &LocalLock{}
	}
	threshold := params.Config.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		ledger:    params.Ledger,
		remote:    params.Remote,
		session:   params.Session,
		probe:     probe,
		lock:      lock,
		logg:      params.Logger,
		metrics:   params.Metrics,
		layout:    newRemoteLayout(params.Config),
		now:       now,
		threshold: threshold,
		pending:   make(chan struct{}, 1),
		state:     enums.BackupStateIdle,
	}, nil
}

// Watch subscribes to the ledger change feed. Subscribe before the ledger is
// hydrated so that hydration is the first observation, which never triggers.
func (c *Coordinator) Watch() func() {
	return c.ledger.Subscribe(c.observe)
}

func (c *Coordinator) observe(change ledger.Change) {
	c.mu.Lock()
	first := !c.observed
	c.observed = true
	c.mu.Unlock()

	if first || change.Initial || change.Size < c.threshold {
		return
	}
	select {
	case c.pending <- struct{}{}:
	default:
	}
}

// State is the phase of the pass in progress, or idle/aborted after it.
func (c *Coordinator) State() enums.BackupState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run performs queued backups one at a time until ctx is canceled. Failures
// are logged and never stop the loop.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logg.Info(ctx, "backup coordinator started")
	for {
		select {
		case <-ctx.Done():
			c.logg.Info(ctx, "backup coordinator stopped")
			return ctx.Err()
		case <-c.pending:
			_, _ = c.Backup(ctx)
		}
	}
}

// Backup runs one pass of the state machine. Gate failures (offline, no
// session, pass already running) end the pass quietly with a nil error;
// remote failures are logged and returned.
func (c *Coordinator) Backup(ctx context.Context) (enums.BackupOutcome, error) {
	started := time.Now()
	ctx = c.logg.WithField(ctx, "event", "backup.run")

	locked, err := c.lock.Acquire(ctx)
	if err != nil {
		c.logg.Error(ctx, "backup lock acquire failed", err)
		return c.finish(ctx, started, enums.BackupOutcomeFailed, err)
	}
	if !locked {
		c.logg.Info(ctx, "backup already in progress; skipping")
		return c.finish(ctx, started, enums.BackupOutcomeSkipped, nil)
	}
	defer func() {
		if relErr := c.lock.Release(ctx); relErr != nil {
			c.logg.Error(ctx, "failed to release backup lock", relErr)
		}
	}()

	ctx = c.enter(ctx, enums.BackupStateProbing)
	if !c.probe.Online(ctx) {
		c.logg.Info(ctx, "offline; backup skipped")
		return c.finish(ctx, started, enums.BackupOutcomeOffline, nil)
	}

	ctx = c.enter(ctx, enums.BackupStateAuthenticating)
	authenticated, err := c.session.CheckAndRefresh(ctx)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "session check failed; backup skipped")
		return c.finish(ctx, started, enums.BackupOutcomeUnauthenticated, nil)
	}
	if !authenticated {
		c.logg.Info(ctx, "not signed in; backup skipped")
		return c.finish(ctx, started, enums.BackupOutcomeUnauthenticated, nil)
	}

	ctx = c.enter(ctx, enums.BackupStateLocatingFolder)
	rootID, err := c.ensureFolder(ctx, c.layout.root, "")
	if err != nil {
		c.logg.Error(ctx, "locate backup folder failed", err)
		return c.finish(ctx, started, enums.BackupOutcomeFailed, err)
	}

	today := c.layout.dailyName(c.now())
	ctx = c.logg.WithField(c.enter(ctx, enums.BackupStateLocatingDailyFolder), "backup_date", today)
	dailyID, err := c.ensureFolder(ctx, today, rootID)
	if err != nil {
		c.logg.Error(ctx, "locate daily folder failed", err)
		return c.finish(ctx, started, enums.BackupOutcomeFailed, err)
	}

	ctx = c.enter(ctx, enums.BackupStateUploading)
	snapshot, err := c.ledger.Snapshot()
	if err != nil {
		c.logg.Error(ctx, "serialise ledger failed", err)
		return c.finish(ctx, started, enums.BackupOutcomeFailed, err)
	}
	fileID, err := c.remote.UploadOrReplace(ctx, dailyID, c.layout.fileName(today), snapshot)
	if err != nil {
		c.logg.Error(ctx, "upload backup failed", err)
		return c.finish(ctx, started, enums.BackupOutcomeFailed, err)
	}

	ctx = c.logg.WithFields(ctx, map[string]any{"file_id": fileID, "bytes": len(snapshot)})
	c.logg.Info(ctx, "backup uploaded")
	return c.finish(ctx, started, enums.BackupOutcomeUploaded, nil)
}

func (c *Coordinator) ensureFolder(ctx context.Context, name, parentID string) (string, error) {
	id, found, err := c.remote.SearchFolder(ctx, name, parentID)
	if err != nil {
		return "", err
	}
	if found {
		return id, nil
	}
	id, err = c.remote.CreateFolder(ctx, name, parentID)
	if err != nil {
		return "", err
	}
	c.logg.Info(c.logg.WithField(ctx, "folder", name), "backup folder created")
	return id, nil
}

func (c *Coordinator) enter(ctx context.Context, state enums.BackupState) context.Context {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	return c.logg.WithBackupState(ctx, string(state))
}

func (c *Coordinator) finish(ctx context.Context, started time.Time, outcome enums.BackupOutcome, err error) (enums.BackupOutcome, error) {
	state := enums.BackupStateAborted
	if outcome == enums.BackupOutcomeUploaded {
		state = enums.BackupStateIdle
	}
	if outcome != enums.BackupOutcomeSkipped {
		c.mu.Lock()
		c.state = state
		c.mu.Unlock()
	}
	c.metrics.ObserveRun(string(outcome), time.Since(started), c.now())
	return outcome, err
}

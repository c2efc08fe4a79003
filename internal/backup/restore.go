package backup

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/colmadogutierrez/debtbook/pkg/config"
	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
	"github.com/colmadogutierrez/debtbook/pkg/metrics"
	"github.com/colmadogutierrez/debtbook/pkg/netprobe"
	"github.com/colmadogutierrez/debtbook/pkg/storage/drive"
)

// ErrNoBackupToday means no snapshot exists under today's date.
var ErrNoBackupToday = pkgerrors.New(pkgerrors.CodeNotFound, "no backup found for today")

// LedgerReplacer overwrites the whole ledger from a serialised snapshot.
type LedgerReplacer interface {
	ReplaceAllJSON(ctx context.Context, raw []byte) error
}

// RestorerParams wires a Restorer.
type RestorerParams struct {
	Ledger  LedgerReplacer
	Remote  drive.Store
	Session SessionChecker
	Probe   netprobe.Prober
	Logger  *logger.Logger
	Metrics *metrics.BackupMetrics
	Config  config.BackupConfig
	Clock   func() time.Time
}

// Restorer replaces the local ledger with today's remote snapshot.
type Restorer struct {
	ledger  LedgerReplacer
	remote  drive.Store
	session SessionChecker
	probe   netprobe.Prober
	logg    *logger.Logger
	metrics *metrics.BackupMetrics
	layout  remoteLayout
	now     func() time.Time
}

func NewRestorer(params RestorerParams) (*Restorer, error) {
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
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &Restorer{
		ledger:  params.Ledger,
		remote:  params.Remote,
		session: params.Session,
		probe:   probe,
		logg:    params.Logger,
		metrics: params.Metrics,
		layout:  newRemoteLayout(params.Config),
		now:     now,
	}, nil
}

// Restore downloads <root>/<today>/<today>.json and replaces the ledger with
// it. Unlike backups, every failure is returned to the caller.
func (r *Restorer) Restore(ctx context.Context) error {
	today := r.layout.dailyName(r.now())
	ctx = r.logg.WithFields(ctx, map[string]any{"event": "backup.restore", "backup_date": today})

	err := r.restore(ctx, today)
	outcome := "restored"
	switch {
	case err == nil:
		r.logg.Info(ctx, "ledger restored from remote backup")
	case stdErrors.Is(err, ErrNoBackupToday):
		outcome = "missing"
		r.logg.Info(ctx, "no backup for today")
	default:
		outcome = "failed"
		if typed := pkgerrors.As(err); typed != nil {
			outcome = string(typed.Code())
		}
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "restore failed")
	}
	r.metrics.IncRestore(outcome)
	return err
}

func (r *Restorer) restore(ctx context.Context, today string) error {
	if !r.probe.Online(ctx) {
		return pkgerrors.New(pkgerrors.CodeNetwork, "no network connection")
	}
	authenticated, err := r.session.CheckAndRefresh(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "check session")
	}
	if !authenticated {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "not signed in")
	}

	rootID, found, err := r.remote.SearchFolder(ctx, r.layout.root, "")
	if err != nil {
		return err
	}
	if !found {
		return ErrNoBackupToday
	}
	dailyID, found, err := r.remote.SearchFolder(ctx, today, rootID)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoBackupToday
	}
	fileID, found, err := r.remote.SearchFile(ctx, r.layout.fileName(today), dailyID)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoBackupToday
	}

	payload, err := r.remote.Download(ctx, fileID)
	if err != nil {
		return err
	}
	return r.ledger.ReplaceAllJSON(ctx, payload)
}

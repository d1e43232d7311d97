package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/semmidev/dbkeeper/internal/domain"
	"github.com/semmidev/dbkeeper/internal/infrastructure/guard"
)

type BackupRequest struct {
	Connection string
	// OutputDir defaults to the configured backup root.
	OutputDir string
	// Progress receives tool output line by line. Sends block until the
	// caller reads or the operation ends; nil discards progress.
	Progress chan<- domain.ProgressEvent
}

type BackupOutcome struct {
	Success      bool
	FilePath     string
	SizeBytes    int64
	ErrorMessage string
	// Record is the history entry written for this attempt, nil when the
	// attempt was rejected before it started.
	Record *domain.BackupRecord
}

type RestoreRequest struct {
	Connection string
	File       string
	// Confirmed acknowledges that the target database will be overwritten.
	Confirmed bool
	Progress  chan<- domain.ProgressEvent
}

type RestoreOutcome struct {
	Success      bool
	ErrorMessage string
}

type OrchestratorDeps struct {
	Registry   domain.ConnectionRegistry
	History    domain.HistoryStore
	Adapters   map[domain.Engine]domain.Adapter
	Guard      *guard.Guard
	Compressor domain.Compressor
	BackupRoot string

	// Optional.
	Replicator *Replicator
	Notifiers  []domain.Notifier
	Metrics    Recorder
	Logger     Logger
	Clock      func() time.Time
}

// Orchestrator runs backups and restores against named connections. At most
// one operation runs per connection at a time; a second request fails fast
// with ConnectionBusy instead of queueing.
type Orchestrator struct {
	registry   domain.ConnectionRegistry
	history    domain.HistoryStore
	adapters   map[domain.Engine]domain.Adapter
	guard      *guard.Guard
	compressor domain.Compressor
	root       string
	replicator *Replicator
	notifiers  []domain.Notifier
	metrics    Recorder
	logger     Logger
	now        func() time.Time

	mu          sync.Mutex
	lastCreated map[string]time.Time
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		registry:    deps.Registry,
		history:     deps.History,
		adapters:    deps.Adapters,
		guard:       deps.Guard,
		compressor:  deps.Compressor,
		root:        deps.BackupRoot,
		replicator:  deps.Replicator,
		notifiers:   deps.Notifiers,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         deps.Clock,
		lastCreated: make(map[string]time.Time),
	}
	if o.guard == nil {
		o.guard = guard.New()
	}
	if o.metrics == nil {
		o.metrics = nopRecorder{}
	}
	if o.logger == nil {
		o.logger = nopLogger{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// CreateBackup dumps the named connection into OutputDir and records the
// attempt. The returned error is a *domain.Error whenever the backup did not
// succeed; the outcome describes the same result for display.
func (o *Orchestrator) CreateBackup(ctx context.Context, req BackupRequest) (BackupOutcome, error) {
	start := time.Now()

	profile, adapter, err := o.resolve(ctx, req.Connection)
	if err != nil {
		return failedBackup(err, nil), err
	}

	outcome, err := o.backupGuarded(ctx, req, profile, adapter)
	o.metrics.ObserveOperation(domain.OperationBackup, profile.Engine, resultLabel(err), time.Since(start))

	if err != nil {
		o.notifyFailure(ctx, profile, err)
		return outcome, err
	}

	o.metrics.ObserveArtifact(profile.Engine, outcome.SizeBytes)
	if o.replicator != nil {
		o.replicator.Replicate(ctx, profile.Name, outcome.FilePath)
	}
	return outcome, nil
}

// backupGuarded holds the lease only for the dump and the history write.
func (o *Orchestrator) backupGuarded(ctx context.Context, req BackupRequest, profile domain.ConnectionProfile, adapter domain.Adapter) (BackupOutcome, error) {
	lease, err := o.guard.Acquire(profile.Name)
	if err != nil {
		return failedBackup(err, nil), err
	}
	defer lease.Release()

	dir := req.OutputDir
	if dir == "" {
		dir = o.root
	}

	createdAt, err := o.nextCreatedAt(ctx, profile.Name)
	if err != nil {
		err = asDomainError(err, domain.KindDumpFailed, profile.Name)
		return failedBackup(err, nil), err
	}

	log := o.logger
	record := domain.NewBackupRecord(profile.Name, profile.Engine, createdAt)
	progress, markRunning := trackRunning(record, o.forward(ctx, req.Progress, profile.Name, domain.OperationBackup), log)

	log.Infof("[%s] Starting %s backup into %s", profile.Name, profile.Engine, dir)

	dump, dumpErr := adapter.Dump(ctx, domain.DumpRequest{
		Profile:   profile,
		Directory: dir,
		Timestamp: createdAt,
	}, progress)

	completedAt := o.now()
	if dumpErr == nil {
		// A tool that printed nothing still ran.
		markRunning()
		if err := record.Succeed(dump.FilePath, dump.SizeBytes, completedAt); err != nil {
			dumpErr = domain.NewError(domain.KindDumpFailed, profile.Name, err.Error(), err)
		}
	}
	if dumpErr != nil {
		dumpErr = asDomainError(dumpErr, domain.KindDumpFailed, profile.Name)
		if err := record.Fail(dumpErr.Error(), completedAt); err != nil {
			log.Warnf("[%s] %v", profile.Name, err)
		}
		log.Errorf("[%s] Backup failed: %v", profile.Name, dumpErr)
	} else {
		log.Infof("[%s] Backup completed in %s: %s (%s)", profile.Name,
			completedAt.Sub(createdAt).Round(time.Second), dump.FilePath, humanize.IBytes(uint64(dump.SizeBytes)))
	}

	// The attempt is recorded even when the caller gave up on it.
	if err := o.history.Append(context.WithoutCancel(ctx), *record); err != nil {
		log.Errorf("[%s] Failed to record backup: %v", profile.Name, err)
	}

	if dumpErr != nil {
		return failedBackup(dumpErr, record), dumpErr
	}
	return BackupOutcome{
		Success:   true,
		FilePath:  dump.FilePath,
		SizeBytes: dump.SizeBytes,
		Record:    record,
	}, nil
}

// RestoreBackup replays File into the named connection. Everything that can
// be checked without touching the database is checked first: the file must
// exist and the caller must have confirmed the overwrite.
func (o *Orchestrator) RestoreBackup(ctx context.Context, req RestoreRequest) (RestoreOutcome, error) {
	start := time.Now()

	profile, adapter, err := o.resolve(ctx, req.Connection)
	if err != nil {
		return failedRestore(err), err
	}

	if err := CheckRestoreSource(profile.Name, req.File); err != nil {
		return failedRestore(err), err
	}

	if !req.Confirmed {
		err := domain.NewError(domain.KindRestoreNotConfirmed, profile.Name,
			fmt.Sprintf("restoring %s overwrites database %s and must be confirmed", req.File, profile.Database), nil)
		return failedRestore(err), err
	}

	err = o.restoreGuarded(ctx, req, profile, adapter)
	o.metrics.ObserveOperation(domain.OperationRestore, profile.Engine, resultLabel(err), time.Since(start))
	if err != nil {
		o.logger.Errorf("[%s] Restore failed: %v", profile.Name, err)
		return failedRestore(err), err
	}

	o.logger.Infof("[%s] Restore of %s completed in %s", profile.Name, req.File, time.Since(start).Round(time.Second))
	return RestoreOutcome{Success: true}, nil
}

func (o *Orchestrator) restoreGuarded(ctx context.Context, req RestoreRequest, profile domain.ConnectionProfile, adapter domain.Adapter) error {
	lease, err := o.guard.Acquire(profile.Name)
	if err != nil {
		return err
	}
	defer lease.Release()

	source := req.File
	if o.compressor != nil && strings.HasSuffix(source, o.compressor.Extension()) {
		plain, cleanup, err := o.decompress(profile.Name, source)
		if err != nil {
			return err
		}
		defer cleanup()
		source = plain
	}

	o.logger.Infof("[%s] Restoring %s into %s", profile.Name, req.File, profile.Database)
	err = adapter.Restore(ctx, profile, source, o.forward(ctx, req.Progress, profile.Name, domain.OperationRestore))
	if err != nil {
		return asDomainError(err, domain.KindRestoreFailed, profile.Name)
	}
	return nil
}

// ListBackups returns the history of name oldest first. Unknown names have
// no history, which is not an error.
func (o *Orchestrator) ListBackups(ctx context.Context, name string) ([]domain.BackupRecord, error) {
	records, err := o.history.EnumerateByConnection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("list backups for %s: %w", name, err)
	}
	if records == nil {
		records = []domain.BackupRecord{}
	}
	return records, nil
}

// TestConnection reports whether the named server accepts a connection.
func (o *Orchestrator) TestConnection(ctx context.Context, name string) (bool, error) {
	profile, adapter, err := o.resolve(ctx, name)
	if err != nil {
		return false, err
	}

	ok, err := adapter.TestConnection(ctx, profile)
	if err != nil {
		return false, err
	}
	if ok {
		o.logger.Infof("[%s] Connection OK (%s %s:%d)", name, profile.Engine, profile.Host, profile.Port)
	} else {
		o.logger.Warnf("[%s] Connection failed (%s %s:%d)", name, profile.Engine, profile.Host, profile.Port)
	}
	return ok, nil
}

func (o *Orchestrator) resolve(ctx context.Context, name string) (domain.ConnectionProfile, domain.Adapter, error) {
	profile, err := o.registry.Lookup(ctx, name)
	if err != nil {
		if domain.KindOf(err) == "" {
			err = fmt.Errorf("lookup connection %s: %w", name, err)
		}
		return domain.ConnectionProfile{}, nil, err
	}

	adapter, ok := o.adapters[profile.Engine]
	if !ok {
		return profile, nil, domain.NewError(domain.KindEngineUnsupported, name,
			fmt.Sprintf("no adapter for engine %q", profile.Engine), nil)
	}
	return profile, adapter, nil
}

// nextCreatedAt keeps CreatedAt strictly increasing per connection at the
// resolution of artifact names. Callers hold the connection's lease.
func (o *Orchestrator) nextCreatedAt(ctx context.Context, name string) (time.Time, error) {
	o.mu.Lock()
	last, seen := o.lastCreated[name]
	o.mu.Unlock()

	if !seen {
		records, err := o.history.EnumerateByConnection(ctx, name)
		if err != nil {
			return time.Time{}, fmt.Errorf("read history for %s: %w", name, err)
		}
		if n := len(records); n > 0 {
			last = records[n-1].CreatedAt
			seen = true
		}
	}

	ts := o.now().Truncate(time.Second)
	if seen {
		if floor := last.Truncate(time.Second); !ts.After(floor) {
			ts = floor.Add(time.Second)
		}
	}

	o.mu.Lock()
	o.lastCreated[name] = ts
	o.mu.Unlock()
	return ts, nil
}

// forward adapts a caller channel to the adapters' line callback.
func (o *Orchestrator) forward(ctx context.Context, ch chan<- domain.ProgressEvent, name string, op domain.Operation) domain.ProgressFunc {
	if ch == nil {
		return nil
	}
	return func(lineCtx context.Context, line string) {
		event := domain.ProgressEvent{Connection: name, Operation: op, Line: line, Time: o.now()}
		select {
		case ch <- event:
		case <-lineCtx.Done():
		case <-ctx.Done():
		}
	}
}

// trackRunning moves record to Running on the first line the tool emits,
// then hands every line on to sink.
func trackRunning(record *domain.BackupRecord, sink domain.ProgressFunc, log Logger) (domain.ProgressFunc, func()) {
	var once sync.Once
	mark := func() {
		once.Do(func() {
			if err := record.MarkRunning(); err != nil {
				log.Warnf("[%s] %v", record.ConnectionName, err)
			}
		})
	}
	return func(ctx context.Context, line string) {
		mark()
		if sink != nil {
			sink(ctx, line)
		}
	}, mark
}

// decompress unpacks a compressed artifact next to the system temp dir.
func (o *Orchestrator) decompress(name, source string) (string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "dbkeeper-restore-")
	if err != nil {
		return "", nil, domain.NewError(domain.KindRestoreFailed, name,
			fmt.Sprintf("failed to create temp dir: %v", err), err)
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	plain := filepath.Join(tmpDir, strings.TrimSuffix(filepath.Base(source), o.compressor.Extension()))
	o.logger.Infof("[%s] Decompressing %s...", name, filepath.Base(source))
	if err := o.compressor.Decompress(source, plain); err != nil {
		cleanup()
		return "", nil, domain.NewError(domain.KindRestoreFailed, name,
			fmt.Sprintf("failed to decompress %s: %v", source, err), err)
	}
	return plain, cleanup, nil
}

func (o *Orchestrator) notifyFailure(ctx context.Context, profile domain.ConnectionProfile, err error) {
	if len(o.notifiers) == 0 || domain.KindOf(err) == domain.KindConnectionBusy {
		return
	}
	message := fmt.Sprintf("❌ Backup Failed\n\n🔌 Connection: %s (%s)\n🕐 Time: %s\n\n%s",
		profile.Name, profile.Engine, o.now().Format("2006-01-02 15:04:05"), err)
	for _, n := range o.notifiers {
		if nerr := n.Notify(context.WithoutCancel(ctx), message); nerr != nil {
			o.logger.Warnf("[%s] Failed to send failure notification: %v", profile.Name, nerr)
		}
	}
}

// CheckRestoreSource reports KindBackupFileNotFound unless path is a regular
// file. Callers that prompt before restoring run it first.
func CheckRestoreSource(name, path string) error {
	if path == "" {
		return domain.NewError(domain.KindBackupFileNotFound, name, "no backup file given", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return domain.NewError(domain.KindBackupFileNotFound, name, fmt.Sprintf("backup file not found: %s", path), err)
	}
	if info.IsDir() {
		return domain.NewError(domain.KindBackupFileNotFound, name, fmt.Sprintf("backup path is a directory: %s", path), nil)
	}
	return nil
}

// asDomainError keeps typed errors as they are and classifies anything else.
func asDomainError(err error, fallback domain.Kind, name string) error {
	if kind := domain.KindOf(err); kind != "" {
		if _, ok := err.(*domain.Error); ok {
			return err
		}
		return domain.NewError(kind, name, err.Error(), err)
	}
	return domain.NewError(fallback, name, err.Error(), err)
}

func failedBackup(err error, record *domain.BackupRecord) BackupOutcome {
	return BackupOutcome{ErrorMessage: err.Error(), Record: record}
}

func failedRestore(err error) RestoreOutcome {
	return RestoreOutcome{ErrorMessage: err.Error()}
}

// Package orchestrator owns the sync pipeline lifecycle: event intake,
// periodic scans, the bounded queue, and the processing workers. It is the
// single place that knows how the pieces connect, and the source of truth
// for per-user sync status.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/intake"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/processor"
	"github.com/fyrsmithlabs/corpusd/internal/queue"
	"github.com/fyrsmithlabs/corpusd/internal/scanner"
	"github.com/fyrsmithlabs/corpusd/internal/watermark"
)

// ErrScanInProgress is returned when a manual scan is requested for a user
// whose scan is already running.
var ErrScanInProgress = errors.New("orchestrator: scan already in progress")

// State is the coarse sync state of one user.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
)

// Status is one user's sync snapshot.
type Status struct {
	State       State      `json:"state"`
	Indexed     int        `json:"indexed"`
	Pending     int        `json:"pending"`
	LastSync    *time.Time `json:"last_sync,omitempty"`
	ErrorCount  int        `json:"error_count"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
}

// Config tunes the orchestrator.
type Config struct {
	// ScanInterval is the period between automatic scans per user.
	ScanInterval time.Duration
	// DebounceWindow is the quiet window applied to incoming events.
	DebounceWindow time.Duration
	// Users are the user IDs covered by automatic scans.
	Users []string
}

type userState struct {
	syncing     bool
	lastSync    time.Time
	errorCount  int
	lastErrorAt time.Time
}

// SyncService wires intake, scanner, queue, and processor together.
type SyncService struct {
	cfg     Config
	tasks   *queue.Queue
	events  *intake.Service
	scanner *scanner.Scanner
	proc    *processor.Processor
	marks   *watermark.Store
	logger  *logging.Logger

	mu    sync.Mutex
	users map[string]*userState

	cancelScans   context.CancelFunc
	cancelWorkers context.CancelFunc
	scanWG        sync.WaitGroup
	workerWG      sync.WaitGroup
}

// New creates the sync service over an externally built queue; the scanner
// shares the same queue through its enqueue callback. Start must be called
// before the service does work.
func New(cfg Config, tasks *queue.Queue, scan *scanner.Scanner, proc *processor.Processor,
	marks *watermark.Store, logger *logging.Logger) *SyncService {
	s := &SyncService{
		cfg:     cfg,
		tasks:   tasks,
		scanner: scan,
		proc:    proc,
		marks:   marks,
		logger:  logger.Named("orchestrator"),
		users:   make(map[string]*userState),
	}
	s.events = intake.NewService(cfg.DebounceWindow, s.enqueueDebounced, logger)
	return s
}

// Queue exposes the task queue for components that enqueue directly.
func (s *SyncService) Queue() *queue.Queue { return s.tasks }

// enqueueDebounced is the debouncer sink. Backpressure from a full queue
// blocks the debounce timer goroutine, which is acceptable: it only delays
// further flushes.
func (s *SyncService) enqueueDebounced(task document.Task) {
	if err := s.tasks.Enqueue(context.Background(), task); err != nil {
		s.logger.Warn(context.Background(), "dropping debounced task",
			zap.String("doc", task.Key().String()), zap.Error(err))
	}
}

// Start launches the worker pool and the periodic scan loop.
func (s *SyncService) Start() {
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	s.cancelWorkers = cancelWorkers
	scanCtx, cancelScans := context.WithCancel(context.Background())
	s.cancelScans = cancelScans

	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		s.proc.Run(workerCtx, s.tasks)
	}()

	if s.cfg.ScanInterval > 0 && len(s.cfg.Users) > 0 {
		s.scanWG.Add(1)
		go func() {
			defer s.scanWG.Done()
			s.scanLoop(scanCtx)
		}()
	}
	s.logger.Info(context.Background(), "sync service started",
		zap.Int("users", len(s.cfg.Users)),
		zap.Duration("scan_interval", s.cfg.ScanInterval),
	)
}

func (s *SyncService) scanLoop(ctx context.Context) {
	s.scanAll(ctx)
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanAll(ctx)
		}
	}
}

func (s *SyncService) scanAll(ctx context.Context) {
	for _, userID := range s.cfg.Users {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.TriggerScan(ctx, userID); err != nil && !errors.Is(err, ErrScanInProgress) {
			s.logger.Error(ctx, "periodic scan failed",
				zap.String("user", userID), zap.Error(err))
		}
	}
}

// SubmitEvent feeds one change notification into intake.
func (s *SyncService) SubmitEvent(ctx context.Context, ev intake.Event) error {
	return s.events.Submit(ctx, ev)
}

// TriggerScan runs a discovery scan for one user now. Only one scan per user
// runs at a time.
func (s *SyncService) TriggerScan(ctx context.Context, userID string) (scanner.Result, error) {
	s.mu.Lock()
	st := s.userStateLocked(userID)
	if st.syncing {
		s.mu.Unlock()
		return scanner.Result{}, ErrScanInProgress
	}
	st.syncing = true
	s.mu.Unlock()

	res, err := s.scanner.Scan(ctx, userID)

	s.mu.Lock()
	st.syncing = false
	if err != nil {
		st.errorCount++
		st.lastErrorAt = time.Now().UTC()
	} else {
		st.lastSync = time.Now().UTC()
		if res.ListErrors > 0 {
			st.errorCount += res.ListErrors
			st.lastErrorAt = time.Now().UTC()
		}
	}
	s.mu.Unlock()
	return res, err
}

// Status reports one user's sync snapshot. Indexed counts watermarked
// documents; Pending counts queued tasks plus events still in their quiet
// window.
func (s *SyncService) Status(ctx context.Context, userID string) (*Status, error) {
	indexed, err := s.marks.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	st := s.userStateLocked(userID)
	out := &Status{
		State:      StateIdle,
		Indexed:    indexed,
		Pending:    s.tasks.Len() + s.events.Pending(),
		ErrorCount: st.errorCount,
	}
	if st.syncing {
		out.State = StateSyncing
	} else if !st.lastErrorAt.IsZero() && st.lastErrorAt.After(st.lastSync) {
		out.State = StateError
	}
	if !st.lastSync.IsZero() {
		t := st.lastSync
		out.LastSync = &t
	}
	if !st.lastErrorAt.IsZero() {
		t := st.lastErrorAt
		out.LastErrorAt = &t
	}
	s.mu.Unlock()
	return out, nil
}

func (s *SyncService) userStateLocked(userID string) *userState {
	st, ok := s.users[userID]
	if !ok {
		st = &userState{}
		s.users[userID] = st
	}
	return st
}

// Shutdown stops scans, flushes intake, closes the queue, and lets workers
// drain it. Draining is bounded by ctx; afterwards workers are cancelled
// outright.
func (s *SyncService) Shutdown(ctx context.Context) error {
	if s.cancelScans != nil {
		s.cancelScans()
	}
	s.scanWG.Wait()

	s.events.Close()
	s.tasks.Close()

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if s.cancelWorkers != nil {
		s.cancelWorkers()
	}
	s.workerWG.Wait()
	return ctx.Err()
}

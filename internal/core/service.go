package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/denoland/kv-utils/internal/kv"
	"github.com/denoland/kv-utils/internal/ndjson"
	"github.com/denoland/kv-utils/internal/store"
	"github.com/google/uuid"
)

// ErrImportNotFound is returned for an unknown or expired import ID.
var ErrImportNotFound = errors.New("import not found")

const (
	// DefaultMaxRetainedErrors caps the failed lines kept per import.
	DefaultMaxRetainedErrors = 100

	// DefaultRetention is how long a finished import stays queryable.
	DefaultRetention = 5 * time.Minute

	// progressEvery is how many lines pass between progress broadcasts.
	progressEvery = 100

	// progressInterval is the longest gap between progress broadcasts.
	progressInterval = 250 * time.Millisecond
)

// ServiceConfig configures a Service. Zero values select defaults.
type ServiceConfig struct {
	MaxConcurrent     int
	MaxWait           time.Duration
	Timeout           time.Duration // per import, 0 for none
	ReadBufferSize    int
	MaxRetainedErrors int
	Retention         time.Duration
	Logger            *slog.Logger
}

// ImportRequest describes an async import.
type ImportRequest struct {
	Source       string // file name or other label, for display only
	Size         int64  // expected byte size, 0 if unknown
	Overwrite    bool
	Prefix       kv.Key
	ThrowOnError bool
}

// Service runs imports into a store in the background.
type Service struct {
	store   store.Store
	cfg     ServiceConfig
	limiter *ImportLimiter
	logger  *slog.Logger

	mu      sync.RWMutex
	imports map[string]*activeImport
}

type activeImport struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	progress  ImportProgress
	result    *ImportJobResult
	listeners []chan ImportProgress
	lastSent  time.Time
}

// NewService returns a Service importing into st.
func NewService(st store.Store, cfg ServiceConfig) *Service {
	if cfg.MaxRetainedErrors <= 0 {
		cfg.MaxRetainedErrors = DefaultMaxRetainedErrors
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   st,
		cfg:     cfg,
		limiter: NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		logger:  logger,
		imports: make(map[string]*activeImport),
	}
}

// Store returns the store the service imports into.
func (s *Service) Store() store.Store { return s.store }

// StartImport begins importing body in the background and returns the
// import ID. The service owns body from then on and closes it when the
// import ends, whether or not StartImport succeeds.
//
// Returns ErrTooManyImports if no import slot frees up in time.
func (s *Service) StartImport(ctx context.Context, body io.ReadCloser, req ImportRequest) (string, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		body.Close()
		return "", err
	}

	id := uuid.New().String()
	var importCtx context.Context
	var cancel context.CancelFunc
	if s.cfg.Timeout > 0 {
		importCtx, cancel = context.WithTimeout(context.Background(), s.cfg.Timeout)
	} else {
		importCtx, cancel = context.WithCancel(context.Background())
	}

	job := &activeImport{
		id:     id,
		cancel: cancel,
		done:   make(chan struct{}),
		progress: ImportProgress{
			ImportID:   id,
			Source:     req.Source,
			Phase:      PhaseStarting,
			BytesTotal: req.Size,
		},
	}

	s.mu.Lock()
	s.imports[id] = job
	s.mu.Unlock()

	logger := s.logger.With("import_id", id)
	if ip := ClientIPFromContext(ctx); ip != "" {
		logger = logger.With("client_ip", ip)
	}
	logger.Info("import started", "source", req.Source, "bytes", req.Size, "overwrite", req.Overwrite)

	go func() {
		defer s.limiter.Release()
		defer body.Close()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in import", "panic", r)
				s.finish(job, ImportResult{}, nil, fmt.Errorf("internal error: %v", r), time.Now())
			}
		}()
		s.run(importCtx, job, body, req, logger)
	}()

	return id, nil
}

func (s *Service) run(ctx context.Context, job *activeImport, body io.Reader, req ImportRequest, logger *slog.Logger) {
	start := time.Now()
	counting := ndjson.NewCountingReader(body, req.Size)

	job.update(func(p *ImportProgress) { p.Phase = PhaseImporting }, true)

	var failed []FailedLine
	opts := ImportOptions{
		Overwrite:    req.Overwrite,
		Prefix:       req.Prefix,
		ThrowOnError: req.ThrowOnError,
		BufferSize:   s.cfg.ReadBufferSize,
		Logger:       logger,
		OnError: func(e *ImportError) {
			if len(failed) < s.cfg.MaxRetainedErrors {
				msg := MapError(e.Cause)
				failed = append(failed, FailedLine{
					LineNumber: e.Count,
					JSON:       e.JSON,
					Reason:     e.Cause.Error(),
					Code:       msg.Code,
				})
			}
		},
		OnProgress: func(count, skipped, errs int) {
			job.update(func(p *ImportProgress) {
				p.Count, p.Skipped, p.Errors = count, skipped, errs
				p.BytesRead = counting.BytesRead()
			}, count%progressEvery == 0)
		},
	}

	res, err := ImportEntries(ctx, s.store, counting, opts)
	if err == nil && res.Aborted && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("import timed out after %s: %w", s.cfg.Timeout, ctx.Err())
	}

	job.mu.Lock()
	job.progress.BytesRead = counting.BytesRead()
	job.mu.Unlock()

	jobResult := s.finish(job, res, failed, err, start)
	logger.Info("import finished",
		"phase", job.snapshot().Phase,
		"count", res.Count,
		"skipped", res.Skipped,
		"errors", res.Errors,
		"duration", jobResult.Duration,
	)
}

// finish records the outcome, broadcasts the final progress and schedules
// the job for removal.
func (s *Service) finish(job *activeImport, res ImportResult, failed []FailedLine, err error, start time.Time) *ImportJobResult {
	result := &ImportJobResult{
		ImportID:    job.id,
		Result:      res,
		FailedLines: failed,
		Truncated:   res.Errors > len(failed),
		Duration:    time.Since(start),
	}

	job.mu.Lock()
	if job.result != nil {
		job.mu.Unlock()
		return job.result
	}
	result.Source = job.progress.Source
	p := &job.progress
	p.Count, p.Skipped, p.Errors = res.Count, res.Skipped, res.Errors
	switch {
	case err != nil:
		p.Phase = PhaseFailed
		p.Error = FormatUserError(err)
		result.Error = err.Error()
	case res.Aborted:
		p.Phase = PhaseCancelled
	default:
		p.Phase = PhaseComplete
	}
	job.result = result
	job.broadcast(true)
	for _, ch := range job.listeners {
		close(ch)
	}
	job.listeners = nil
	job.mu.Unlock()

	close(job.done)
	s.cleanup(job.id, s.cfg.Retention)
	return result
}

// update applies fn to the progress and broadcasts it when force is set or
// enough time has passed since the last broadcast.
func (job *activeImport) update(fn func(*ImportProgress), force bool) {
	job.mu.Lock()
	defer job.mu.Unlock()
	fn(&job.progress)
	if force || time.Since(job.lastSent) >= progressInterval {
		job.broadcast(false)
	}
}

// broadcast sends the progress to every listener without blocking. A slow
// listener misses intermediate updates; the final update replaces the
// oldest one queued so it is never lost. Callers hold job.mu.
func (job *activeImport) broadcast(final bool) {
	job.lastSent = time.Now()
	for _, ch := range job.listeners {
		select {
		case ch <- job.progress:
			continue
		default:
		}
		if final {
			select {
			case <-ch:
			default:
			}
			ch <- job.progress
		}
	}
}

func (job *activeImport) snapshot() ImportProgress {
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.progress
}

func (s *Service) lookup(id string) (*activeImport, error) {
	s.mu.RLock()
	job, ok := s.imports[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}
	return job, nil
}

// SubscribeProgress returns a channel that receives progress updates,
// starting with the current state. The channel is closed after the final
// update.
func (s *Service) SubscribeProgress(id string) (<-chan ImportProgress, error) {
	job, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	ch := make(chan ImportProgress, 10)
	job.mu.Lock()
	defer job.mu.Unlock()
	ch <- job.progress
	if job.result != nil {
		close(ch)
		return ch, nil
	}
	job.listeners = append(job.listeners, ch)
	return ch, nil
}

// CancelImport stops an import after the line it is working on.
func (s *Service) CancelImport(id string) error {
	job, err := s.lookup(id)
	if err != nil {
		return err
	}
	job.cancel()
	return nil
}

// GetImportResult returns the result of an import, waiting for it to
// finish if needed.
func (s *Service) GetImportResult(ctx context.Context, id string) (*ImportJobResult, error) {
	job, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-job.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.result, nil
}

// GetImportProgress returns the current progress without blocking.
func (s *Service) GetImportProgress(id string) (ImportProgress, error) {
	job, err := s.lookup(id)
	if err != nil {
		return ImportProgress{}, err
	}
	return job.snapshot(), nil
}

// WaitForImports blocks until every running import has finished.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// CancelAll cancels every running import.
func (s *Service) CancelAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.imports {
		job.cancel()
	}
}

// LimiterStatus reports import slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// cleanup removes the import from tracking after a delay.
func (s *Service) cleanup(id string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.imports, id)
		s.mu.Unlock()
	})
}

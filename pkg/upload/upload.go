// Package upload drives a run: it authenticates once, then creates each
// resource in order and records every rejected request.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	cdrloader "github.com/gofhir/cdrloader"
	"github.com/gofhir/cdrloader/pkg/auth"
	"github.com/gofhir/cdrloader/pkg/cdr"
	"github.com/gofhir/cdrloader/pkg/failures"
	"github.com/gofhir/cdrloader/pkg/resource"
)

// Exit codes of a run.
const (
	ExitOK       = 0
	ExitFatal    = 1
	ExitFailures = 2
)

// State is the phase of a run.
type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateUploading
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateUploading:
		return "uploading"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Creator creates a resource in the repository.
type Creator interface {
	Create(ctx context.Context, token string, r resource.Resource) (*cdr.Response, error)
}

// Result is the outcome of one upload.
type Result struct {
	Resource   resource.Resource
	StatusCode int
	// ID is the server assigned id of a created resource.
	ID       string
	Err      error
	Duration time.Duration
}

// OK reports whether the resource was created.
func (r Result) OK() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Summary describes a finished run.
type Summary struct {
	RunID string
	Total int
	// Attempted is lower than Total only when the run was interrupted.
	Attempted       int
	Created         int
	Failed          int
	TransportFailed int
	Duration        time.Duration
	Results         []Result
	Metrics         cdrloader.Snapshot
}

// ExitCode maps the summary to a process exit code.
func (s *Summary) ExitCode() int {
	if s.Failed > 0 {
		return ExitFailures
	}
	return ExitOK
}

// SinkOpener opens the failure sink. It is called once authentication succeeded,
// so a run that cannot authenticate leaves an existing artifact untouched.
type SinkOpener func() (failures.Sink, error)

// Orchestrator uploads an ordered resource sequence. An Orchestrator runs once.
type Orchestrator struct {
	authn    auth.Authenticator
	creator  Creator
	openSink SinkOpener
	logger   *zap.Logger
	metrics  *cdrloader.Metrics
	limiter  *rate.Limiter
	runID    string

	state   atomic.Int32
	current atomic.Int64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *cdrloader.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithRate paces uploads to perSecond requests per second. Zero disables pacing.
func WithRate(perSecond float64) Option {
	return func(o *Orchestrator) {
		if perSecond > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			o.limiter = nil
		}
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		o.runID = id
	}
}

// New creates an orchestrator. The sink returned by openSink is owned by the
// orchestrator and closed when Run returns.
func New(authn auth.Authenticator, creator Creator, openSink SinkOpener, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		authn:    authn,
		creator:  creator,
		openSink: openSink,
		logger:   zap.NewNop(),
		metrics:  cdrloader.NewMetrics(),
		runID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("run_id", o.runID))
	return o
}

// RunID returns the id of the run.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// State returns the current phase.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Current returns the index of the resource being uploaded, or -1 before the
// first upload.
func (o *Orchestrator) Current() int {
	return int(o.current.Load()) - 1
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	o.logger.Debug("state changed", zap.Stringer("state", s))
}

// Run authenticates and uploads ordered, one resource at a time.
//
// An authentication failure returns *auth.Error before any upload and before
// the failure sink is opened; the state stays unauthenticated. Rejected and
// unanswered uploads are recorded and do not stop the run. When ctx is
// cancelled the run stops before the next upload; the summary and the
// artifact still cover everything attempted so far.
func (o *Orchestrator) Run(ctx context.Context, ordered []resource.Resource) (summary *Summary, err error) {
	start := time.Now()
	summary = &Summary{
		RunID:   o.runID,
		Total:   len(ordered),
		Results: make([]Result, 0, len(ordered)),
	}

	token, err := o.authn.Token(ctx)
	if err != nil {
		o.logger.Error("authentication failed", zap.Error(err))
		summary.Duration = time.Since(start)
		return summary, err
	}
	o.setState(StateAuthenticated)
	o.logger.Info("authenticated", zap.Int("resources", len(ordered)))

	sink, err := o.openSink()
	if err != nil {
		summary.Duration = time.Since(start)
		return summary, fmt.Errorf("failed to open failure artifact: %w", err)
	}

	defer func() {
		if closeErr := sink.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to write failure artifact: %w", closeErr))
		}
		summary.Duration = time.Since(start)
		summary.Metrics = o.metrics.Snapshot()
		o.setState(StateDone)
	}()

	var sinkErr error
	for i, r := range ordered {
		if err := o.wait(ctx); err != nil {
			o.logger.Warn("upload interrupted",
				zap.Int("attempted", summary.Attempted),
				zap.Int("total", summary.Total))
			return summary, errors.Join(sinkErr,
				fmt.Errorf("interrupted after %d of %d resources: %w", summary.Attempted, summary.Total, err))
		}

		o.current.Store(int64(i) + 1)
		if i == 0 {
			o.setState(StateUploading)
		}

		res, rec := o.upload(ctx, token, r)
		summary.Attempted++
		summary.Results = append(summary.Results, res)

		switch {
		case res.OK():
			summary.Created++
		case res.Err != nil && res.StatusCode == 0:
			summary.Failed++
			summary.TransportFailed++
		default:
			summary.Failed++
		}

		if rec != nil {
			if err := sink.Record(*rec); err != nil && sinkErr == nil {
				o.logger.Error("failed to record failure", zap.Error(err))
				sinkErr = fmt.Errorf("failed to record failure: %w", err)
			}
		}
	}

	o.logger.Info("upload finished",
		zap.Int("created", summary.Created),
		zap.Int("failed", summary.Failed),
		zap.Int("total", summary.Total))
	return summary, sinkErr
}

func (o *Orchestrator) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.limiter == nil {
		return nil
	}
	return o.limiter.Wait(ctx)
}

// upload creates r and returns the failure record to store, if any.
func (o *Orchestrator) upload(ctx context.Context, token string, r resource.Resource) (Result, *failures.Record) {
	start := time.Now()
	resp, err := o.creator.Create(ctx, token, r)
	res := Result{Resource: r, Err: err, Duration: time.Since(start)}

	if err != nil {
		rec := &failures.Record{Request: r.Raw, Error: err.Error()}
		transport := resp == nil
		if !transport {
			// The status arrived but the body was cut short.
			res.StatusCode = resp.StatusCode
			rec.Response = resp.Body
		}
		o.metrics.RecordUpload(r.Type, res.Duration, false, transport)
		o.logger.Error(fmt.Sprintf("Failed to create %s with url: %s.", r.Type, urlOrUnknown(r)),
			zap.Int("status", res.StatusCode), zap.Error(err))
		return res, rec
	}

	res.StatusCode = resp.StatusCode
	if resp.Duration > 0 {
		res.Duration = resp.Duration
	}

	if resp.OK() {
		res.ID = resp.ID()
		o.metrics.RecordUpload(r.Type, res.Duration, true, false)
		o.logger.Info(fmt.Sprintf("Successfully created %s with id: %s", r.URL, res.ID),
			zap.Int("status", resp.StatusCode))
		return res, nil
	}

	o.metrics.RecordUpload(r.Type, res.Duration, false, false)
	o.logger.Warn(fmt.Sprintf("Failed to create %s with url: %s.", r.Type, urlOrUnknown(r)),
		zap.Int("status", resp.StatusCode))
	return res, &failures.Record{Request: r.Raw, Response: resp.Body}
}

func urlOrUnknown(r resource.Resource) string {
	if r.URL == "" {
		return "unknown"
	}
	return r.URL
}

package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jdillenkofer/fixity/internal/dispatcher"
	"github.com/jdillenkofer/fixity/internal/fixity"
	"github.com/jdillenkofer/fixity/internal/verifier"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrAlreadyRun = errors.New("runner has already been run")

type State string

const (
	Idle      State = "IDLE"
	Running   State = "RUNNING"
	Exhausted State = "EXHAUSTED"
	Aborted   State = "ABORTED"
)

// Recorder persists a single check result.
type Recorder interface {
	RecordResult(ctx context.Context, result *fixity.Result) error
}

// Runner drains a candidate source, verifying and recording every id it yields.
// A Runner is single use.
type Runner struct {
	mu       sync.Mutex
	source   dispatcher.CandidateSource
	verifier verifier.Verifier
	recorder Recorder
	now      func() time.Time
	state    State
	tracer   trace.Tracer
}

func New(source dispatcher.CandidateSource, v verifier.Verifier, recorder Recorder) *Runner {
	return NewWithClock(source, v, recorder, time.Now)
}

func NewWithClock(source dispatcher.CandidateSource, v verifier.Verifier, recorder Recorder, now func() time.Time) *Runner {
	return &Runner{
		source:   source,
		verifier: v,
		recorder: recorder,
		now:      now,
		state:    Idle,
		tracer:   otel.Tracer("internal/checker"),
	}
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

// Run processes candidates until the source is exhausted or a failure aborts the run.
// The returned report is never nil; the error is non-nil only for aborted runs.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	if r.state != Idle {
		r.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	r.state = Running
	r.mu.Unlock()

	ctx, span := r.tracer.Start(ctx, "Runner.Run")
	defer span.End()

	report := newReport(r.now())
	slog.Info("Starting fixity check run")
	err := r.run(ctx, report)
	report.End = r.now()
	if err != nil {
		report.State = Aborted
		report.Error = err.Error()
		r.setState(Aborted)
		span.SetStatus(codes.Error, err.Error())
		slog.Error(fmt.Sprintf("Fixity check run aborted after %d bitstreams: %s", report.Processed, err))
	} else {
		report.State = Exhausted
		r.setState(Exhausted)
		slog.Info(fmt.Sprintf("Fixity check run finished: %d bitstreams processed", report.Processed))
	}
	span.SetAttributes(
		attribute.String("checker.state", string(report.State)),
		attribute.Int("checker.processed", report.Processed),
	)
	return report, err
}

func (r *Runner) run(ctx context.Context, report *Report) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, ok, err := r.source.Next(ctx)
		if err != nil {
			return fmt.Errorf("could not dispatch next bitstream: %w", err)
		}
		if !ok {
			return nil
		}
		if err := r.process(ctx, id, report); err != nil {
			return err
		}
	}
}

func (r *Runner) process(ctx context.Context, id fixity.BitstreamId, report *Report) error {
	windowStart := r.now()
	verification, err := r.verifier.Verify(ctx, id)
	if err != nil {
		return fmt.Errorf("could not verify bitstream %s: %w", id.String(), err)
	}
	windowEnd := r.now()
	result := &fixity.Result{
		BitstreamId:  id,
		Verification: *verification,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
	}
	if err := r.recorder.RecordResult(ctx, result); err != nil {
		return fmt.Errorf("could not record result for bitstream %s: %w", id.String(), err)
	}
	slog.Debug(fmt.Sprintf("Bitstream %s: %s", id.String(), verification.Outcome))
	report.add(id, verification.Outcome)
	return nil
}

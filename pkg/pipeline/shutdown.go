package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/fsm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DrainResult records what draining one channel removed
type DrainResult struct {
	Channel string `json:"channel"`
	Items   int    `json:"items"`
	Error   string `json:"error,omitempty"`
}

// ShutdownReport describes a completed shutdown
type ShutdownReport struct {
	// Drained lists channels in the order they were drained.
	Drained  []DrainResult `json:"drained"`
	Duration time.Duration `json:"duration"`
	Joined   int           `json:"joined"`
	Errors   []string      `json:"errors,omitempty"`
	started  time.Time
}

// lifecycle returns the pipeline transition table. Exit may be requested
// before Start. Exit in EXIT_REQUESTED retries the request after a failed
// attempt; a repeated exit after JOINED is ignored.
func (p *Pipeline) lifecycle() []fsm.Transition {
	return []fsm.Transition{
		{From: StateIdle, Event: eventStart, To: StateRunning},
		{From: StateIdle, Event: eventExit, To: StateExitRequested},
		{From: StateRunning, Event: eventExit, To: StateExitRequested},
		{From: StateExitRequested, Event: eventExit, To: StateExitRequested, Do: p.requestExit},
		{From: StateExitRequested, Event: eventDrain, To: StateDraining},
		{From: StateDraining, Event: eventJoin, To: StateJoined},
	}
}

func (p *Pipeline) newStateMachine(onTransition func(from, to fsm.State)) (*fsm.StateMachine, error) {
	sm, err := fsm.New(p.name, StateIdle, p.lifecycle()...)
	if err != nil {
		return nil, err
	}
	p.state.Store(StateIdle)

	// JOINED is published by joinAll once every pool has returned.
	for _, st := range []fsm.State{StateRunning, StateExitRequested, StateDraining} {
		sm.OnEnter(st, p.enter)
	}
	sm.OnEnter(StateExitRequested, p.requestExit)
	sm.OnEnter(StateDraining, p.drainAll)
	sm.OnEnter(StateJoined, p.joinAll)
	sm.Ignore(StateJoined, eventExit)

	sm.OnTransition(func(tc fsm.TransitionContext) {
		p.logger.Infof("pipeline %s -> %s", tc.From, tc.To)
		if onTransition != nil {
			onTransition(tc.From, tc.To)
		}
	})
	return sm, nil
}

// Shutdown runs the shutdown protocol: request exit, drain every channel
// once in reverse creation order, then join every pool. Draining sinks
// first frees the space producers are blocked on, so each blocked worker
// gets to observe the exit flag. Join has no timeout; a worker that never
// returns keeps Shutdown waiting.
//
// If the exit request cannot be published, Shutdown returns the error
// without draining or joining, since no worker would ever stop; calling
// Shutdown again retries the request. Calling Shutdown again after it
// completed returns the first report.
func (p *Pipeline) Shutdown(ctx context.Context) (ShutdownReport, error) {
	if p.State() == StateJoined {
		return p.lastReport(), nil
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.shutdown")
	defer span.End()
	span.SetAttributes(
		attribute.String("pipeline.name", p.name),
		attribute.String("pipeline.run_id", p.runID),
	)

	report := &ShutdownReport{started: time.Now()}
	var errs []error
	for _, ev := range []fsm.Event{eventExit, eventDrain, eventJoin} {
		if _, err := p.sm.Fire(ctx, ev, report); err != nil {
			if errors.Is(err, fsm.ErrNoTransition) || ev == eventExit {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				report.Duration = time.Since(report.started)
				report.Errors = append(report.Errors, err.Error())
				return *report, fmt.Errorf("shutdown: %w", err)
			}
			errs = append(errs, err)
		}
	}
	report.Duration = time.Since(report.started)

	err := errors.Join(errs...)
	for _, e := range errs {
		report.Errors = append(report.Errors, e.Error())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "shutdown completed with errors")
	}

	p.mu.Lock()
	p.report = report
	p.mu.Unlock()

	p.logger.Infof("shutdown complete in %s", report.Duration)
	return *report, err
}

// enter publishes the new state before the state's own entry actions run.
// The machine stays locked through drain and join, so readers use this copy.
// JOINED is the exception, see joinAll.
func (p *Pipeline) enter(_ context.Context, tc fsm.TransitionContext) error {
	p.state.Store(tc.To)
	return nil
}

func (p *Pipeline) lastReport() ShutdownReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.report == nil {
		return ShutdownReport{}
	}
	return *p.report
}

func (p *Pipeline) requestExit(ctx context.Context, _ fsm.TransitionContext) error {
	_, span := p.tracer.Start(ctx, "pipeline.request_exit")
	defer span.End()

	if err := p.controller.RequestExit(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("request exit: %w", err)
	}
	return nil
}

// drainAll drains each channel exactly once, last created first.
func (p *Pipeline) drainAll(ctx context.Context, tc fsm.TransitionContext) error {
	report, _ := tc.Data.(*ShutdownReport)
	channels := p.Channels()

	var errs []error
	for i := len(channels) - 1; i >= 0; i-- {
		ch := channels[i]

		cctx, span := p.tracer.Start(ctx, "pipeline.drain", withChannel(ch.Name()))
		items, err := ch.Drain(cctx)
		span.SetAttributes(attribute.Int("pipeline.drained_items", len(items)))

		result := DrainResult{Channel: ch.Name(), Items: len(items)}
		if err != nil {
			span.RecordError(err)
			result.Error = err.Error()
			errs = append(errs, fmt.Errorf("drain %s: %w", ch.Name(), err))
			p.logger.Errorf("drain %s: %v", ch.Name(), err)
		} else {
			p.logger.Debugf("drained %s: %d item(s)", ch.Name(), len(items))
		}
		span.End()

		if report != nil {
			report.Drained = append(report.Drained, result)
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) joinAll(ctx context.Context, tc fsm.TransitionContext) error {
	report, _ := tc.Data.(*ShutdownReport)
	_, span := p.tracer.Start(ctx, "pipeline.join")
	defer span.End()

	var errs []error
	for _, pool := range p.Pools() {
		if err := pool.Join(); err != nil {
			errs = append(errs, fmt.Errorf("join %s: %w", pool.Spec().Name(), err))
			p.logger.Errorf("join %s: %v", pool.Spec().Name(), err)
		}
		if report != nil {
			report.Joined++
		}
	}
	// published only now so status never reports JOINED while a pool is
	// still being waited on
	p.state.Store(tc.To)

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

package saga

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joeycumines/resilience/rerr"
)

// Run executes steps forward in declaration order. On the first step
// failure it wraps the cause as rerr.SagaStepFailed; on a cancelled
// context observed between steps the Outcome's error is rerr.ErrCancelled.
// Either way it then compensates every already-completed step in reverse
// order.
func (s *Saga) Run(ctx context.Context, steps []Step) Outcome {
	runID := uuid.NewString()
	start := s.clock.Now()

	s.mu.Lock()
	s.stats.TotalRuns++
	s.mu.Unlock()

	var executed []ExecutedStep
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return s.compensate(ctx, runID, start, executed, rerr.ErrCancelled)
		}

		val, err := step.Forward(ctx)
		if err != nil {
			s.bus.Emit(Event{Kind: StepFailed, RunID: runID, StepName: step.Name, Err: err})
			return s.compensate(ctx, runID, start, executed, rerr.NewSagaStepFailed(step.Name, err))
		}
		executed = append(executed, ExecutedStep{Name: step.Name, Result: val, compensate: step.Compensate})
		s.bus.Emit(Event{Kind: StepExecuted, RunID: runID, StepName: step.Name})
	}

	s.mu.Lock()
	s.stats.SuccessfulRuns++
	s.mu.Unlock()

	var result any
	if n := len(executed); n > 0 {
		result = executed[n-1].Result
	}
	return Outcome{
		RunID:         runID,
		Success:       true,
		Result:        result,
		Duration:      s.clock.Now().Sub(start),
		ExecutedSteps: executed,
	}
}

// compensate walks executed in reverse order, running the Compensate
// closure each ExecutedStep captured during the forward phase and
// passing it the result that step produced.
func (s *Saga) compensate(ctx context.Context, runID string, start time.Time, executed []ExecutedStep, cause error) Outcome {
	compCtx, cancel := s.withCompensationDeadline(ctx)
	defer cancel()
	deadline := s.clock.Now().Add(s.cfg.CompensationTimeout)

	var compensated []ExecutedStep
	var compErrs []*rerr.CompensationError
	abandoning := false

	for i := len(executed) - 1; i >= 0; i-- {
		step := executed[i]

		if !abandoning && (compCtx.Err() != nil ||
			(s.cfg.CompensationTimeout > 0 && !s.clock.Now().Before(deadline))) {
			abandoning = true
		}
		if abandoning {
			if step.compensate != nil {
				ce := &rerr.CompensationError{StepName: step.Name, Kind: rerr.CompensationAbandoned}
				compErrs = append(compErrs, ce)
				s.bus.Emit(Event{Kind: CompensationFailed, RunID: runID, StepName: step.Name, Err: ce})
			}
			continue
		}

		if step.compensate == nil {
			continue
		}

		if err := step.compensate(compCtx, step.Result); err != nil {
			ce := &rerr.CompensationError{StepName: step.Name, Kind: rerr.CompensationFailed, Cause: err}
			compErrs = append(compErrs, ce)
			s.bus.Emit(Event{Kind: CompensationFailed, RunID: runID, StepName: step.Name, Err: ce})
			if !s.cfg.ContinueOnCompensationFailure {
				break
			}
			continue
		}
		compensated = append(compensated, step)
		s.bus.Emit(Event{Kind: StepCompensated, RunID: runID, StepName: step.Name})
	}

	s.mu.Lock()
	s.stats.FailedRuns++
	s.stats.CompensatedSteps += uint64(len(compensated))
	s.stats.CompensationFailures += uint64(len(compErrs))
	s.mu.Unlock()

	return Outcome{
		RunID:              runID,
		Success:            false,
		Err:                cause,
		Duration:           s.clock.Now().Sub(start),
		ExecutedSteps:      executed,
		CompensatedSteps:   compensated,
		CompensationErrors: compErrs,
	}
}

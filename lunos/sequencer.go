package lunos

import (
	"context"
	"sync"
	"time"
)

// Sequencer executes relay step sequences against one W1/W2 pair. A
// mutex serializes concurrent invocations on the same pair: interleaving
// steps from two operations would put an undefined waveform on the
// relay lines. Distinct pairs get distinct sequencers and run freely in
// parallel.
type Sequencer struct {
	mu     sync.Mutex
	coding *Coding
	w1     Switch
	w2     Switch

	// hold suspends between steps; replaced in tests.
	hold func(d time.Duration)
}

// NewSequencer builds a sequencer for one controller instance. The
// switches are caller-owned; the sequencer only actuates them.
func NewSequencer(coding *Coding, w1, w2 Switch) *Sequencer {
	return &Sequencer{
		coding: coding,
		w1:     w1,
		w2:     w2,
		hold:   time.Sleep,
	}
}

// Execute resolves the operation against the coding table and runs the
// resulting steps in order. Each step sets one relay and then holds for
// the step's duration (floored at SettleDelay) before the next step is
// issued.
//
// An unsupported operation fails before any relay is touched. A failed
// relay write aborts the sequence at that step: continuing after a miss
// could itself trigger an unintended mode, and no retry is attempted
// here since only re-running the whole sequence is safe. Cancellation
// via ctx is honored at step boundaries only; the current step's hold
// always completes in full so a relay is never left mid-settle.
func (s *Sequencer) Execute(ctx context.Context, op Operation) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	steps, err := s.coding.Sequence(op)
	if err != nil {
		return Result{
			Operation:  op,
			Outcome:    OutcomeFailed,
			FailedStep: -1,
			Err:        err,
			Elapsed:    time.Since(start),
		}
	}

	for i, step := range steps {
		if ctx.Err() != nil {
			return Result{
				Operation:      op,
				Outcome:        OutcomeCancelled,
				StepsCompleted: i,
				FailedStep:     -1,
				Err:            ErrSequenceCancelled,
				Elapsed:        time.Since(start),
			}
		}

		if err := s.setRelay(ctx, step); err != nil {
			return Result{
				Operation:      op,
				Outcome:        OutcomeFailed,
				StepsCompleted: i,
				FailedStep:     i,
				Err:            &RelayWriteError{Step: i, Relay: step.Relay, Err: err},
				Elapsed:        time.Since(start),
			}
		}

		hold := step.Hold
		if hold < SettleDelay {
			hold = SettleDelay
		}
		s.hold(hold)
	}

	return Result{
		Operation:      op,
		Outcome:        OutcomeComplete,
		StepsCompleted: len(steps),
		FailedStep:     -1,
		Elapsed:        time.Since(start),
	}
}

func (s *Sequencer) setRelay(ctx context.Context, step RelayStep) error {
	sw := s.w1
	if step.Relay == W2 {
		sw = s.w2
	}
	if step.On {
		return sw.TurnOn(ctx)
	}
	return sw.TurnOff(ctx)
}

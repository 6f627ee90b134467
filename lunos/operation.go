// Package lunos drives a LUNOS Universal Controller through its two
// low-voltage relay inputs W1 and W2. Every command the controller
// understands is encoded as a timed on/off pattern on those two lines.
package lunos

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Relay identifies one of the controller's two relay inputs.
type Relay int

const (
	W1 Relay = iota
	W2
)

func (r Relay) String() string {
	if r == W1 {
		return "W1"
	}
	return "W2"
}

// Speed is a logical fan speed. Which speeds exist depends on the
// controller coding: 3-speed codings include off, 4-speed codings trade
// off for turbo.
type Speed string

const (
	SpeedOff    Speed = "off"
	SpeedLow    Speed = "low"
	SpeedMedium Speed = "medium"
	SpeedHigh   Speed = "high"
	SpeedTurbo  Speed = "turbo"
)

// Operation is an externally requested intent, resolved against the
// coding table to a relay step sequence.
type Operation string

const (
	OpTurnOff             Operation = "turn_off"
	OpSetSpeedLow         Operation = "set_speed_low"
	OpSetSpeedMedium      Operation = "set_speed_medium"
	OpSetSpeedHigh        Operation = "set_speed_high"
	OpSetSpeedTurbo       Operation = "set_speed_turbo"
	OpSummerVentOn        Operation = "summer_vent_on"
	OpSummerVentOff       Operation = "summer_vent_off"
	OpClearFilterReminder Operation = "clear_filter_reminder"
)

// OperationForSpeed maps a speed to the operation that selects it.
func OperationForSpeed(speed Speed) (Operation, error) {
	switch speed {
	case SpeedOff:
		return OpTurnOff, nil
	case SpeedLow:
		return OpSetSpeedLow, nil
	case SpeedMedium:
		return OpSetSpeedMedium, nil
	case SpeedHigh:
		return OpSetSpeedHigh, nil
	case SpeedTurbo:
		return OpSetSpeedTurbo, nil
	default:
		return "", fmt.Errorf("unknown fan speed %q", speed)
	}
}

// RelayStep is one element of a command encoding: set the named relay to
// the given state, then hold both relays unchanged for Hold before the
// next step may be issued.
type RelayStep struct {
	Relay Relay
	On    bool
	Hold  time.Duration
}

// SettleDelay is the minimum time a relay state must be held before the
// other relay may change. Flipping a relay again within this window is
// itself a command to the controller (filter reminder clear on W1,
// summer ventilation on W2), so shorter holds silently select the wrong
// mode. Treated as a hard floor, not a tunable.
const SettleDelay = 3 * time.Second

// Switch is a caller-owned binary relay handle. Implementations live
// outside this package; the sequencer only actuates them and never
// manages their lifecycle.
type Switch interface {
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	// State reports the current relay state best-effort. The second
	// return is false when the state is not (yet) known.
	State(ctx context.Context) (bool, bool, error)
}

// ErrUnsupportedOperation is returned when the requested operation has
// no encoding for the controller coding in use. Reported before any
// relay is touched.
var ErrUnsupportedOperation = errors.New("operation not supported by controller coding")

// ErrSequenceCancelled is returned when a caller cancelled an in-flight
// sequence. The sequence stopped at a step boundary; the result carries
// how many steps completed.
var ErrSequenceCancelled = errors.New("relay sequence cancelled")

// RelayWriteError reports a relay write that failed mid-sequence. The
// sequence was aborted at Step; re-running the whole operation is the
// only safe retry, individual steps are not idempotent.
type RelayWriteError struct {
	Step  int
	Relay Relay
	Err   error
}

func (e *RelayWriteError) Error() string {
	return fmt.Sprintf("relay %v write failed at step %d: %v", e.Relay, e.Step, e.Err)
}

func (e *RelayWriteError) Unwrap() error {
	return e.Err
}

// Outcome classifies a sequence execution.
type Outcome string

const (
	OutcomeComplete  Outcome = "complete"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Result is the report of one Execute call.
type Result struct {
	Operation Operation
	Outcome   Outcome
	// StepsCompleted counts relay writes that were issued and held for
	// their full duration.
	StepsCompleted int
	// FailedStep is the index of the step whose relay write failed, or
	// -1 when no write failed.
	FailedStep int
	Err        error
	Elapsed    time.Duration
}

// Completed reports whether the full sequence ran.
func (r Result) Completed() bool {
	return r.Outcome == OutcomeComplete
}

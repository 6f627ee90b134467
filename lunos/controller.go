package lunos

import (
	"context"
	"fmt"
	"time"
)

// MinModeChangeInterval is how long the controller must sit untouched
// after the last relay change before summer ventilation may be disabled.
// Disabling earlier re-triggers the mode instead of clearing it.
const MinModeChangeInterval = 15 * time.Second

// VentilationMode describes how air moves through the fan, independent
// of speed.
type VentilationMode string

const (
	VentilationNormal VentilationMode = "normal"
	VentilationSummer VentilationMode = "summer"
)

// Controller owns one W1/W2 relay pair and tracks the state the
// sequencer last commanded. The LUNOS hardware has no feedback channel,
// so the tracked speed is authoritative only for changes made through
// this controller; externally flipped relays are picked up by
// RefreshSpeed at the caller's poll interval.
type Controller struct {
	name         string
	coding       *Coding
	fanCount     int
	defaultSpeed Speed

	seq *Sequencer
	w1  Switch
	w2  Switch

	// opMu serializes whole logical operations, including the speed
	// restore that follows a mode toggle.
	opMu chan struct{}

	speed      Speed
	ventMode   VentilationMode
	lastChange time.Time

	// wait suspends for the summer ventilation disable throttle;
	// replaced in tests.
	wait func(d time.Duration)
}

// NewController validates the configuration and builds a controller for
// one relay pair. fanCount 0 means the coding's default; defaultSpeed ""
// means medium.
func NewController(name string, coding *Coding, fanCount int, defaultSpeed Speed, w1, w2 Switch) (*Controller, error) {
	if coding == nil {
		return nil, fmt.Errorf("controller %q: coding is required", name)
	}

	if fanCount == 0 {
		fanCount = coding.DefaultFanCount
	}
	if fanCount < 1 || fanCount > 4 {
		return nil, fmt.Errorf("controller %q: fan count %d out of range 1-4", name, fanCount)
	}

	if defaultSpeed == "" {
		defaultSpeed = SpeedMedium
	}
	if _, ok := coding.speedPairs[defaultSpeed]; !ok {
		return nil, fmt.Errorf("controller %q: default speed %q not available on coding %s", name, defaultSpeed, coding.Slug)
	}

	c := &Controller{
		name:         name,
		coding:       coding,
		fanCount:     fanCount,
		defaultSpeed: defaultSpeed,
		seq:          NewSequencer(coding, w1, w2),
		w1:           w1,
		w2:           w2,
		opMu:         make(chan struct{}, 1),
		ventMode:     VentilationNormal,
		wait:         time.Sleep,
	}
	return c, nil
}

func (c *Controller) Name() string    { return c.name }
func (c *Controller) Coding() *Coding { return c.coding }

func (c *Controller) lock() {
	c.opMu <- struct{}{}
}

func (c *Controller) unlock() {
	<-c.opMu
}

// SetSpeed commands the fan to the given speed.
func (c *Controller) SetSpeed(ctx context.Context, speed Speed) Result {
	op, err := OperationForSpeed(speed)
	if err != nil {
		return Result{Outcome: OutcomeFailed, FailedStep: -1, Err: err}
	}

	c.lock()
	defer c.unlock()

	return c.applySpeed(ctx, op, speed)
}

// TurnOn restores the last commanded speed, or the configured default
// when no speed was ever commanded.
func (c *Controller) TurnOn(ctx context.Context) Result {
	c.lock()
	defer c.unlock()

	speed := c.speed
	if speed == "" || speed == SpeedOff {
		speed = c.defaultSpeed
	}

	op, err := OperationForSpeed(speed)
	if err != nil {
		return Result{Outcome: OutcomeFailed, FailedStep: -1, Err: err}
	}
	return c.applySpeed(ctx, op, speed)
}

// TurnOff commands the fan off. Four-speed codings have no off state
// and fail with ErrUnsupportedOperation.
func (c *Controller) TurnOff(ctx context.Context) Result {
	c.lock()
	defer c.unlock()

	return c.applySpeed(ctx, OpTurnOff, SpeedOff)
}

// applySpeed runs a speed operation and records the newly commanded
// speed on success. Callers hold opMu.
func (c *Controller) applySpeed(ctx context.Context, op Operation, speed Speed) Result {
	res := c.seq.Execute(ctx, op)
	if res.Completed() {
		c.speed = speed
		c.lastChange = time.Now()
	} else if res.StepsCompleted > 0 {
		// Some relay writes landed, the pair encoding is no longer
		// trustworthy until the next refresh.
		c.speed = ""
		c.lastChange = time.Now()
	}
	return res
}

// EnableSummerVentilation toggles the summer ventilation mode on and
// restores the speed encoding afterwards. Only valid on codings that
// support the mode; fails before any relay write otherwise.
func (c *Controller) EnableSummerVentilation(ctx context.Context) Result {
	c.lock()
	defer c.unlock()

	res := c.seq.Execute(ctx, OpSummerVentOn)
	if res.StepsCompleted > 0 {
		c.lastChange = time.Now()
	}
	if !res.Completed() {
		return res
	}

	c.ventMode = VentilationSummer
	return c.restoreSpeed(ctx, res)
}

// DisableSummerVentilation clears summer ventilation mode. The
// controller latches W2 activity for a while, so the call first waits
// out the minimum interval since the last relay change.
func (c *Controller) DisableSummerVentilation(ctx context.Context) Result {
	c.lock()
	defer c.unlock()

	c.throttle(MinModeChangeInterval)

	res := c.seq.Execute(ctx, OpSummerVentOff)
	if res.StepsCompleted > 0 {
		c.lastChange = time.Now()
	}
	if !res.Completed() {
		return res
	}

	c.ventMode = VentilationNormal
	return c.restoreSpeed(ctx, res)
}

// ClearFilterReminder clears the filter change reminder light and
// restores the speed encoding afterwards.
func (c *Controller) ClearFilterReminder(ctx context.Context) Result {
	c.lock()
	defer c.unlock()

	res := c.seq.Execute(ctx, OpClearFilterReminder)
	if res.StepsCompleted > 0 {
		c.lastChange = time.Now()
	}
	if !res.Completed() {
		return res
	}

	return c.restoreSpeed(ctx, res)
}

// restoreSpeed re-issues the last commanded speed after a mode toggle
// left the relay pair in the train's end state. When no speed is known
// the toggle result is returned as-is and the pair stays where the
// train left it until the next explicit speed command.
func (c *Controller) restoreSpeed(ctx context.Context, toggle Result) Result {
	if c.speed == "" {
		return toggle
	}

	op, err := OperationForSpeed(c.speed)
	if err != nil {
		return toggle
	}

	res := c.applySpeed(ctx, op, c.speed)
	if !res.Completed() {
		return res
	}
	return toggle
}

// throttle waits until at least min has passed since the last relay
// change commanded through this controller.
func (c *Controller) throttle(min time.Duration) {
	if c.lastChange.IsZero() {
		return
	}
	passed := time.Since(c.lastChange)
	if passed < min {
		c.wait(min - passed)
	}
}

// RefreshSpeed probes both relay states best-effort and re-derives the
// fan speed from the coding's pair encoding. Changes made behind the
// controller's back (someone flipping the physical switches) surface
// here, one poll interval late. Returns the derived speed and whether
// it differed from the tracked one.
//
// The probe runs under the operation lock: sampling while a sequence is
// mid-flight would read a transient pair and overwrite the speed the
// sequencer just set. Both switch backends answer State from a cache,
// so holding the lock across the probe is cheap; ctx bounds the wait
// for an in-flight sequence to finish.
func (c *Controller) RefreshSpeed(ctx context.Context) (Speed, bool, error) {
	select {
	case c.opMu <- struct{}{}:
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
	defer c.unlock()

	w1, known1, err := c.w1.State(ctx)
	if err != nil {
		return "", false, fmt.Errorf("probing W1: %w", err)
	}
	w2, known2, err := c.w2.State(ctx)
	if err != nil {
		return "", false, fmt.Errorf("probing W2: %w", err)
	}
	if !known1 || !known2 {
		return "", false, nil
	}

	speed, ok := c.coding.SpeedForStates(w1, w2)
	if !ok {
		return "", false, nil
	}

	changed := speed != c.speed
	c.speed = speed
	return speed, changed, nil
}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	Name            string          `json:"name"`
	Coding          string          `json:"coding"`
	Model           string          `json:"model"`
	FanCount        int             `json:"fan_count"`
	Speed           Speed           `json:"speed,omitempty"`
	IsOn            bool            `json:"is_on"`
	VentilationMode VentilationMode `json:"ventilation_mode"`
	CFM             float64         `json:"cfm,omitempty"`
	CMH             float64         `json:"cmh,omitempty"`
	Watts           float64         `json:"watts,omitempty"`
	DB              float64         `json:"db,omitempty"`
	LastChange      time.Time       `json:"last_change,omitempty"`
}

// Snapshot reports the last known commanded state plus the airflow
// figures for it, scaled by the configured fan count relative to the
// coding's default pair count.
func (c *Controller) Snapshot() Status {
	c.lock()
	defer c.unlock()

	st := Status{
		Name:            c.name,
		Coding:          c.coding.Slug,
		Model:           c.coding.Name,
		FanCount:        c.fanCount,
		Speed:           c.speed,
		IsOn:            c.isOn(),
		VentilationMode: c.ventMode,
		LastChange:      c.lastChange,
	}

	if behavior, ok := c.coding.Behavior[c.speed]; ok {
		multiplier := float64(c.fanCount) / float64(c.coding.DefaultFanCount)
		st.CFM = behavior.CFM * multiplier
		st.CMH = st.CFM * CFMToCMH
		st.Watts = behavior.Watts * multiplier
		st.DB = behavior.DB
	}

	return st
}

func (c *Controller) isOn() bool {
	if c.speed == "" {
		return false
	}
	// Four-speed codings have no off state, the fans always run.
	if c.coding.FourSpeed {
		return true
	}
	return c.speed != SpeedOff
}

// Speed returns the last known commanded speed, empty when unknown.
func (c *Controller) Speed() Speed {
	c.lock()
	defer c.unlock()
	return c.speed
}

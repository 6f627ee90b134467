package lunos

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestController(t *testing.T, slug string, fanCount int, defaultSpeed Speed) (*Controller, *fakeSwitch, *fakeSwitch, *callRecorder) {
	t.Helper()

	coding, err := CodingBySlug(slug)
	if err != nil {
		t.Fatalf("CodingBySlug(%q): %v", slug, err)
	}

	w1, w2, rec := newFakePair()
	c, err := NewController("test", coding, fanCount, defaultSpeed, w1, w2)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	c.seq.hold = func(time.Duration) {}
	c.wait = func(time.Duration) {}
	return c, w1, w2, rec
}

func TestNewControllerValidation(t *testing.T) {
	coding, _ := CodingBySlug("e2")
	w1, w2, _ := newFakePair()

	if _, err := NewController("x", coding, 5, "", w1, w2); err == nil {
		t.Fatalf("expected error for fan count 5")
	}
	if _, err := NewController("x", coding, 0, SpeedTurbo, w1, w2); err == nil {
		t.Fatalf("expected error for turbo default on 3-speed coding")
	}

	c, err := NewController("x", coding, 0, "", w1, w2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fanCount != coding.DefaultFanCount || c.defaultSpeed != SpeedMedium {
		t.Fatalf("defaults not applied: count=%d speed=%v", c.fanCount, c.defaultSpeed)
	}
}

func TestSetSpeedUpdatesSnapshot(t *testing.T) {
	c, w1, w2, _ := newTestController(t, "e2-usa", 0, "")

	res := c.SetSpeed(context.Background(), SpeedHigh)
	if !res.Completed() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !w1.state || !w2.state {
		t.Fatalf("high should set both relays on, got W1=%v W2=%v", w1.state, w2.state)
	}

	st := c.Snapshot()
	if st.Speed != SpeedHigh || !st.IsOn {
		t.Fatalf("unexpected snapshot: %+v", st)
	}
	if st.CFM != 20 {
		t.Fatalf("expected 20 cfm at high, got %v", st.CFM)
	}
	if st.CMH < 33.9 || st.CMH > 34.1 {
		t.Fatalf("unexpected cmh: %v", st.CMH)
	}
	if st.Watts != 3.8 {
		t.Fatalf("unexpected watts: %v", st.Watts)
	}
}

func TestSnapshotScalesByFanCount(t *testing.T) {
	// e2 airflow figures are per default pair; four fans double them.
	c, _, _, _ := newTestController(t, "e2", 4, "")

	c.SetSpeed(context.Background(), SpeedLow)

	st := c.Snapshot()
	if st.CFM != 20 {
		t.Fatalf("expected 20 cfm for 4 fans at low, got %v", st.CFM)
	}
	if st.Watts != 2.8 {
		t.Fatalf("expected 2.8 W for 4 fans at low, got %v", st.Watts)
	}
}

func TestTurnOnUsesDefaultSpeedWhenUnknown(t *testing.T) {
	c, w1, w2, _ := newTestController(t, "e2", 0, SpeedHigh)

	res := c.TurnOn(context.Background())
	if !res.Completed() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if c.Speed() != SpeedHigh {
		t.Fatalf("expected default speed high, got %v", c.Speed())
	}
	if !w1.state || !w2.state {
		t.Fatalf("unexpected relay states: W1=%v W2=%v", w1.state, w2.state)
	}
}

func TestTurnOnAfterOffUsesDefaultSpeed(t *testing.T) {
	c, _, _, _ := newTestController(t, "e2", 0, "")

	c.SetSpeed(context.Background(), SpeedLow)
	c.TurnOff(context.Background())
	c.TurnOn(context.Background())

	// The commanded speed is off after TurnOff, so turn-on falls back
	// to the configured default.
	if c.Speed() != SpeedMedium {
		t.Fatalf("expected default speed after off/on, got %v", c.Speed())
	}
}

func TestTurnOffUnsupportedOnFourSpeed(t *testing.T) {
	c, _, _, rec := newTestController(t, "e2-4speed", 0, SpeedLow)

	res := c.TurnOff(context.Background())
	if !errors.Is(res.Err, ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", res.Err)
	}
	if len(rec.snapshot()) != 0 {
		t.Fatalf("relay touched for unsupported off: %v", rec.snapshot())
	}
}

func TestSummerVentilationUnsupportedTouchesNoRelay(t *testing.T) {
	c, _, _, rec := newTestController(t, "default", 0, "")

	res := c.EnableSummerVentilation(context.Background())
	if !errors.Is(res.Err, ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", res.Err)
	}
	if len(rec.snapshot()) != 0 {
		t.Fatalf("relay touched: %v", rec.snapshot())
	}
	if st := c.Snapshot(); st.VentilationMode != VentilationNormal {
		t.Fatalf("ventilation mode changed: %v", st.VentilationMode)
	}
}

func TestSummerVentilationRestoresSpeedEncoding(t *testing.T) {
	c, w1, w2, _ := newTestController(t, "e2", 0, "")

	c.SetSpeed(context.Background(), SpeedLow)

	res := c.EnableSummerVentilation(context.Background())
	if !res.Completed() {
		t.Fatalf("unexpected result: %+v", res)
	}

	st := c.Snapshot()
	if st.VentilationMode != VentilationSummer {
		t.Fatalf("expected summer mode, got %v", st.VentilationMode)
	}
	if st.Speed != SpeedLow {
		t.Fatalf("speed lost after mode toggle: %v", st.Speed)
	}
	// Low on e2 is W1 on, W2 off; the W2 flip train must not leave W2 up.
	if !w1.state || w2.state {
		t.Fatalf("pair encoding not restored: W1=%v W2=%v", w1.state, w2.state)
	}
}

func TestDisableSummerVentilationThrottles(t *testing.T) {
	c, _, _, _ := newTestController(t, "e2", 0, "")

	var waited time.Duration
	c.wait = func(d time.Duration) { waited += d }

	c.SetSpeed(context.Background(), SpeedMedium)
	c.EnableSummerVentilation(context.Background())

	res := c.DisableSummerVentilation(context.Background())
	if !res.Completed() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if waited <= 0 || waited > MinModeChangeInterval {
		t.Fatalf("unexpected throttle wait: %v", waited)
	}
	if st := c.Snapshot(); st.VentilationMode != VentilationNormal {
		t.Fatalf("expected normal mode, got %v", st.VentilationMode)
	}
}

func TestClearFilterReminderRestoresSpeed(t *testing.T) {
	c, w1, w2, _ := newTestController(t, "e2", 0, "")

	c.SetSpeed(context.Background(), SpeedMedium)

	res := c.ClearFilterReminder(context.Background())
	if !res.Completed() {
		t.Fatalf("unexpected result: %+v", res)
	}
	// Medium on e2 is W1 off, W2 on; the W1 flip train must not leave W1 up.
	if w1.state || !w2.state {
		t.Fatalf("pair encoding not restored: W1=%v W2=%v", w1.state, w2.state)
	}
}

func TestRefreshSpeedDerivesFromRelayStates(t *testing.T) {
	c, w1, w2, _ := newTestController(t, "e2", 0, "")

	// Someone flipped the switches to the medium encoding externally.
	w1.state, w1.known = false, true
	w2.state, w2.known = true, true

	speed, changed, err := c.RefreshSpeed(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if speed != SpeedMedium || !changed {
		t.Fatalf("expected medium/changed, got %v/%v", speed, changed)
	}
	if c.Speed() != SpeedMedium {
		t.Fatalf("tracked speed not updated: %v", c.Speed())
	}

	// A second refresh with unchanged relays reports no change.
	if _, changed, _ := c.RefreshSpeed(context.Background()); changed {
		t.Fatalf("expected no change on second refresh")
	}
}

func TestRefreshSpeedUnknownWhenRelayStateUnknown(t *testing.T) {
	c, _, _, _ := newTestController(t, "e2", 0, "")

	speed, changed, err := c.RefreshSpeed(context.Background())
	if err != nil || changed || speed != "" {
		t.Fatalf("expected unknown speed, got %v/%v/%v", speed, changed, err)
	}
}

// parkFirstHold replaces the sequencer hold with one that signals entry
// and parks the first settle hold until released, leaving the relay pair
// in a mid-sequence encoding.
func parkFirstHold(c *Controller) (entered, release chan struct{}) {
	entered = make(chan struct{})
	release = make(chan struct{})
	parked := false
	c.seq.hold = func(time.Duration) {
		if !parked {
			parked = true
			close(entered)
			<-release
		}
	}
	return entered, release
}

func TestRefreshSpeedWaitsForInFlightCommand(t *testing.T) {
	c, _, _, _ := newTestController(t, "e2", 0, "")
	entered, release := parkFirstHold(c)

	done := make(chan Result, 1)
	go func() { done <- c.SetSpeed(context.Background(), SpeedHigh) }()

	// The first relay write has landed and the sequence is parked in
	// its settle hold; the pair momentarily encodes a different speed.
	<-entered

	type refresh struct {
		speed   Speed
		changed bool
		err     error
	}
	got := make(chan refresh, 1)
	go func() {
		speed, changed, err := c.RefreshSpeed(context.Background())
		got <- refresh{speed, changed, err}
	}()

	close(release)
	if res := <-done; !res.Completed() {
		t.Fatalf("unexpected result: %+v", res)
	}

	r := <-got
	if r.err != nil {
		t.Fatalf("unexpected error: %v", r.err)
	}
	if r.speed != SpeedHigh || r.changed {
		t.Fatalf("refresh sampled a transient pair: speed=%v changed=%v", r.speed, r.changed)
	}
	if c.Speed() != SpeedHigh {
		t.Fatalf("tracked speed = %q, want %q", c.Speed(), SpeedHigh)
	}
}

func TestRefreshSpeedHonorsContextDuringCommand(t *testing.T) {
	c, _, _, _ := newTestController(t, "e2", 0, "")
	entered, release := parkFirstHold(c)

	done := make(chan Result, 1)
	go func() { done <- c.SetSpeed(context.Background(), SpeedHigh) }()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := c.RefreshSpeed(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled while a command is in flight, got %v", err)
	}

	close(release)
	if res := <-done; !res.Completed() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if c.Speed() != SpeedHigh {
		t.Fatalf("tracked speed disturbed by refused refresh: %v", c.Speed())
	}
}

func TestSetSpeedIdempotentAtOperationLevel(t *testing.T) {
	c, w1, w2, _ := newTestController(t, "e2", 0, "")

	c.SetSpeed(context.Background(), SpeedHigh)
	c.SetSpeed(context.Background(), SpeedMedium)
	first := [2]bool{w1.state, w2.state}

	c.SetSpeed(context.Background(), SpeedMedium)
	second := [2]bool{w1.state, w2.state}

	if first != second {
		t.Fatalf("final states differ: %v vs %v", first, second)
	}
}

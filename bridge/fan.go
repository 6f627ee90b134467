package bridge

import (
	"sync"

	"go-lunos/homeassistant"
	"go-lunos/lunos"
	"go-lunos/relay"
)

// Fan ties one LUNOS controller instance to its MQTT surface: the
// topics it listens and publishes on, the relay drivers that need the
// MQTT client bound after (re)connect, and the last published state so
// unchanged polls stay quiet.
type Fan struct {
	name       string
	coding     *lunos.Coding
	controller *lunos.Controller

	// MQTT-backed relays needing Bind on every connect.
	mqttSwitches []*relay.MQTTSwitch

	topics       homeassistant.FanTopics
	sensorTopics map[string]string

	mu        sync.Mutex
	lastSpeed lunos.Speed
	lastVent  lunos.VentilationMode
	published bool
}

// Name returns the configured friendly name.
func (f *Fan) Name() string {
	return f.name
}

// Snapshot returns the controller's last known commanded state.
func (f *Fan) Snapshot() lunos.Status {
	return f.controller.Snapshot()
}

// presetModes lists the preset modes registered with Home Assistant:
// every selectable speed, plus the ventilation modes when the coding
// supports summer ventilation.
func (f *Fan) presetModes() []string {
	var presets []string
	for _, speed := range f.coding.Speeds() {
		presets = append(presets, string(speed))
	}
	if f.coding.SupportsSummerVent {
		presets = append(presets, string(lunos.VentilationNormal), string(lunos.VentilationSummer))
	}
	return presets
}

// selectableSpeeds are the non-off speeds, in range-value order.
func (f *Fan) selectableSpeeds() []lunos.Speed {
	speeds := f.coding.Speeds()
	if !f.coding.FourSpeed {
		speeds = speeds[1:] // drop off
	}
	return speeds
}

// speedForRangeValue maps a Home Assistant speed-range value (1-based)
// to a speed; 0 means off.
func (f *Fan) speedForRangeValue(v int) (lunos.Speed, bool) {
	if v == 0 {
		if f.coding.FourSpeed {
			return "", false
		}
		return lunos.SpeedOff, true
	}
	speeds := f.selectableSpeeds()
	if v < 1 || v > len(speeds) {
		return "", false
	}
	return speeds[v-1], true
}

// rangeValueForSpeed is the inverse of speedForRangeValue.
func (f *Fan) rangeValueForSpeed(speed lunos.Speed) int {
	for i, s := range f.selectableSpeeds() {
		if s == speed {
			return i + 1
		}
	}
	return 0
}

// markPublished records the published state and reports whether it
// changed since the previous publish.
func (f *Fan) markPublished(st lunos.Status) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	changed := !f.published || st.Speed != f.lastSpeed || st.VentilationMode != f.lastVent
	f.lastSpeed = st.Speed
	f.lastVent = st.VentilationMode
	f.published = true
	return changed
}

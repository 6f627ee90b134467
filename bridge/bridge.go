// Package bridge translates between the MQTT fan surface Home
// Assistant sees and the relay sequences the LUNOS controllers need.
// It owns no sequencing logic itself: inbound payloads map to
// controller calls, controller results map back to state topics.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"go-lunos/config"
	"go-lunos/homeassistant"
	"go-lunos/logger"
	"go-lunos/lunos"
	"go-lunos/metrics"
	"go-lunos/relay"
)

type Bridge struct {
	cfg  *config.Configuration
	log  *logger.Logger
	fans []*Fan

	// Serial relay boards shared between fans wired to the same device.
	boards map[string]*relay.SerialBoard
}

func New(cfg *config.Configuration, log *logger.Logger) (*Bridge, error) {
	b := &Bridge{
		cfg:    cfg,
		log:    log,
		boards: make(map[string]*relay.SerialBoard),
	}

	for _, fanCfg := range cfg.Fans {
		fan, err := b.buildFan(fanCfg)
		if err != nil {
			return nil, err
		}
		b.fans = append(b.fans, fan)

		log.Infow("configured LUNOS fan",
			"name", fan.name, "coding", fan.coding.Slug, "presets", fan.presetModes())
	}

	return b, nil
}

// Fans lists the configured fans, for the HTTP state route.
func (b *Bridge) Fans() []*Fan {
	return b.fans
}

func (b *Bridge) buildFan(fc config.Fan) (*Fan, error) {
	coding, err := lunos.CodingBySlug(fc.Coding)
	if err != nil {
		return nil, err
	}

	fan := &Fan{
		name:         fc.Name,
		coding:       coding,
		sensorTopics: make(map[string]string),
	}

	w1, err := b.buildSwitch(fan, fc.RelayW1)
	if err != nil {
		return nil, fmt.Errorf("fan %q relay W1: %w", fc.Name, err)
	}
	w2, err := b.buildSwitch(fan, fc.RelayW2)
	if err != nil {
		return nil, fmt.Errorf("fan %q relay W2: %w", fc.Name, err)
	}

	controller, err := lunos.NewController(fc.Name, coding, fc.FanCount, lunos.Speed(fc.DefaultSpeed), w1, w2)
	if err != nil {
		return nil, err
	}
	fan.controller = controller

	return fan, nil
}

func (b *Bridge) buildSwitch(fan *Fan, rc config.RelayConfig) (lunos.Switch, error) {
	if rc.IsMQTT() {
		sw := relay.NewMQTTSwitch(rc.CommandTopic, rc.StateTopic, rc.PayloadOn, rc.PayloadOff)
		fan.mqttSwitches = append(fan.mqttSwitches, sw)
		return sw, nil
	}

	board, ok := b.boards[rc.SerialPort]
	if !ok {
		var err error
		board, err = relay.OpenSerialBoard(rc.SerialPort)
		if err != nil {
			return nil, err
		}
		b.boards[rc.SerialPort] = board
	}
	return board.Channel(rc.Channel), nil
}

// Subscribe binds the relay drivers and command topics. Called from the
// MQTT OnConnect handler so everything is re-established after a
// reconnect.
func (b *Bridge) Subscribe(client mqtt.Client) {
	ha := b.haClient(client)

	for _, fan := range b.fans {
		fan.topics = ha.Topics(fan.name)

		for _, sw := range fan.mqttSwitches {
			if err := sw.Bind(client); err != nil {
				b.log.Errorw("binding relay switch", "fan", fan.name, "err", err)
			}
		}

		b.subscribeFan(client, fan)
	}
}

func (b *Bridge) subscribeFan(client mqtt.Client, fan *Fan) {
	// Sequences hold for seconds per step; run handlers off the paho
	// router goroutine so one slow fan never stalls the others.
	subscribe := func(topic string, handler func(payload string)) {
		t := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			go handler(string(msg.Payload()))
		})
		if t.Wait() && t.Error() != nil {
			b.log.Errorw("MQTT subscribe failed", "topic", topic, "err", t.Error())
		}
	}

	subscribe(fan.topics.Command, func(p string) { b.handleOnOff(client, fan, p) })
	subscribe(fan.topics.PresetCommand, func(p string) { b.handlePreset(client, fan, p) })
	subscribe(fan.topics.PercentageCommand, func(p string) { b.handlePercentage(client, fan, p) })
	subscribe(fan.topics.FilterClearCommand, func(p string) { b.handleFilterClear(client, fan) })
	if fan.coding.SupportsSummerVent {
		subscribe(fan.topics.SummerCommand, func(p string) { b.handleSummer(client, fan, p) })
	}
}

// RegisterFans publishes Home Assistant discovery configs for every fan
// and its airflow sensors.
func (b *Bridge) RegisterFans(client mqtt.Client) error {
	ha := b.haClient(client)

	for _, fan := range b.fans {
		topics, err := ha.RegisterFan(fan.name, fan.presetModes(), len(fan.selectableSpeeds()))
		if err != nil {
			return fmt.Errorf("registering fan %q: %w", fan.name, err)
		}
		fan.topics = topics

		if fan.coding.Behavior == nil {
			continue
		}
		for _, def := range sensorDefinitions {
			stateTopic, err := ha.RegisterSensor(fan.name, def.name, def.class, def.unit)
			if err != nil {
				return fmt.Errorf("registering sensor %v for %q: %w", def.name, fan.name, err)
			}
			fan.sensorTopics[def.name] = stateTopic
		}

		b.log.Infow("registered fan with Home Assistant", "name", fan.name)
	}

	return nil
}

func (b *Bridge) haClient(client mqtt.Client) *homeassistant.Client {
	return homeassistant.NewClient(client, b.cfg.Mqtt.TopicPrefix, b.cfg.Mqtt.DiscoveryPrefix)
}

func (b *Bridge) handleOnOff(client mqtt.Client, fan *Fan, payload string) {
	ctx := context.Background()

	var res lunos.Result
	if payload == "OFF" {
		res = fan.controller.TurnOff(ctx)
	} else {
		res = fan.controller.TurnOn(ctx)
	}

	b.finish(client, fan, res)
}

func (b *Bridge) handlePreset(client mqtt.Client, fan *Fan, payload string) {
	ctx := context.Background()

	var res lunos.Result
	switch lunos.VentilationMode(payload) {
	case lunos.VentilationSummer:
		res = fan.controller.EnableSummerVentilation(ctx)
	case lunos.VentilationNormal:
		if fan.Snapshot().VentilationMode != lunos.VentilationSummer {
			b.publishFanState(client, fan, true)
			return
		}
		res = fan.controller.DisableSummerVentilation(ctx)
	default:
		res = fan.controller.SetSpeed(ctx, lunos.Speed(payload))
	}

	b.finish(client, fan, res)
}

func (b *Bridge) handlePercentage(client mqtt.Client, fan *Fan, payload string) {
	value, err := strconv.Atoi(payload)
	if err != nil {
		b.log.Warnw("ignoring non-numeric speed value", "fan", fan.name, "payload", payload)
		return
	}

	speed, ok := fan.speedForRangeValue(value)
	if !ok {
		b.log.Warnw("speed value out of range", "fan", fan.name, "value", value)
		return
	}

	b.finish(client, fan, fan.controller.SetSpeed(context.Background(), speed))
}

func (b *Bridge) handleSummer(client mqtt.Client, fan *Fan, payload string) {
	ctx := context.Background()

	var res lunos.Result
	if payload == "OFF" {
		res = fan.controller.DisableSummerVentilation(ctx)
	} else {
		res = fan.controller.EnableSummerVentilation(ctx)
	}

	b.finish(client, fan, res)
}

func (b *Bridge) handleFilterClear(client mqtt.Client, fan *Fan) {
	b.finish(client, fan, fan.controller.ClearFilterReminder(context.Background()))
}

// finish records metrics and logs for a sequence result, then publishes
// the current state so Home Assistant reflects what actually happened,
// including snapping back after a failed command.
func (b *Bridge) finish(client mqtt.Client, fan *Fan, res lunos.Result) {
	metrics.SequencesTotal.WithLabelValues(fan.name, string(res.Operation), string(res.Outcome)).Inc()
	metrics.RelayWritesTotal.WithLabelValues(fan.name).Add(float64(res.StepsCompleted))
	metrics.SequenceDuration.WithLabelValues(string(res.Operation)).Observe(res.Elapsed.Seconds())

	switch {
	case res.Err == nil:
		b.log.Infow("sequence complete",
			"fan", fan.name, "operation", res.Operation, "steps", res.StepsCompleted, "elapsed", res.Elapsed)
	case errors.Is(res.Err, lunos.ErrUnsupportedOperation):
		b.log.Warnw("operation not supported by coding",
			"fan", fan.name, "operation", res.Operation, "coding", fan.coding.Slug)
	case errors.Is(res.Err, lunos.ErrSequenceCancelled):
		b.log.Warnw("sequence cancelled",
			"fan", fan.name, "operation", res.Operation, "steps", res.StepsCompleted)
	default:
		b.log.Errorw("sequence failed",
			"fan", fan.name, "operation", res.Operation, "step", res.FailedStep, "err", res.Err)
	}

	b.publishFanState(client, fan, true)
}

// PublishStates pushes state for fans whose speed or ventilation mode
// changed since the last publish.
func (b *Bridge) PublishStates(client mqtt.Client) {
	for _, fan := range b.fans {
		b.publishFanState(client, fan, false)
	}
}

// ReconcileFans re-derives each fan's speed from the probed relay
// states. The controller has no feedback line, so externally flipped
// relays surface here, one poll interval late at worst.
func (b *Bridge) ReconcileFans(client mqtt.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, fan := range b.fans {
		speed, changed, err := fan.controller.RefreshSpeed(ctx)
		metrics.LastReconcile.WithLabelValues(fan.name).SetToCurrentTime()

		if err != nil {
			b.log.Warnw("relay state probe failed", "fan", fan.name, "err", err)
			continue
		}
		if changed {
			b.log.Infow("fan speed changed externally", "fan", fan.name, "speed", speed)
			b.publishFanState(client, fan, true)
		}
	}
}

func (b *Bridge) publishFanState(client mqtt.Client, fan *Fan, force bool) {
	st := fan.controller.Snapshot()

	if changed := fan.markPublished(st); !changed && !force {
		return
	}

	state := "OFF"
	if st.IsOn {
		state = "ON"
	}

	preset := string(st.Speed)
	if st.VentilationMode == lunos.VentilationSummer {
		preset = string(lunos.VentilationSummer)
	}

	attributes, err := json.Marshal(st)
	if err != nil {
		b.log.Errorw("marshaling attributes", "fan", fan.name, "err", err)
		return
	}

	publish := func(topic, payload string) {
		if topic == "" {
			return
		}
		if t := client.Publish(topic, 0, true, payload); t.Wait() && t.Error() != nil {
			b.log.Errorw("MQTT publish failed", "topic", topic, "err", t.Error())
		}
	}

	publish(fan.topics.State, state)
	publish(fan.topics.PresetState, preset)
	publish(fan.topics.PercentageState, strconv.Itoa(fan.rangeValueForSpeed(st.Speed)))
	publish(fan.topics.Attributes, string(attributes))

	for _, def := range sensorDefinitions {
		topic, ok := fan.sensorTopics[def.name]
		if !ok {
			continue
		}
		publish(topic, fmt.Sprintf("%v", def.get(st)))
	}
}

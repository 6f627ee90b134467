// Package relay provides the W1/W2 switch drivers the sequencer
// actuates: switches owned by the home automation platform reached over
// MQTT, and channels of a directly attached USB serial relay board.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 5 * time.Second

var errNotBound = errors.New("mqtt client not connected yet")

// MQTTSwitch drives an external switch entity through its MQTT command
// topic and mirrors its reported state from the state topic. The switch
// belongs to the automation platform; this driver only sends commands
// and listens.
type MQTTSwitch struct {
	commandTopic string
	stateTopic   string
	payloadOn    string
	payloadOff   string

	mu     sync.Mutex
	client mqtt.Client
	state  bool
	known  bool
}

// NewMQTTSwitch builds a switch driver. Empty payloads default to
// ON/OFF, the Home Assistant switch convention.
func NewMQTTSwitch(commandTopic, stateTopic, payloadOn, payloadOff string) *MQTTSwitch {
	if payloadOn == "" {
		payloadOn = "ON"
	}
	if payloadOff == "" {
		payloadOff = "OFF"
	}
	return &MQTTSwitch{
		commandTopic: commandTopic,
		stateTopic:   stateTopic,
		payloadOn:    payloadOn,
		payloadOff:   payloadOff,
	}
}

// Bind attaches the connected MQTT client and subscribes to the state
// topic. Called from the client's OnConnect handler so the subscription
// survives reconnects.
func (s *MQTTSwitch) Bind(client mqtt.Client) error {
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	if s.stateTopic == "" {
		return nil
	}

	if t := client.Subscribe(s.stateTopic, 0, s.onState); t.Wait() && t.Error() != nil {
		return fmt.Errorf("subscribing to %v: %w", s.stateTopic, t.Error())
	}
	return nil
}

func (s *MQTTSwitch) onState(_ mqtt.Client, msg mqtt.Message) {
	payload := string(msg.Payload())

	s.mu.Lock()
	defer s.mu.Unlock()

	switch payload {
	case s.payloadOn:
		s.state = true
		s.known = true
	case s.payloadOff:
		s.state = false
		s.known = true
	}
}

func (s *MQTTSwitch) TurnOn(ctx context.Context) error {
	return s.publish(ctx, s.payloadOn)
}

func (s *MQTTSwitch) TurnOff(ctx context.Context) error {
	return s.publish(ctx, s.payloadOff)
}

func (s *MQTTSwitch) publish(_ context.Context, payload string) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil {
		return errNotBound
	}

	t := client.Publish(s.commandTopic, 0, false, payload)
	if !t.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %v timed out", s.commandTopic)
	}
	if t.Error() != nil {
		return fmt.Errorf("publish to %v: %w", s.commandTopic, t.Error())
	}
	return nil
}

// State reports the last state seen on the state topic. Unknown until
// the switch has published at least once since connect.
func (s *MQTTSwitch) State(_ context.Context) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.known, nil
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "lunos.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const validConfig = `
mqtt:
  broker: tcp://localhost:1883
  username: user
  password: pass
fans:
  - name: Bedroom
    coding: e2-usa
    fan_count: 2
    default_speed: medium
    relay_w1:
      command_topic: zigbee2mqtt/relay1/set
      state_topic: zigbee2mqtt/relay1/state
    relay_w2:
      serial_port: /dev/ttyUSB0
      channel: 2
`

func TestLoadConfiguration(t *testing.T) {
	cfg, err := LoadConfiguration(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Mqtt.Broker != "tcp://localhost:1883" {
		t.Fatalf("unexpected broker: %v", cfg.Mqtt.Broker)
	}
	if cfg.Mqtt.TopicPrefix != DefaultTopicPrefix || cfg.Mqtt.DiscoveryPrefix != DefaultDiscoveryPrefix {
		t.Fatalf("prefix defaults not applied: %+v", cfg.Mqtt)
	}
	if cfg.HTTPPort != DefaultHTTPPort || cfg.LogLevel != "info" {
		t.Fatalf("defaults not applied: port=%v level=%v", cfg.HTTPPort, cfg.LogLevel)
	}

	if len(cfg.Fans) != 1 {
		t.Fatalf("expected 1 fan, got %d", len(cfg.Fans))
	}
	fan := cfg.Fans[0]
	if !fan.RelayW1.IsMQTT() || fan.RelayW1.IsSerial() {
		t.Fatalf("relay_w1 backend misdetected: %+v", fan.RelayW1)
	}
	if !fan.RelayW2.IsSerial() || fan.RelayW2.Channel != 2 {
		t.Fatalf("relay_w2 backend misdetected: %+v", fan.RelayW2)
	}
}

func TestLoadConfigurationRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing broker",
			content: "fans:\n  - name: X\n    relay_w1: {command_topic: a}\n    relay_w2: {command_topic: b}\n",
			wantErr: "mqtt.broker",
		},
		{
			name:    "no fans",
			content: "mqtt:\n  broker: tcp://localhost:1883\n",
			wantErr: "at least one fan",
		},
		{
			name: "unknown coding",
			content: `
mqtt: {broker: tcp://localhost:1883}
fans:
  - name: X
    coding: e3
    relay_w1: {command_topic: a}
    relay_w2: {command_topic: b}
`,
			wantErr: "unknown controller coding",
		},
		{
			name: "relay without backend",
			content: `
mqtt: {broker: tcp://localhost:1883}
fans:
  - name: X
    relay_w1: {command_topic: a}
    relay_w2: {}
`,
			wantErr: "relay_w2",
		},
		{
			name: "relay with both backends",
			content: `
mqtt: {broker: tcp://localhost:1883}
fans:
  - name: X
    relay_w1: {command_topic: a, serial_port: /dev/ttyUSB0, channel: 1}
    relay_w2: {command_topic: b}
`,
			wantErr: "not both",
		},
		{
			name: "duplicate fan name",
			content: `
mqtt: {broker: tcp://localhost:1883}
fans:
  - name: X
    relay_w1: {command_topic: a}
    relay_w2: {command_topic: b}
  - name: X
    relay_w1: {command_topic: c}
    relay_w2: {command_topic: d}
`,
			wantErr: "duplicate name",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfiguration(writeConfig(t, tc.content))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestEmptyCodingDefaults(t *testing.T) {
	content := `
mqtt: {broker: tcp://localhost:1883}
fans:
  - name: X
    relay_w1: {command_topic: a}
    relay_w2: {command_topic: b}
`
	cfg, err := LoadConfiguration(writeConfig(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Fans[0].Coding != "default" {
		t.Fatalf("expected default coding, got %q", cfg.Fans[0].Coding)
	}
}

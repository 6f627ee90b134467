package config

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/spf13/viper"

	"go-lunos/lunos"
)

// Defaults applied when the config file leaves fields out.
const (
	DefaultTopicPrefix     = "lunos"
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultHTTPPort        = "8080"
)

// Configuration is the full bridge configuration, loaded once at
// startup.
type Configuration struct {
	LogLevel string `mapstructure:"log_level"`
	HTTPPort string `mapstructure:"http_port"`
	Mqtt     Mqtt   `mapstructure:"mqtt"`
	Fans     []Fan  `mapstructure:"fans"`
}

type Mqtt struct {
	Broker          string `mapstructure:"broker"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	TopicPrefix     string `mapstructure:"topic_prefix"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
}

// Fan configures one LUNOS controller instance: a friendly name, the
// hardware coding, and the two relays wired to W1 and W2.
type Fan struct {
	Name         string      `mapstructure:"name"`
	Coding       string      `mapstructure:"coding"`
	FanCount     int         `mapstructure:"fan_count"`
	DefaultSpeed string      `mapstructure:"default_speed"`
	RelayW1      RelayConfig `mapstructure:"relay_w1"`
	RelayW2      RelayConfig `mapstructure:"relay_w2"`
}

// RelayConfig selects exactly one relay backend: an MQTT switch entity
// (command/state topics) or a channel of a USB serial relay board.
type RelayConfig struct {
	CommandTopic string `mapstructure:"command_topic"`
	StateTopic   string `mapstructure:"state_topic"`
	PayloadOn    string `mapstructure:"payload_on"`
	PayloadOff   string `mapstructure:"payload_off"`

	SerialPort string `mapstructure:"serial_port"`
	Channel    int    `mapstructure:"channel"`
}

// IsMQTT reports whether the relay is an MQTT switch entity.
func (r *RelayConfig) IsMQTT() bool {
	return r.CommandTopic != ""
}

// IsSerial reports whether the relay is a serial board channel.
func (r *RelayConfig) IsSerial() bool {
	return r.SerialPort != ""
}

// LoadConfiguration reads and validates the config file.
func LoadConfiguration(filename string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(filename)

	v.SetDefault("log_level", "info")
	v.SetDefault("http_port", DefaultHTTPPort)
	v.SetDefault("mqtt.topic_prefix", DefaultTopicPrefix)
	v.SetDefault("mqtt.discovery_prefix", DefaultDiscoveryPrefix)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %v: %w", filename, err)
	}

	cfg := &Configuration{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing %v: %w", filename, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Configuration) validate() error {
	if c.Mqtt.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if len(c.Fans) == 0 {
		return fmt.Errorf("at least one fan must be configured")
	}

	seen := map[string]bool{}
	for i := range c.Fans {
		fan := &c.Fans[i]
		if fan.Name == "" {
			return fmt.Errorf("fans[%d]: name is required", i)
		}
		if seen[fan.Name] {
			return fmt.Errorf("fans[%d]: duplicate name %q", i, fan.Name)
		}
		seen[fan.Name] = true

		if fan.Coding == "" {
			fan.Coding = "default"
		}
		if _, err := lunos.CodingBySlug(fan.Coding); err != nil {
			return fmt.Errorf("fan %q: %w", fan.Name, err)
		}

		if err := fan.RelayW1.validate(); err != nil {
			return fmt.Errorf("fan %q relay_w1: %w", fan.Name, err)
		}
		if err := fan.RelayW2.validate(); err != nil {
			return fmt.Errorf("fan %q relay_w2: %w", fan.Name, err)
		}
	}

	return nil
}

func (r *RelayConfig) validate() error {
	switch {
	case r.IsMQTT() && r.IsSerial():
		return fmt.Errorf("configure either command_topic or serial_port, not both")
	case r.IsMQTT():
		return nil
	case r.IsSerial():
		if r.Channel < 1 {
			return fmt.Errorf("channel must be >= 1")
		}
		return nil
	default:
		return fmt.Errorf("either command_topic or serial_port is required")
	}
}

// ClientOptions builds the paho client options: auto-reconnect with a
// unique client id so two bridge instances never kick each other off
// the broker. Subscriptions are set up in the OnConnect handler by the
// caller so they survive reconnects.
func (m *Mqtt) ClientOptions() *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(m.Broker).
		SetClientID("go-lunos-" + uuid.NewString()[:8]).
		SetUsername(m.Username).
		SetPassword(m.Password).
		SetAutoReconnect(true)
}

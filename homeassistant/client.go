// Package homeassistant publishes MQTT discovery configs so Home
// Assistant picks up each LUNOS fan and its airflow sensors without
// manual YAML on the platform side.
package homeassistant

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Client struct {
	mqtt            mqtt.Client
	topicPrefix     string
	discoveryPrefix string
}

func NewClient(mqtt mqtt.Client, topicPrefix, discoveryPrefix string) *Client {
	return &Client{
		mqtt:            mqtt,
		topicPrefix:     topicPrefix,
		discoveryPrefix: discoveryPrefix,
	}
}

// Slug converts a friendly name into the identifier used in unique ids
// and topics. MQTT topic separators and wildcards are flattened to
// underscores so a name like "Bedroom/North" cannot escape its topic
// subtree or produce a wildcard subscription.
func Slug(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '+', '#':
			return '_'
		}
		return unicode.ToLower(r)
	}, name)
}

// FanTopics are the state and command topics of one registered fan.
// SummerCommand and FilterClearCommand carry the auxiliary commands
// that have no place in the discovery fan schema.
type FanTopics struct {
	State              string
	Command            string
	PresetState        string
	PresetCommand      string
	PercentageState    string
	PercentageCommand  string
	Attributes         string
	SummerCommand      string
	FilterClearCommand string
}

// Topics derives the topic set for a fan name under the configured
// prefix.
func (h *Client) Topics(name string) FanTopics {
	base := fmt.Sprintf("%v/%v", h.topicPrefix, Slug(name))
	return FanTopics{
		State:              base + "/state",
		Command:            base + "/cmd",
		PresetState:        base + "/preset/state",
		PresetCommand:      base + "/preset/cmd",
		PercentageState:    base + "/percentage/state",
		PercentageCommand:  base + "/percentage/cmd",
		Attributes:         base + "/attributes",
		SummerCommand:      base + "/summer/cmd",
		FilterClearCommand: base + "/filter/clear",
	}
}

// RegisterFan publishes the discovery config for one fan. speedCount is
// the number of selectable non-off speeds, presets the full preset mode
// list (speeds plus ventilation modes).
func (h *Client) RegisterFan(name string, presets []string, speedCount int) (FanTopics, error) {
	slug := Slug(name)
	topics := h.Topics(name)

	payload, _ := json.Marshal(fanConfiguration{
		UniqueId:               "lunos_" + slug,
		Name:                   name,
		StateTopic:             topics.State,
		CommandTopic:           topics.Command,
		PresetModeStateTopic:   topics.PresetState,
		PresetModeCommandTopic: topics.PresetCommand,
		PresetModes:            presets,
		PercentageStateTopic:   topics.PercentageState,
		PercentageCommandTopic: topics.PercentageCommand,
		SpeedRangeMax:          speedCount,
		JsonAttributesTopic:    topics.Attributes,
	})

	configTopic := fmt.Sprintf("%v/fan/lunos_%v/config", h.discoveryPrefix, slug)
	if t := h.mqtt.Publish(configTopic, 0, true, payload); t.Wait() && t.Error() != nil {
		return FanTopics{}, t.Error()
	}

	return topics, nil
}

// RegisterSensor publishes the discovery config for one sensor attached
// to a fan and returns its state topic.
func (h *Client) RegisterSensor(fanName, sensorName, class, unit string) (string, error) {
	uniqueId := "lunos_" + Slug(fanName) + "_" + Slug(sensorName)
	stateTopic := fmt.Sprintf("%v/%v/%v", h.topicPrefix, Slug(fanName), Slug(sensorName))

	payload, _ := json.Marshal(sensorConfiguration{
		UniqueId:          uniqueId,
		Name:              fmt.Sprintf("%v %v", fanName, sensorName),
		DeviceClass:       class,
		StateTopic:        stateTopic,
		UnitOfMeasurement: unit,
	})

	configTopic := fmt.Sprintf("%v/sensor/%v/config", h.discoveryPrefix, uniqueId)
	if t := h.mqtt.Publish(configTopic, 0, true, payload); t.Wait() && t.Error() != nil {
		return "", t.Error()
	}

	return stateTopic, nil
}

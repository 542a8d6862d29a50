package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/ericogr/sct013-to-mqtt/pkg/config"
	"github.com/ericogr/sct013-to-mqtt/pkg/output"
	"github.com/ericogr/sct013-to-mqtt/pkg/sensor"
)

const (
	// defaults
	DefaultServer      = "tcp://localhost:1883"
	DefaultClientID    = "sct013-client"
	perChannelTopicFmt = "sct013/channel/%d"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	unitAmperes            = "A"
	deviceClassCurrent     = "current"
	stateClassMeasurement  = "measurement"
	valueTemplateCurrent   = "{{ value_json.current }}"
)

// publisher is the part of mqtt.Client used by MQTTOutput.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTOutput struct {
	client         publisher
	stateTopic     string
	discoveryTopic string
}

func NewMQTT(cfg config.MQTTConfig, channels []config.ChannelConfig) (output.Output, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return newMQTT(client, cfg, channels), nil
}

// newMQTT wraps a connected client and publishes Home Assistant discovery
// payloads when a discovery topic is configured.
func newMQTT(client publisher, cfg config.MQTTConfig, channels []config.ChannelConfig) *MQTTOutput {
	m := &MQTTOutput{client: client, stateTopic: cfg.StateTopic, discoveryTopic: cfg.DiscoveryTopic}
	if m.discoveryTopic == "" {
		return m
	}

	// per-channel discovery when discoveryTopic contains a formatter
	if strings.Contains(m.discoveryTopic, "%d") {
		for _, ch := range channels {
			if !ch.Enabled {
				continue
			}
			dTopic := fmt.Sprintf(m.discoveryTopic, ch.Channel)
			stateTopic := formatStateTopic(cfg.StateTopic, ch.Channel)
			payload := baseDiscoveryPayload(discoveryName(cfg, &ch), stateTopic, discoveryUniqueID(cfg, &ch))
			if err := m.publishJSON(dTopic, true, payload); err != nil {
				logrus.WithField("topic", dTopic).Errorf("mqtt discovery publish error: %v", err)
			}
		}
		return m
	}

	payload := baseDiscoveryPayload(discoveryName(cfg, nil), m.stateTopic, discoveryUniqueID(cfg, nil))
	if err := m.publishJSON(m.discoveryTopic, true, payload); err != nil {
		logrus.WithField("topic", m.discoveryTopic).Errorf("mqtt discovery publish error: %v", err)
	}
	return m
}

func (m *MQTTOutput) Publish(readings []sensor.Reading) error {
	for _, r := range readings {
		topic := formatStateTopic(m.stateTopic, r.Channel)
		payload := map[string]interface{}{
			"current":     r.Current,
			"rms_voltage": r.RMSVoltage,
			"samples":     r.Samples,
			"channel":     r.Channel,
		}
		if r.Name != "" {
			payload["name"] = r.Name
		}
		if err := m.publishJSON(topic, false, payload); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	}
	return nil
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

// PublishRaw publishes a raw payload to the given topic. Discovery payloads
// are sent retained; readings are not.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	token := m.client.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

// helper: format a state topic for a channel using an optional formatter
func formatStateTopic(base string, ch int) string {
	if base != "" {
		if strings.Contains(base, "%d") {
			return fmt.Sprintf(base, ch)
		}
		return base
	}
	return fmt.Sprintf(perChannelTopicFmt, ch)
}

// helper: build a human-friendly discovery name; if ch != nil append channel
func discoveryName(cfg config.MQTTConfig, ch *config.ChannelConfig) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("SCT013 %s", cfg.ClientID)
	}
	if ch != nil {
		if ch.Name != "" {
			return fmt.Sprintf("%s %s", name, ch.Name)
		}
		name = fmt.Sprintf("%s ch%d", name, ch.Channel)
	}
	return name
}

// helper: build a unique id for discovery; if ch != nil append channel
func discoveryUniqueID(cfg config.MQTTConfig, ch *config.ChannelConfig) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	if uid != "" && ch != nil {
		uid = fmt.Sprintf("%s_%d", uid, ch.Channel)
	}
	return uid
}

// helper: base discovery payload map common to all entries
func baseDiscoveryPayload(name, stateTopic, uniqueID string) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyUnitOfMeasurement:   unitAmperes,
		keyDeviceClass:         deviceClassCurrent,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplateCurrent,
		keyJSONAttributesTopic: stateTopic,
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}

// helper: marshal and publish JSON payload
func (m *MQTTOutput) publishJSON(topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return m.PublishRaw(topic, b, retained)
}

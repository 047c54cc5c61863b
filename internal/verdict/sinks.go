package verdict

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/hypebeast/go-osc/osc"
	jsoniter "github.com/json-iterator/go"

	"github.com/fretcoach/chordverify/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OSCSink forwards verdicts to an external practice UI over OSC, the
// long-standing protocol of choice for low-latency music-software control
// messages in this corpus.
type OSCSink struct {
	id     string
	client *osc.Client
	prefix string
}

// NewOSCSink dials an OSC client targeting host:port. addressPrefix (e.g.
// "/chordverify") is prepended to every emitted address.
func NewOSCSink(id, host string, port int, addressPrefix string) *OSCSink {
	return &OSCSink{
		id:     id,
		client: osc.NewClient(host, port),
		prefix: addressPrefix,
	}
}

func (s *OSCSink) ID() string { return s.id }

// HandleVerdict maps each Verdict kind onto a small OSC address namespace:
// /tick, /notes (midi + salience pairs), /match, /miss (matched + missing
// pitch-class lists).
func (s *OSCSink) HandleVerdict(v Verdict) error {
	switch v.Kind {
	case KindTick:
		msg := osc.NewMessage(s.addr("/tick"))
		msg.Append(float32(v.InferenceMs))
		return s.send(msg)
	case KindNotes:
		msg := osc.NewMessage(s.addr("/notes"))
		for _, n := range v.Notes {
			msg.Append(int32(n.MIDI))
			msg.Append(float32(n.Salience))
		}
		return s.send(msg)
	case KindMatch:
		return s.send(osc.NewMessage(s.addr("/match")))
	case KindMiss:
		msg := osc.NewMessage(s.addr("/miss"))
		for _, c := range v.Matched.Slice() {
			msg.Append(int32(c))
		}
		msg.Append(int32(-1)) // separator between matched and missing
		for _, c := range v.Missing.Slice() {
			msg.Append(int32(c))
		}
		return s.send(msg)
	case KindError:
		msg := osc.NewMessage(s.addr("/error"))
		msg.Append(v.Message)
		return s.send(msg)
	}
	return nil
}

func (s *OSCSink) addr(suffix string) string { return s.prefix + suffix }

func (s *OSCSink) send(msg *osc.Message) error {
	if err := s.client.Send(msg); err != nil {
		return errors.New(err).Component("verdict").Category(errors.CategoryNetwork).Build()
	}
	return nil
}

// MQTTSink publishes verdicts as JSON to an MQTT broker, for practice-rig
// telemetry consumers that already speak MQTT rather than OSC.
type MQTTSink struct {
	id     string
	client mqtt.Client
	topic  string
}

// MQTTSinkConfig configures a broker connection.
type MQTTSinkConfig struct {
	BrokerURL string // e.g. "tcp://localhost:1883"
	ClientID  string
	Topic     string
	Username  string
	Password  string
}

// NewMQTTSink connects to the configured broker and returns a Handler that
// publishes every verdict as a JSON document on cfg.Topic.
func NewMQTTSink(id string, cfg MQTTSinkConfig) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return nil, errors.New(token.Error()).Component("verdict").Category(errors.CategoryNetwork).Build()
	}

	return &MQTTSink{id: id, client: client, topic: cfg.Topic}, nil
}

func (s *MQTTSink) ID() string { return s.id }

type mqttVerdict struct {
	Kind        Kind    `json:"kind"`
	T           float64 `json:"t"`
	InferenceMs float64 `json:"inferenceMs,omitempty"`
	Midis       []int   `json:"midis,omitempty"`
	Matched     []int   `json:"matched,omitempty"`
	Missing     []int   `json:"missing,omitempty"`
	Message     string  `json:"message,omitempty"`
}

func (s *MQTTSink) HandleVerdict(v Verdict) error {
	payload := mqttVerdict{
		Kind:        v.Kind,
		T:           float64(v.T.UnixNano()) / float64(time.Second),
		InferenceMs: v.InferenceMs,
		Message:     v.Message,
	}
	for _, n := range v.Notes {
		payload.Midis = append(payload.Midis, n.MIDI)
	}
	for _, c := range v.Matched.Slice() {
		payload.Matched = append(payload.Matched, int(c))
	}
	for _, c := range v.Missing.Slice() {
		payload.Missing = append(payload.Missing, int(c))
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}

	token := s.client.Publish(s.topic, 0, false, data)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return errors.New(token.Error()).Component("verdict").Category(errors.CategoryNetwork).Build()
	}
	return nil
}

// Close disconnects the MQTT client.
func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}

// Package devicefeed consumes bedside monitor readings from MQTT and runs
// each one through the deterioration service.
package devicefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/edtriage/edtriage/internal/domain/deterioration"
)

// Outcomes reported to the Recorder.
const (
	OutcomeAssessed  = "assessed"
	OutcomeEscalated = "escalated"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

var ErrMissingPatient = errors.New("reading has no patient id")

type Assessor interface {
	Assess(ctx context.Context, req deterioration.Request) (*deterioration.Assessment, error)
}

type Recorder interface {
	DeviceMessage(outcome string)
}

// subscriber is the part of mqtt.Client the feed uses.
type subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// Feed subscribes to a vitals topic filter. Readings are JSON assessment
// requests; readings without a hospital id take it from the topic level
// matched by the filter's wildcard.
type Feed struct {
	client   subscriber
	topic    string
	qos      byte
	svc      Assessor
	recorder Recorder
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewFeed(client mqtt.Client, topic string, svc Assessor, logger zerolog.Logger) *Feed {
	return newFeed(client, topic, svc, logger)
}

func newFeed(client subscriber, topic string, svc Assessor, logger zerolog.Logger) *Feed {
	return &Feed{
		client:  client,
		topic:   topic,
		qos:     1,
		svc:     svc,
		timeout: 5 * time.Second,
		logger:  logger.With().Str("component", "devicefeed").Str("topic", topic).Logger(),
	}
}

func (f *Feed) SetRecorder(r Recorder) { f.recorder = r }

// Start subscribes and returns once the broker has acknowledged. Messages
// are handled until ctx is cancelled or Stop is called.
func (f *Feed) Start(ctx context.Context) error {
	token := f.client.Subscribe(f.topic, f.qos, func(_ mqtt.Client, msg mqtt.Message) {
		if ctx.Err() != nil {
			return
		}
		hctx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()
		_ = f.HandleMessage(hctx, msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("subscribe %s: timed out", f.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", f.topic, err)
	}
	f.logger.Info().Msg("device feed subscribed")
	return nil
}

func (f *Feed) Stop() {
	token := f.client.Unsubscribe(f.topic)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		f.logger.Warn().Err(token.Error()).Msg("unsubscribe")
	}
}

// HandleMessage decodes and assesses one reading.
func (f *Feed) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	req, err := deterioration.DecodeRequest(payload)
	if err != nil {
		f.observe(OutcomeInvalid)
		f.logger.Warn().Err(err).Str("msg_topic", topic).Msg("discarding malformed reading")
		return err
	}
	if req.HospitalID == "" {
		req.HospitalID = f.hospitalFromTopic(topic)
	}
	if req.PatientID == "" {
		f.observe(OutcomeInvalid)
		f.logger.Warn().Str("msg_topic", topic).Msg("discarding reading without patient id")
		return ErrMissingPatient
	}

	a, err := f.svc.Assess(ctx, req)
	if err != nil {
		f.observe(OutcomeFailed)
		f.logger.Error().Err(err).Str("patient_id", req.PatientID).Msg("assess reading")
		return err
	}
	if a.Escalated() {
		f.observe(OutcomeEscalated)
	} else {
		f.observe(OutcomeAssessed)
	}
	f.logger.Debug().
		Str("patient_id", req.PatientID).
		Str("hospital_id", req.HospitalID).
		Float64("risk_score", a.RiskScore).
		Msg("reading assessed")
	return nil
}

// hospitalFromTopic returns the topic level matched by the first wildcard
// in the subscription, e.g. "h1" for "ed/h1/vitals" under "ed/+/vitals".
func (f *Feed) hospitalFromTopic(topic string) string {
	filter := strings.Split(f.topic, "/")
	levels := strings.Split(topic, "/")
	for i, part := range filter {
		if part != "+" && part != "#" {
			continue
		}
		if i < len(levels) {
			return levels[i]
		}
		return ""
	}
	return ""
}

func (f *Feed) observe(outcome string) {
	if f.recorder != nil {
		f.recorder.DeviceMessage(outcome)
	}
}

// Dial connects to the broker with automatic reconnects. Subscriptions are
// restored by the broker session because CleanSession is off.
func Dial(brokerURL, clientID string, logger zerolog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetCleanSession(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn().Err(err).Str("broker", brokerURL).Msg("mqtt connection lost")
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info().Str("broker", brokerURL).Msg("mqtt connected")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect %s: timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", brokerURL, err)
	}
	return client, nil
}

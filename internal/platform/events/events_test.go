package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, evt Event) error {
	r.events = append(r.events, evt)
	return r.err
}

func TestNew_EncodesPayload(t *testing.T) {
	evt, err := New(PatientEscalated, HospitalTopic("7"), map[string]string{"to": "RED"})
	require.NoError(t, err)

	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, "hospital:7", evt.Topic)
	assert.False(t, evt.Timestamp.IsZero())
	assert.JSONEq(t, `{"to":"RED"}`, string(evt.Data))
}

func TestNew_NilPayload(t *testing.T) {
	evt, err := New(CrowdSurge, GovernmentTopic, nil)
	require.NoError(t, err)
	assert.Nil(t, evt.Data)
}

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("broker down")}
	m := Multi{ok, nil, failing}

	err := m.Publish(context.Background(), Event{Type: CrowdSurge})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, ok.events, 1)
	assert.Len(t, failing.events, 1)
}

func TestLogPublisher_WritesEvent(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))

	err := p.Publish(context.Background(), Event{ID: "e1", Type: PatientEscalated, HospitalID: "3", Data: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "patient:escalated", line["type"])
	assert.Equal(t, "3", line["hospital_id"])
	assert.Equal(t, "event published", line["message"])
}

type fakeNATSConn struct {
	subject string
	data    []byte
	drained bool
}

func (f *fakeNATSConn) Publish(subject string, data []byte) error {
	f.subject = subject
	f.data = data
	return nil
}

func (f *fakeNATSConn) Drain() error {
	f.drained = true
	return nil
}

func TestNATSPublisher_Subject(t *testing.T) {
	p := newNATSPublisher(&fakeNATSConn{}, "triage")

	tests := []struct {
		name string
		evt  Event
		want string
	}{
		{"with hospital", Event{Type: PatientEscalated, HospitalID: "42"}, "triage.patient.escalated.42"},
		{"without hospital", Event{Type: CrowdSurge}, "triage.crowd.surge"},
		{"wildcards escaped", Event{Type: CrowdSurge, HospitalID: "a*b>"}, "triage.crowd.surge.a_b_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Subject(tt.evt))
		})
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	conn := &fakeNATSConn{}
	p := newNATSPublisher(conn, "triage")

	require.NoError(t, p.Publish(context.Background(), Event{ID: "x", Type: CrowdSurge, HospitalID: "1"}))
	assert.Equal(t, "triage.crowd.surge.1", conn.subject)

	var decoded Event
	require.NoError(t, json.Unmarshal(conn.data, &decoded))
	assert.Equal(t, "x", decoded.ID)

	require.NoError(t, p.Close())
	assert.True(t, conn.drained)
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher_KeysByHospital(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	require.NoError(t, p.Publish(context.Background(), Event{Type: PatientEscalated, HospitalID: "9"}))
	require.NoError(t, p.Publish(context.Background(), Event{Type: CrowdSurge}))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "9", string(w.msgs[0].Key))
	assert.Equal(t, "crowd:surge", string(w.msgs[1].Key))
	assert.Equal(t, "type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, PatientEscalated, string(w.msgs[0].Headers[0].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "t")
	assert.Error(t, err)
	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "triage-events")
	require.NoError(t, err)
	assert.NotNil(t, p)
}

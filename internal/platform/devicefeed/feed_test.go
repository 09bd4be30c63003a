package devicefeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/edtriage/edtriage/internal/domain/deterioration"
)

type fakeAssessor struct {
	mu   sync.Mutex
	reqs []deterioration.Request
	err  error
}

func (f *fakeAssessor) Assess(_ context.Context, req deterioration.Request) (*deterioration.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	predicted := deterioration.Green
	if req.Snapshot.HeartRate > 140 {
		predicted = deterioration.Red
	}
	return &deterioration.Assessment{CurrentPriority: deterioration.Green, PredictedPriority: predicted}, nil
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *countingRecorder) DeviceMessage(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = map[string]int{}
	}
	c.outcomes[outcome]++
}

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool { return false }
func (m fakeMessage) Qos() byte { return 1 }
func (m fakeMessage) Retained() bool { return false }
func (m fakeMessage) Topic() string { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte { return m.payload }
func (m fakeMessage) Ack() {}

type fakeSubscriber struct {
	topic        string
	handler      mqtt.MessageHandler
	subErr       error
	unsubscribed []string
}

func (s *fakeSubscriber) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	s.topic, s.handler = topic, cb
	return doneToken{err: s.subErr}
}

func (s *fakeSubscriber) Unsubscribe(topics ...string) mqtt.Token {
	s.unsubscribed = append(s.unsubscribed, topics...)
	return doneToken{}
}

func TestHandleMessage_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		wantErr error
		outcome string
	}{
		{"assessed", "vitals/h1", `{"patientId":"p1","hospitalId":"h1","heartRate":80}`, nil, OutcomeAssessed},
		{"escalated", "vitals/h1", `{"patientId":"p1","vitalSigns":{"heartRate":150}}`, nil, OutcomeEscalated},
		{"missing patient", "vitals/h1", `{"heartRate":80}`, ErrMissingPatient, OutcomeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &countingRecorder{}
			f := newFeed(&fakeSubscriber{}, "vitals/+", &fakeAssessor{}, zerolog.Nop())
			f.SetRecorder(rec)

			err := f.HandleMessage(context.Background(), tt.topic, []byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if rec.outcomes[tt.outcome] != 1 {
				t.Errorf("expected one %s outcome, got %v", tt.outcome, rec.outcomes)
			}
		})
	}
}

func TestHandleMessage_Malformed(t *testing.T) {
	rec := &countingRecorder{}
	f := newFeed(&fakeSubscriber{}, "vitals/+", &fakeAssessor{}, zerolog.Nop())
	f.SetRecorder(rec)

	if err := f.HandleMessage(context.Background(), "vitals/h1", []byte(`[1,2]`)); err == nil {
		t.Fatal("expected decode error for a non-object payload")
	}
	if rec.outcomes[OutcomeInvalid] != 1 {
		t.Errorf("expected invalid outcome, got %v", rec.outcomes)
	}
}

func TestHandleMessage_AssessFailure(t *testing.T) {
	rec := &countingRecorder{}
	f := newFeed(&fakeSubscriber{}, "vitals", &fakeAssessor{err: errors.New("boom")}, zerolog.Nop())
	f.SetRecorder(rec)

	if err := f.HandleMessage(context.Background(), "vitals", []byte(`{"patientId":"p1"}`)); err == nil {
		t.Fatal("expected assess error")
	}
	if rec.outcomes[OutcomeFailed] != 1 {
		t.Errorf("expected failed outcome, got %v", rec.outcomes)
	}
}

func TestHandleMessage_HospitalFromTopic(t *testing.T) {
	tests := []struct {
		name      string
		subscribe string
		topic     string
		payload   string
		want      string
	}{
		{"wildcard fills hospital", "ward/vitals/+", "ward/vitals/h-77", `{"patientId":"p1"}`, "h-77"},
		{"payload wins", "ward/vitals/+", "ward/vitals/h-77", `{"patientId":"p1","hospitalId":"h-1"}`, "h-1"},
		{"wildcard in the middle", "ed/+/vitals", "ed/h-3/vitals", `{"patientId":"p1"}`, "h-3"},
		{"exact topic leaves it empty", "ward/vitals", "ward/vitals", `{"patientId":"p1"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeAssessor{}
			f := newFeed(&fakeSubscriber{}, tt.subscribe, svc, zerolog.Nop())

			if err := f.HandleMessage(context.Background(), tt.topic, []byte(tt.payload)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := svc.reqs[0].HospitalID; got != tt.want {
				t.Errorf("expected hospital %q, got %q", tt.want, got)
			}
		})
	}
}

func TestStart_SubscribesAndDispatches(t *testing.T) {
	sub := &fakeSubscriber{}
	svc := &fakeAssessor{}
	f := newFeed(sub, "vitals/+", svc, zerolog.Nop())

	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if sub.topic != "vitals/+" || sub.handler == nil {
		t.Fatalf("expected subscription to vitals/+, got %q", sub.topic)
	}

	sub.handler(nil, fakeMessage{topic: "vitals/h2", payload: []byte(`{"patientId":"p5","heartRate":150}`)})
	if len(svc.reqs) != 1 || svc.reqs[0].PatientID != "p5" || svc.reqs[0].HospitalID != "h2" {
		t.Fatalf("unexpected requests %+v", svc.reqs)
	}

	f.Stop()
	if len(sub.unsubscribed) != 1 || sub.unsubscribed[0] != "vitals/+" {
		t.Errorf("expected unsubscribe from vitals/+, got %v", sub.unsubscribed)
	}
}

func TestStart_SubscribeError(t *testing.T) {
	f := newFeed(&fakeSubscriber{subErr: errors.New("not authorized")}, "vitals/+", &fakeAssessor{}, zerolog.Nop())
	if err := f.Start(context.Background()); err == nil {
		t.Fatal("expected subscribe error")
	}
}

func TestStart_IgnoresMessagesAfterCancel(t *testing.T) {
	sub := &fakeSubscriber{}
	svc := &fakeAssessor{}
	ctx, cancel := context.WithCancel(context.Background())
	f := newFeed(sub, "vitals/+", svc, zerolog.Nop())
	if err := f.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	sub.handler(nil, fakeMessage{topic: "vitals/h2", payload: []byte(`{"patientId":"p5"}`)})
	if len(svc.reqs) != 0 {
		t.Errorf("expected no assessment after cancel, got %d", len(svc.reqs))
	}
}

package deterioration

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edtriage/edtriage/internal/platform/events"
)

// SymptomCounter derives a symptom count from a free-text complaint.
type SymptomCounter interface {
	CountSymptoms(text string) int
}

// Recorder receives one observation per assessment.
type Recorder interface {
	ObserveAssessment(ruleSet, predicted string, score float64, escalated bool)
}

// EscalationNotice is the payload of a patient:escalated event.
type EscalationNotice struct {
	PatientID         string     `json:"patientId"`
	HospitalID        string     `json:"hospitalId"`
	CurrentPriority   Priority   `json:"currentPriority"`
	PredictedPriority Priority   `json:"predictedPriority"`
	RiskScore         float64    `json:"riskScore"`
	ETAMinutes        *int       `json:"etaMinutes,omitempty"`
	EscalationTime    *time.Time `json:"predictedEscalationTime,omitempty"`
	Reasoning         []string   `json:"reasoning"`
	RuleSet           string     `json:"ruleSet"`
}

type Service struct {
	engine    *Engine
	logger    zerolog.Logger
	publisher events.Publisher
	recorder  Recorder
	symptoms  SymptomCounter
}

func NewService(engine *Engine, logger zerolog.Logger) *Service {
	return &Service{engine: engine, logger: logger}
}

// SetPublisher attaches an optional event publisher for escalations.
func (s *Service) SetPublisher(p events.Publisher) { s.publisher = p }

// SetRecorder attaches an optional metrics recorder.
func (s *Service) SetRecorder(r Recorder) { s.recorder = r }

// SetSymptomCounter attaches the extractor used when a request carries a
// chief complaint but no symptom list.
func (s *Service) SetSymptomCounter(c SymptomCounter) { s.symptoms = c }

func (s *Service) Engine() *Engine { return s.engine }

func (s *Service) IsReady() bool { return s != nil && s.engine.IsReady() }

// Assess scores one request. Escalations of patients with a known hospital
// are published; publish failures are logged and do not fail the assessment.
func (s *Service) Assess(ctx context.Context, req Request) (*Assessment, error) {
	snap := req.Snapshot
	if !req.SymptomsGiven && s.symptoms != nil && strings.TrimSpace(req.ChiefComplaint) != "" {
		snap.SymptomCount = s.symptoms.CountSymptoms(req.ChiefComplaint)
	}

	a := s.engine.Assess(snap)

	if s.recorder != nil {
		s.recorder.ObserveAssessment(a.RuleSet, string(a.PredictedPriority), a.RiskScore, a.Escalated())
	}

	if a.Escalated() {
		s.logger.Info().
			Str("patient_id", req.PatientID).
			Str("hospital_id", req.HospitalID).
			Str("from", string(a.CurrentPriority)).
			Str("to", string(a.PredictedPriority)).
			Float64("risk_score", a.RiskScore).
			Msg("escalation predicted")
		if s.publisher != nil && req.HospitalID != "" {
			s.publishEscalation(ctx, req, a)
		}
	}
	return a, nil
}

func (s *Service) publishEscalation(ctx context.Context, req Request, a *Assessment) {
	evt, err := events.New(events.PatientEscalated, events.HospitalTopic(req.HospitalID), EscalationNotice{
		PatientID:         req.PatientID,
		HospitalID:        req.HospitalID,
		CurrentPriority:   a.CurrentPriority,
		PredictedPriority: a.PredictedPriority,
		RiskScore:         a.RiskScore,
		ETAMinutes:        a.EscalationETAMinutes,
		EscalationTime:    a.PredictedEscalationTime,
		Reasoning:         a.Reasoning,
		RuleSet:           a.RuleSet,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("build escalation event")
		return
	}
	evt.HospitalID = req.HospitalID
	evt.PatientID = req.PatientID
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", req.PatientID).Msg("publish escalation")
	}
}

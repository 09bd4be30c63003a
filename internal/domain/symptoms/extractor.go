package symptoms

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	multiWordConfidence  = 0.85
	singleWordConfidence = 0.70
	patternConfidence    = 0.50
	conditionConfidence  = 0.90
	emptyConfidence      = 0.30
	maxPatternSymptoms   = 5
)

// Extractor pulls symptoms and conditions out of free-text complaints using
// keyword dictionaries. It holds no mutable state.
type Extractor struct {
	lang language.Tag
}

func NewExtractor() *Extractor {
	return &Extractor{lang: language.English}
}

func (x *Extractor) IsReady() bool { return x != nil && len(symptomKeywords) > 0 }

// CountSymptoms returns how many symptoms Extract finds in text.
func (x *Extractor) CountSymptoms(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return len(x.Extract(text).Symptoms)
}

func (x *Extractor) Extract(text string) *Extraction {
	// Casers are stateful; one per call keeps Extract safe for concurrent use.
	title := cases.Title(x.lang)
	lower := strings.ToLower(text)
	out := &Extraction{
		Symptoms:          []Symptom{},
		Conditions:        []Condition{},
		PredictedSeverity: Mild,
		Language:          detectLanguage(text),
		RawText:           text,
	}
	categories := make(map[string]bool)

	for _, kw := range symptomKeywords {
		if !strings.Contains(lower, kw.term) {
			continue
		}
		conf := singleWordConfidence
		if strings.Contains(kw.term, " ") {
			conf = multiWordConfidence
		}
		out.Symptoms = append(out.Symptoms, Symptom{
			Symptom:    title.String(kw.term),
			Severity:   kw.severity,
			Category:   kw.category,
			Confidence: conf,
		})
		categories[kw.category] = true
		if severityRank[kw.severity] > severityRank[out.PredictedSeverity] {
			out.PredictedSeverity = kw.severity
		}
	}

	added := 0
	for _, phrase := range patternPhrases(lower) {
		if added == maxPatternSymptoms {
			break
		}
		if covered(out.Symptoms, phrase) {
			continue
		}
		out.Symptoms = append(out.Symptoms, Symptom{
			Symptom:    title.String(phrase),
			Severity:   Moderate,
			Category:   "general",
			Confidence: patternConfidence,
		})
		// Pattern hits are unconfirmed and leave the predicted severity alone.
		categories["general"] = true
		added++
	}

	for _, c := range conditionKeywords {
		if strings.Contains(lower, c.term) {
			out.Conditions = append(out.Conditions, Condition{
				Condition:  title.String(c.term),
				Type:       c.kind,
				Confidence: conditionConfidence,
			})
		}
	}

	out.PredictedSpecialty = "General"
	for _, cat := range categoryPriority {
		if categories[cat] {
			out.PredictedSpecialty = specialtyByCategory[cat]
			break
		}
	}

	out.Confidence = emptyConfidence
	if len(out.Symptoms) > 0 {
		var sum float64
		for _, s := range out.Symptoms {
			sum += s.Confidence
		}
		out.Confidence, _ = decimal.NewFromFloat(sum / float64(len(out.Symptoms))).Round(2).Float64()
	}

	out.Suggestions = suggest(categories)
	return out
}

// patternPhrases finds words matching a symptom pattern and returns each
// with its neighbouring words for context, e.g. "knee swollen after".
func patternPhrases(lower string) []string {
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '\'' && r != '-')
	})
	var phrases []string
	for i, w := range words {
		if !matchesPattern(w) {
			continue
		}
		lo, hi := max(i-1, 0), min(i+2, len(words))
		phrases = append(phrases, strings.Join(words[lo:hi], " "))
	}
	return phrases
}

func matchesPattern(word string) bool {
	for _, p := range symptomPatterns {
		if strings.Contains(word, p) {
			return true
		}
	}
	return false
}

func covered(found []Symptom, phrase string) bool {
	for _, s := range found {
		if strings.Contains(strings.ToLower(s.Symptom), phrase) {
			return true
		}
	}
	return false
}

func suggest(categories map[string]bool) Suggestions {
	s := Suggestions{
		AdditionalSymptomsToCheck: []string{},
		RecommendedTests:          []string{},
		RiskFactorsToAssess:       []string{},
	}
	for _, cat := range suggestionOrder {
		if !categories[cat] {
			continue
		}
		add := suggestionsByCategory[cat]
		s.AdditionalSymptomsToCheck = append(s.AdditionalSymptomsToCheck, add.AdditionalSymptomsToCheck...)
		s.RecommendedTests = append(s.RecommendedTests, add.RecommendedTests...)
		s.RiskFactorsToAssess = append(s.RiskFactorsToAssess, add.RiskFactorsToAssess...)
	}
	return s
}

// detectLanguage recognises the Indic scripts complaints commonly arrive in
// and defaults to English.
func detectLanguage(text string) string {
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Devanagari, r):
			return "hi"
		case unicode.Is(unicode.Bengali, r):
			return "bn"
		case unicode.Is(unicode.Tamil, r):
			return "ta"
		case unicode.Is(unicode.Telugu, r):
			return "te"
		}
	}
	return "en"
}

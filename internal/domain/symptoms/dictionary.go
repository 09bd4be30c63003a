package symptoms

type keyword struct {
	term     string
	severity string
	category string
}

// symptomKeywords is scanned in order, so extraction output is stable.
var symptomKeywords = []keyword{
	{"chest pain", Critical, "cardiac"},
	{"chest discomfort", Severe, "cardiac"},
	{"heart", Severe, "cardiac"},
	{"shortness of breath", Severe, "respiratory"},
	{"difficulty breathing", Severe, "respiratory"},
	{"can't breathe", Critical, "respiratory"},
	{"breathe", Moderate, "respiratory"},
	{"dyspnea", Severe, "respiratory"},
	{"headache", Moderate, "neurological"},
	{"severe headache", Severe, "neurological"},
	{"dizzy", Moderate, "neurological"},
	{"dizziness", Moderate, "neurological"},
	{"nausea", Mild, "gastrointestinal"},
	{"vomit", Moderate, "gastrointestinal"},
	{"abdominal pain", Moderate, "gastrointestinal"},
	{"stomach pain", Moderate, "gastrointestinal"},
	{"bleeding", Critical, "trauma"},
	{"blood", Severe, "trauma"},
	{"fever", Moderate, "infectious"},
	{"high fever", Severe, "infectious"},
	{"seizure", Critical, "neurological"},
	{"unconscious", Critical, "neurological"},
	{"weak", Moderate, "general"},
	{"weakness", Moderate, "general"},
	{"pain", Moderate, "general"},
	{"severe pain", Severe, "general"},
	{"cough", Mild, "respiratory"},
	{"stroke", Critical, "neurological"},
	{"trauma", Severe, "trauma"},
	{"injury", Moderate, "trauma"},
	{"fracture", Severe, "trauma"},
	{"burn", Severe, "trauma"},
}

var conditionKeywords = []struct {
	term string
	kind string
}{
	{"heart attack", "cardiac_emergency"},
	{"stroke", "neurological_emergency"},
	{"anaphylaxis", "allergic_emergency"},
	{"sepsis", "infectious_emergency"},
	{"pneumonia", "respiratory_infection"},
	{"asthma", "respiratory_chronic"},
	{"copd", "respiratory_chronic"},
	{"diabetes", "metabolic_chronic"},
	{"hypertension", "cardiovascular_chronic"},
}

// symptomPatterns catch complaint words missing from the dictionary.
var symptomPatterns = []string{
	"pain", "ache", "sore", "hurt", "discomfort",
	"swelling", "swollen", "inflammation", "inflamed",
	"rash", "itching", "burning", "tingling",
	"discharge", "bleeding", "bruising",
	"numbness", "stiffness", "cramping",
}

// categoryPriority picks the specialty when several categories match.
var categoryPriority = []string{"cardiac", "respiratory", "neurological", "trauma", "gastrointestinal", "infectious", "general"}

var specialtyByCategory = map[string]string{
	"cardiac":          "Cardiology",
	"respiratory":      "Pulmonology",
	"neurological":     "Neurology",
	"trauma":           "Trauma",
	"gastrointestinal": "General",
	"infectious":       "General",
	"general":          "General",
}

var suggestionsByCategory = map[string]Suggestions{
	"cardiac": {
		AdditionalSymptomsToCheck: []string{"Radiation of pain to arm/jaw", "Sweating", "Shortness of breath"},
		RecommendedTests:          []string{"ECG", "Troponin levels"},
		RiskFactorsToAssess:       []string{"Diabetes", "Hypertension", "Smoking history"},
	},
	"respiratory": {
		AdditionalSymptomsToCheck: []string{"Wheezing", "Cough", "Sputum production"},
		RecommendedTests:          []string{"Oxygen saturation", "Chest X-ray"},
		RiskFactorsToAssess:       []string{"Asthma", "COPD", "Smoking history"},
	},
	"neurological": {
		AdditionalSymptomsToCheck: []string{"Vision changes", "Speech difficulty", "Facial drooping", "Limb weakness"},
		RecommendedTests:          []string{"CT scan", "Neurological assessment"},
	},
	"trauma": {
		AdditionalSymptomsToCheck: []string{"Mechanism of injury", "Loss of consciousness", "Range of motion"},
		RecommendedTests:          []string{"X-ray", "Physical examination"},
	},
}

// suggestionOrder fixes the order categories contribute suggestions in.
var suggestionOrder = []string{"cardiac", "respiratory", "neurological", "trauma"}

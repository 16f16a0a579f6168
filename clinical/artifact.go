package clinical

// ExtractionArtifact is the JSON document the Extractor stores and the
// Analyzer loads.
type ExtractionArtifact struct {
	DocumentID string              `json:"document_id"`
	Conditions []Condition         `json:"conditions"`
	Metadata   ExtractionMetadata  `json:"metadata"`
}

// ExtractionMetadata aggregates extraction-stage counts and provenance.
type ExtractionMetadata struct {
	Source            string   `json:"source"`
	TotalConditions   int      `json:"total_conditions"`
	RuleBasedCount    int      `json:"rule_based_count"`
	LLMBasedCount     int      `json:"llm_based_count"`
	ExtractionMethod  string   `json:"extraction_method"`
	Errors            []string `json:"errors,omitempty"`
	PatientInfo       JSONMap  `json:"patient_info,omitempty"`
}

// AnalysisArtifact is the JSON document the Analyzer stores and the
// Validator loads.
type AnalysisArtifact struct {
	DocumentID string           `json:"document_id"`
	Conditions []Condition      `json:"conditions"`
	Metadata   AnalysisMetadata `json:"metadata"`
	Errors     []string         `json:"errors,omitempty"`
}

// AnalysisMetadata holds the aggregate figures computed in the Analyzer's
// finalize step, already NaN-sanitized (see §8 property 7).
type AnalysisMetadata struct {
	TotalConditions      int     `json:"total_conditions"`
	HCCRelevantCount     int     `json:"hcc_relevant_count"`
	HighConfidenceCount  int     `json:"high_confidence_count"`
	MeanConfidence       *float64 `json:"mean_confidence"`
	ErrorCount           int     `json:"error_count"`
}

// ValidationArtifact is the JSON document the Validator stores; it is the
// last artifact in the chain.
type ValidationArtifact struct {
	DocumentID string             `json:"document_id"`
	Conditions []Condition        `json:"conditions"`
	Metadata   ValidationMetadata `json:"metadata"`
}

// ValidationMetadata carries forward the analysis aggregates plus the
// validator's own totals.
type ValidationMetadata struct {
	AnalysisMetadata
	TotalConditions       int `json:"total_conditions"`
	CompliantConditions   int `json:"compliant_conditions"`
	NonCompliantConditions int `json:"non_compliant_conditions"`
}

package clinical

// Condition is a single diagnosis carried through extraction, analysis, and
// validation. It is never a registry row — it only ever exists embedded in a
// stage artifact. Its ID is assigned once, at extraction, and never
// reassigned by later stages.
type Condition struct {
	ID     string `json:"id"`
	Name   string `json:"name"`

	ICDCode        string `json:"icd_code,omitempty"`
	ICDCodeNoDot   string `json:"icd_code_no_dot,omitempty"`
	ICDDescription string `json:"icd_description,omitempty"`

	Details    string  `json:"details,omitempty"`
	Status     string  `json:"status,omitempty"`
	Confidence float64 `json:"confidence"`

	HCCRelevant bool   `json:"hcc_relevant"`
	HCCCode     string `json:"hcc_code,omitempty"`
	HCCCategory string `json:"hcc_category,omitempty"`
	Reasoning   string `json:"reasoning,omitempty"`

	Metadata JSONMap `json:"metadata,omitempty"`

	// Validation-only extension, populated by the Validator stage.
	IsCompliant       *bool             `json:"is_compliant,omitempty"`
	ValidationResults []ValidationEntry `json:"validation_results,omitempty"`
}

// ValidationEntry is one rule's verdict on a Condition, as returned by the
// rules engine's Evaluate.
type ValidationEntry struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Passed      bool   `json:"passed"`
}

// NormalizeICDCodes fills in whichever of ICDCode / ICDCodeNoDot is missing,
// given the other is known. Dot removal is the single transformation
// performed between the two forms.
func (c *Condition) NormalizeICDCodes() {
	if c.ICDCode != "" && c.ICDCodeNoDot == "" {
		c.ICDCodeNoDot = stripDot(c.ICDCode)
	}
	if c.ICDCodeNoDot != "" && c.ICDCode == "" {
		c.ICDCode = c.ICDCodeNoDot
	}
}

func stripDot(code string) string {
	out := make([]byte, 0, len(code))
	for i := 0; i < len(code); i++ {
		if code[i] != '.' {
			out = append(out, code[i])
		}
	}
	return string(out)
}

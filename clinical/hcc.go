package clinical

// HCCEntry is one row of the reference code table: an ICD-10 code mapped to
// its risk-adjustment category.
type HCCEntry struct {
	ICDCode     string `json:"icd_code"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// UncategorizedTag is substituted for a missing or NaN Tags column when the
// reference CSV is loaded.
const UncategorizedTag = "UNCATEGORIZED"

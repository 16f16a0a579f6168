package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"hccpipe.dev/clinical"
)

var (
	namePattern       = regexp.MustCompile(`Name\s*(.*?)(?:\s*\(|ID#|$)`)
	ageGenderPattern  = regexp.MustCompile(`\((\d+)yo,\s*([MF])\)`)
	idPattern         = regexp.MustCompile(`ID#\s*(\d+)`)
	dobPattern        = regexp.MustCompile(`DOB\s*(\d{2}/\d{2}/\d{4})`)
	providerPattern   = regexp.MustCompile(`Provider\s*(.+?)(?:\n|$)`)
	appointmentDateRe = regexp.MustCompile(`Appt\.\s*Date/Time\s*(\d{2}/\d{2}/\d{4})`)
	chiefComplaintRe  = regexp.MustCompile(`(?s)Chief Complaint\s*\n(.*?)(?:\n\n|\n\w)`)

	assessmentPlanRe = regexp.MustCompile(
		`(?is)(?:Assessment\s*/?\s*Plan|Assessment and Plan)[\s\n]*(.*?)(?:\n\s*(?:Return to Office|Encounter Sign-Off|Follow-up|Plan of Care)|$)`,
	)
	conditionLineRe = regexp.MustCompile(`(?m)(\d+)\.\s*(.*?)\s*-\s*(.*?)(?:\n|$)`)
	icdCodeLineRe   = regexp.MustCompile(`([A-Z]\d+\.\d+):\s*(.*?)(?:\n|$)`)
)

// parsePatientMetadata pulls the optional patient/appointment fields a
// clinical note carries in its header. Every field is best-effort; absence
// is not an error.
func parsePatientMetadata(content string) clinical.JSONMap {
	meta := clinical.JSONMap{}

	if m := namePattern.FindStringSubmatch(content); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			meta["name"] = name
		}
	}
	if m := ageGenderPattern.FindStringSubmatch(content); m != nil {
		if age, err := strconv.Atoi(m[1]); err == nil {
			meta["age"] = age
		}
		if m[2] == "M" {
			meta["gender"] = "Male"
		} else {
			meta["gender"] = "Female"
		}
	}
	if m := idPattern.FindStringSubmatch(content); m != nil {
		meta["id"] = strings.TrimSpace(m[1])
	}
	if m := dobPattern.FindStringSubmatch(content); m != nil {
		meta["dob"] = strings.TrimSpace(m[1])
	}
	if m := providerPattern.FindStringSubmatch(content); m != nil {
		meta["provider"] = strings.TrimSpace(m[1])
	}
	if m := appointmentDateRe.FindStringSubmatch(content); m != nil {
		meta["appointment_date"] = strings.TrimSpace(m[1])
	}
	if m := chiefComplaintRe.FindStringSubmatch(content); m != nil {
		meta["chief_complaint"] = strings.TrimSpace(m[1])
	}

	return meta
}

// extractAssessmentPlan locates the Assessment/Plan section. Returns "" when
// no such section is found — the rule-based extraction simply yields no
// conditions in that case.
func extractAssessmentPlan(content string) string {
	m := assessmentPlanRe.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractConditionsRuleBased finds every numbered "<n>. <name> - <details>"
// line in section and pulls an ICD-10 code/description pair out of details
// when present.
func extractConditionsRuleBased(section string) []clinical.Condition {
	if section == "" {
		return nil
	}

	var conditions []clinical.Condition
	for _, m := range conditionLineRe.FindAllStringSubmatch(section, -1) {
		number := m[1]
		name := strings.TrimSpace(m[2])
		details := strings.TrimSpace(m[3])

		var icdCode, icdDescription string
		if icdMatch := icdCodeLineRe.FindStringSubmatch(details); icdMatch != nil {
			icdCode = strings.TrimSpace(icdMatch[1])
			icdDescription = strings.TrimSpace(icdMatch[2])
		}

		conditions = append(conditions, clinical.Condition{
			ID:             "cond-" + number,
			Name:           name,
			ICDCode:        icdCode,
			ICDDescription: icdDescription,
			Details:        details,
			Confidence:     1.0,
			Metadata: clinical.JSONMap{
				"extraction_method": "rule_based",
				"section_number":    number,
			},
		})
	}
	return conditions
}

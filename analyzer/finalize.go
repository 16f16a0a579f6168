package analyzer

import "hccpipe.dev/clinical"

// highConfidenceThreshold mirrors the threshold the rule-based pass already
// uses to mark a condition as settled without LLM enrichment.
const highConfidenceThreshold = 0.9

// finalizeMetadata is step 5: compute the aggregate counters the analysis
// artifact carries alongside its conditions. MeanConfidence is left nil
// rather than computed as 0/0 when there are no conditions, so the artifact
// never carries a float value that could not have come from a real mean.
func finalizeMetadata(conditions []clinical.Condition, errs []string) clinical.AnalysisMetadata {
	meta := clinical.AnalysisMetadata{
		TotalConditions: len(conditions),
		ErrorCount:      len(errs),
	}

	if len(conditions) == 0 {
		return meta
	}

	var confidenceSum float64
	for _, c := range conditions {
		if c.HCCRelevant {
			meta.HCCRelevantCount++
		}
		if c.Confidence >= highConfidenceThreshold {
			meta.HighConfidenceCount++
		}
		confidenceSum += c.Confidence
	}

	mean := confidenceSum / float64(len(conditions))
	meta.MeanConfidence = &mean
	return meta
}

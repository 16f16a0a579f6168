package analyzer

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hccpipe.dev/clinical"
	"hccpipe.dev/hccref"
)

func newTestReference(t *testing.T) *hccref.Reference {
	t.Helper()
	path := writeTempCSV(t, "ICD-10-CM Codes,Description,Tags\nE11.9,Type 2 diabetes mellitus without complications,HCC19\n")
	return hccref.New(path, logrus.NewEntry(logrus.StandardLogger()))
}

func TestDetermineHCCRelevance_Match(t *testing.T) {
	ref := newTestReference(t)
	conditions := []clinical.Condition{{ID: "c1", ICDCode: "E11.9"}}

	determineHCCRelevance(conditions, ref)

	require.True(t, conditions[0].HCCRelevant)
	assert.Equal(t, "HCC19", conditions[0].HCCCategory)
	assert.Equal(t, 1.0, conditions[0].Confidence)
}

func TestDetermineHCCRelevance_NoMatch(t *testing.T) {
	ref := newTestReference(t)
	conditions := []clinical.Condition{{ID: "c1", ICDCode: "Z99.9"}}

	determineHCCRelevance(conditions, ref)

	assert.False(t, conditions[0].HCCRelevant)
	assert.Equal(t, 0.8, conditions[0].Confidence)
}

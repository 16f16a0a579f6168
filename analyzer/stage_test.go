package analyzer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hccpipe.dev/artifactstore"
	"hccpipe.dev/clinical"
	"hccpipe.dev/llmclient"
)

func TestStage_Handle_ComputesAggregateMetadata(t *testing.T) {
	store := artifactstore.NewMockStore()
	reg := &fakeRegistry{}
	b, _ := testBusWithChannel(t)
	ref := newTestReference(t)
	llm := llmclient.NewMockClient(`{"conditions": []}`)

	docID := uuid.New()
	extraction := clinical.ExtractionArtifact{
		DocumentID: docID.String(),
		Conditions: []clinical.Condition{
			{ID: "c1", Name: "Type 2 diabetes mellitus", ICDCode: "E11.9", Confidence: 1.0},
			{ID: "c2", Name: "Unrelated condition", ICDCode: "Z99.9", Confidence: 1.0},
		},
	}
	loc, err := artifactstore.StoreJSON(context.Background(), store, extraction, "extraction.json")
	require.NoError(t, err)

	stage := New(store, reg, b, ref, llm, nil)

	msg := clinical.ExtractionCompletedMessage{
		Envelope:             clinical.Envelope{MessageID: "m1", MessageType: clinical.MessageExtractionCompleted, DocumentID: docID.String()},
		ExtractionResultPath: loc.Path,
		TotalConditions:      2,
	}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	err = stage.Handle(context.Background(), body)
	require.NoError(t, err)

	assert.Equal(t, clinical.StatusAnalyzing, reg.lastStatus)
	require.Equal(t, 1, reg.resultsCalls)
	require.NotNil(t, reg.lastPatch.HCCRelevantConditions)
	assert.Equal(t, 1, *reg.lastPatch.HCCRelevantConditions)

	var stored clinical.AnalysisArtifact
	require.NoError(t, artifactstore.GetJSON(context.Background(), store, clinical.Storage{Path: *reg.lastPatch.AnalysisResultPath}, &stored))
	assert.Equal(t, 2, stored.Metadata.TotalConditions)
	assert.Equal(t, 1, stored.Metadata.HCCRelevantCount)
	require.NotNil(t, stored.Metadata.MeanConfidence)
}

func TestStage_Handle_LLMFailureIsNotFatal(t *testing.T) {
	store := artifactstore.NewMockStore()
	reg := &fakeRegistry{}
	b, _ := testBusWithChannel(t)
	ref := newTestReference(t)
	llm := llmclient.NewFailingMockClient(nil)

	docID := uuid.New()
	extraction := clinical.ExtractionArtifact{
		DocumentID: docID.String(),
		Conditions: []clinical.Condition{
			{ID: "c1", Name: "Unclear condition", ICDCode: "Z99.9", Confidence: 0.5},
		},
	}
	loc, err := artifactstore.StoreJSON(context.Background(), store, extraction, "extraction.json")
	require.NoError(t, err)

	stage := New(store, reg, b, ref, llm, nil)
	msg := clinical.ExtractionCompletedMessage{
		Envelope:             clinical.Envelope{MessageID: "m1", MessageType: clinical.MessageExtractionCompleted, DocumentID: docID.String()},
		ExtractionResultPath: loc.Path,
	}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	err = stage.Handle(context.Background(), body)
	require.NoError(t, err)
	require.Equal(t, 1, reg.resultsCalls)
}

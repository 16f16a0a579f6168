// Package analyzer implements the second pipeline stage: it loads the
// extraction artifact, determines HCC relevance by direct reference lookup,
// optionally enriches low-confidence conditions with an LLM pass, and
// finalizes the aggregate metadata before handing off to the Validator.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"hccpipe.dev/artifactstore"
	"hccpipe.dev/bus"
	"hccpipe.dev/clinical"
	"hccpipe.dev/hccref"
	"hccpipe.dev/llmclient"
	"hccpipe.dev/registry"
)

// Stage implements pipeline.Handler for document.extraction.completed.
type Stage struct {
	store *registryStore
	bus   *bus.Bus
	ref   *hccref.Reference
	llm   llmclient.Client
	log   *logrus.Entry
}

type registryStore struct {
	artifacts artifactstore.Store
	registry  registry.Updater
}

// New builds an Analyzer stage.
func New(artifacts artifactstore.Store, reg registry.Updater, b *bus.Bus, ref *hccref.Reference, llm llmclient.Client, log *logrus.Entry) *Stage {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Stage{
		store: &registryStore{artifacts: artifacts, registry: reg},
		bus:   b,
		ref:   ref,
		llm:   llm,
		log:   log.WithField("stage", "analyzer"),
	}
}

func (s *Stage) MessageType() clinical.MessageType { return clinical.MessageExtractionCompleted }

func (s *Stage) Handle(ctx context.Context, body []byte) error {
	var msg clinical.ExtractionCompletedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("analyzer: decode extraction.completed message: %w", err)
	}
	docID, err := msg.ParseDocumentID()
	if err != nil {
		return fmt.Errorf("analyzer: parse document id: %w", err)
	}
	entry := s.log.WithField("document_id", docID.String())

	if err := s.store.registry.UpdateStatus(ctx, docID, clinical.StatusAnalyzing, ""); err != nil {
		return fmt.Errorf("analyzer: update status: %w", err)
	}

	var extraction clinical.ExtractionArtifact
	if err := artifactstore.GetJSON(ctx, s.store.artifacts, clinical.Storage{Path: msg.ExtractionResultPath}, &extraction); err != nil {
		return fmt.Errorf("analyzer: load extraction artifact: %w", err)
	}

	conditions := extraction.Conditions

	// Step 3: rule-based relevance, always run first.
	determineHCCRelevance(conditions, s.ref)

	// Step 4: LLM enrichment, strictly after step 3 and only when needed.
	var analysisErrors []string
	if err := enrichWithLLM(ctx, s.llm, conditions, s.ref); err != nil {
		entry.WithError(err).Warn("llm enrichment failed, keeping rule-based analysis")
		analysisErrors = append(analysisErrors, "llm_failed: "+err.Error())
	}

	// Step 5: finalize aggregate metadata, strictly after steps 3 and 4.
	metadata := finalizeMetadata(conditions, analysisErrors)

	artifact := clinical.AnalysisArtifact{
		DocumentID: docID.String(),
		Conditions: conditions,
		Metadata:   metadata,
		Errors:     analysisErrors,
	}

	loc, err := artifactstore.StoreJSON(ctx, s.store.artifacts, artifact, fmt.Sprintf("%s-analysis.json", docID))
	if err != nil {
		return fmt.Errorf("analyzer: store artifact: %w", err)
	}

	hccRelevant := metadata.HCCRelevantCount
	if err := s.store.registry.UpdateResults(ctx, docID, registry.ResultsPatch{
		HCCRelevantConditions: &hccRelevant,
		AnalysisResultPath:    &loc.Path,
	}); err != nil {
		return fmt.Errorf("analyzer: update results: %w", err)
	}

	if err := s.bus.Publish(bus.RoutingAnalysisCompleted, clinical.AnalysisCompletedMessage{
		Envelope: clinical.Envelope{
			MessageID:   docID.String() + "-analysis",
			MessageType: clinical.MessageAnalysisCompleted,
			DocumentID:  docID.String(),
		},
		AnalysisResultPath:    loc.Path,
		HCCRelevantConditions: hccRelevant,
	}, 0); err != nil {
		return fmt.Errorf("analyzer: publish analysis.completed: %w", err)
	}

	return nil
}

// Package extractor implements the first pipeline stage: it reads the
// original document, pulls its Assessment/Plan section, extracts conditions
// by regex and by LLM, merges the two, and pre-tags HCC relevance before
// handing off to the Analyzer.
package extractor

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

// Stage implements pipeline.Handler for document.uploaded.
type Stage struct {
	store *registryStore
	bus   *bus.Bus
	ref   *hccref.Reference
	llm   llmclient.Client
	log   *logrus.Entry
}

// registryStore bundles the two collaborators Handle needs from the
// registry and artifact store, named to keep Stage's own field list short.
type registryStore struct {
	artifacts artifactstore.Store
	registry  registry.Updater
}

// New builds an Extractor stage.
func New(artifacts artifactstore.Store, reg registry.Updater, b *bus.Bus, ref *hccref.Reference, llm llmclient.Client, log *logrus.Entry) *Stage {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Stage{
		store: &registryStore{artifacts: artifacts, registry: reg},
		bus:   b,
		ref:   ref,
		llm:   llm,
		log:   log.WithField("stage", "extractor"),
	}
}

func (s *Stage) MessageType() clinical.MessageType { return clinical.MessageUploaded }

func (s *Stage) Handle(ctx context.Context, body []byte) error {
	var msg clinical.UploadedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("extractor: decode uploaded message: %w", err)
	}
	docID, err := msg.ParseDocumentID()
	if err != nil {
		return fmt.Errorf("extractor: parse document id: %w", err)
	}
	entry := s.log.WithField("document_id", docID.String())

	if err := s.store.registry.UpdateStatus(ctx, docID, clinical.StatusExtracting, ""); err != nil {
		return fmt.Errorf("extractor: update status: %w", err)
	}

	content, err := s.loadContent(ctx, msg)
	if err != nil {
		return fmt.Errorf("extractor: load document content: %w", err)
	}

	patientInfo := parsePatientMetadata(content)
	section := extractAssessmentPlan(content)
	ruleConditions := extractConditionsRuleBased(section)

	var extractionErrors []string
	llmConditions, llmErr := runExtractionLLM(ctx, s.llm, extractionPrompt(content))
	if llmErr != nil {
		entry.WithError(llmErr).Warn("llm extraction failed, proceeding with rule-based output only")
		extractionErrors = append(extractionErrors, "llm_failed: "+llmErr.Error())
		llmConditions = nil
	}

	conditions, ruleCount, llmCount := mergeConditions(ruleConditions, llmConditions)
	for i := range conditions {
		conditions[i].NormalizeICDCodes()
		s.tagHCCRelevance(&conditions[i])
	}

	method := "rule_based"
	switch {
	case ruleCount > 0 && llmCount > 0:
		method = "hybrid"
	case ruleCount == 0 && llmCount > 0:
		method = "llm_only"
	}

	artifact := clinical.ExtractionArtifact{
		DocumentID: docID.String(),
		Conditions: conditions,
		Metadata: clinical.ExtractionMetadata{
			Source:           msg.StoragePath,
			TotalConditions:  len(conditions),
			RuleBasedCount:   ruleCount,
			LLMBasedCount:    llmCount,
			ExtractionMethod: method,
			Errors:           extractionErrors,
			PatientInfo:      patientInfo,
		},
	}

	loc, err := artifactstore.StoreJSON(ctx, s.store.artifacts, artifact, fmt.Sprintf("%s-extraction.json", docID))
	if err != nil {
		return fmt.Errorf("extractor: store artifact: %w", err)
	}

	total := len(conditions)
	if err := s.store.registry.UpdateResults(ctx, docID, registry.ResultsPatch{
		TotalConditions:      &total,
		ExtractionResultPath: &loc.Path,
		PatientInfo:          patientInfo,
	}); err != nil {
		return fmt.Errorf("extractor: update results: %w", err)
	}

	if err := s.bus.Publish(bus.RoutingExtractionCompleted, clinical.ExtractionCompletedMessage{
		Envelope: clinical.Envelope{
			MessageID:   docID.String() + "-extraction",
			MessageType: clinical.MessageExtractionCompleted,
			DocumentID:  docID.String(),
		},
		ExtractionResultPath: loc.Path,
		TotalConditions:      total,
	}, 0); err != nil {
		return fmt.Errorf("extractor: publish extraction.completed: %w", err)
	}

	return nil
}

// loadContent returns the document's text, preferring an inline payload the
// publisher may have embedded over a round trip to the artifact store.
func (s *Stage) loadContent(ctx context.Context, msg clinical.UploadedMessage) (string, error) {
	if msg.DocumentContent != nil {
		return *msg.DocumentContent, nil
	}
	data, _, err := s.store.artifacts.Get(ctx, clinical.Storage{Kind: clinical.StorageKind(msg.StorageType), Path: msg.StoragePath})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Stage) tagHCCRelevance(c *clinical.Condition) {
	if c.Metadata == nil {
		c.Metadata = clinical.JSONMap{}
	}
	relevant := s.ref.IsHCCRelevant(c.ICDCode) || s.ref.IsHCCRelevant(c.ICDCodeNoDot)
	c.Metadata["is_hcc_relevant"] = relevant
}

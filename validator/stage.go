// Package validator implements the terminal pipeline stage: it loads the
// analysis artifact, runs the compliance rules engine over every condition,
// and marks the document Completed regardless of how many conditions fail
// their rules — non-compliance is a finding, not a pipeline error.
package validator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"hccpipe.dev/artifactstore"
	"hccpipe.dev/bus"
	"hccpipe.dev/clinical"
	"hccpipe.dev/registry"
	"hccpipe.dev/rules"
)

// Stage implements pipeline.Handler for document.analysis.completed.
type Stage struct {
	store *registryStore
	bus   *bus.Bus
	rules *rules.Engine
	log   *logrus.Entry
}

type registryStore struct {
	artifacts artifactstore.Store
	registry  registry.Updater
}

// New builds a Validator stage.
func New(artifacts artifactstore.Store, reg registry.Updater, b *bus.Bus, engine *rules.Engine, log *logrus.Entry) *Stage {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Stage{
		store: &registryStore{artifacts: artifacts, registry: reg},
		bus:   b,
		rules: engine,
		log:   log.WithField("stage", "validator"),
	}
}

func (s *Stage) MessageType() clinical.MessageType { return clinical.MessageAnalysisCompleted }

func (s *Stage) Handle(ctx context.Context, body []byte) error {
	var msg clinical.AnalysisCompletedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("validator: decode analysis.completed message: %w", err)
	}
	docID, err := msg.ParseDocumentID()
	if err != nil {
		return fmt.Errorf("validator: parse document id: %w", err)
	}

	if err := s.store.registry.UpdateStatus(ctx, docID, clinical.StatusValidating, ""); err != nil {
		return fmt.Errorf("validator: update status: %w", err)
	}

	var analysis clinical.AnalysisArtifact
	if err := artifactstore.GetJSON(ctx, s.store.artifacts, clinical.Storage{Path: msg.AnalysisResultPath}, &analysis); err != nil {
		return fmt.Errorf("validator: load analysis artifact: %w", err)
	}

	conditions := analysis.Conditions
	compliant := 0
	for i := range conditions {
		c := &conditions[i]
		results := s.rules.Evaluate(*c)
		c.ValidationResults = results

		allPassed := true
		for _, r := range results {
			if !r.Passed {
				allPassed = false
				break
			}
		}
		c.IsCompliant = &allPassed
		if allPassed {
			compliant++
		}
	}

	artifact := clinical.ValidationArtifact{
		DocumentID: docID.String(),
		Conditions: conditions,
		Metadata: clinical.ValidationMetadata{
			AnalysisMetadata:       analysis.Metadata,
			TotalConditions:        len(conditions),
			CompliantConditions:    compliant,
			NonCompliantConditions: len(conditions) - compliant,
		},
	}

	loc, err := artifactstore.StoreJSON(ctx, s.store.artifacts, artifact, fmt.Sprintf("%s-validation.json", docID))
	if err != nil {
		return fmt.Errorf("validator: store artifact: %w", err)
	}

	total := len(conditions)
	if err := s.store.registry.UpdateResults(ctx, docID, registry.ResultsPatch{
		CompliantConditions:  &compliant,
		ValidationResultPath: &loc.Path,
	}); err != nil {
		return fmt.Errorf("validator: update results: %w", err)
	}

	if err := s.store.registry.UpdateStatus(ctx, docID, clinical.StatusCompleted, ""); err != nil {
		return fmt.Errorf("validator: mark completed: %w", err)
	}

	if err := s.bus.Publish(bus.RoutingValidationCompleted, clinical.ValidationCompletedMessage{
		Envelope: clinical.Envelope{
			MessageID:   docID.String() + "-validation",
			MessageType: clinical.MessageValidationCompleted,
			DocumentID:  docID.String(),
		},
		ValidationResultPath: loc.Path,
		CompliantConditions:  compliant,
		TotalConditions:      total,
	}, 0); err != nil {
		return fmt.Errorf("validator: publish validation.completed: %w", err)
	}

	return nil
}

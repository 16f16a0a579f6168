package clinical

import (
	"github.com/google/uuid"
)

// MessageType discriminates the five event shapes carried over the bus.
// Unknown values are dropped by consumers rather than treated as fatal (see
// the state-machine design notes on dynamic, string-keyed messages).
type MessageType string

const (
	MessageUploaded            MessageType = "document.uploaded"
	MessageExtractionCompleted MessageType = "extraction.completed"
	MessageAnalysisCompleted   MessageType = "analysis.completed"
	MessageValidationCompleted MessageType = "validation.completed"
	MessageError               MessageType = "error"
)

// Envelope carries the fields every pipeline message has in common.
// DocumentID is kept as a string on the wire so a malformed value can be
// detected and dropped by the consumer instead of failing JSON decoding
// outright (see S4: malformed UUID is acked and dropped, not a crash).
type Envelope struct {
	MessageID   string      `json:"message_id"`
	Timestamp   int64       `json:"timestamp"`
	MessageType MessageType `json:"message_type"`
	DocumentID  string      `json:"document_id"`
}

// ParseDocumentID validates the envelope's document id. Callers that get an
// error must log and ack (drop) the message rather than treat it as a
// retryable failure.
func (e Envelope) ParseDocumentID() (uuid.UUID, error) {
	return uuid.Parse(e.DocumentID)
}

// UploadedMessage is published when a document first enters the pipeline,
// by either the gateway's upload handler or the watcher.
type UploadedMessage struct {
	Envelope
	StoragePath     string  `json:"storage_path"`
	StorageType     string  `json:"storage_type"`
	ContentType     string  `json:"content_type"`
	DocumentContent *string `json:"document_content,omitempty"`
	Priority        bool    `json:"priority,omitempty"`
}

// ExtractionCompletedMessage is published by the Extractor.
type ExtractionCompletedMessage struct {
	Envelope
	ExtractionResultPath string `json:"extraction_result_path"`
	TotalConditions      int    `json:"total_conditions"`
}

// AnalysisCompletedMessage is published by the Analyzer.
type AnalysisCompletedMessage struct {
	Envelope
	AnalysisResultPath    string `json:"analysis_result_path"`
	HCCRelevantConditions int    `json:"hcc_relevant_conditions"`
}

// ValidationCompletedMessage is published by the Validator (the terminal stage).
type ValidationCompletedMessage struct {
	Envelope
	ValidationResultPath string `json:"validation_result_path"`
	CompliantConditions  int    `json:"compliant_conditions"`
	TotalConditions      int    `json:"total_conditions"`
}

// ErrorMessage is published by any stage that wants to surface a non-fatal
// diagnostic onto the sink queue, independent of the document's own Failed
// status transition.
type ErrorMessage struct {
	Envelope
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
	Stage        string `json:"stage"`
}

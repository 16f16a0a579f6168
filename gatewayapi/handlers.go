// Package gatewayapi provides the HTTP handlers and routing for the
// document intake gateway: authentication, upload, listing, download,
// reprocessing, and deletion of clinical documents.
package gatewayapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/google/uuid"

	"hccpipe.dev/artifactstore"
	"hccpipe.dev/bus"
	"hccpipe.dev/clinical"
	"hccpipe.dev/registry"
	"hccpipe.dev/security"
)

// DocumentStore is the subset of the Document Registry the gateway depends
// on, so unit tests can substitute an in-memory fake.
type DocumentStore interface {
	Create(ctx context.Context, doc clinical.Document) (clinical.Document, error)
	Get(ctx context.Context, id uuid.UUID) (clinical.Document, error)
	List(ctx context.Context, filter registry.Filter, page registry.Pagination) ([]clinical.Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, newStatus clinical.Status, errMsg string) error
	UpdateResults(ctx context.Context, id uuid.UUID, patch registry.ResultsPatch) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Handlers holds the gateway's collaborators.
type Handlers struct {
	Documents DocumentStore
	Artifacts artifactstore.Store
	Bus       *bus.Bus
	JWT       *security.JWTService
	// Superusers bypasses owner scoping for the given user ids.
	Superusers map[string]bool
}

// SetupRoutes registers the gateway's public and JWT-protected routes.
func SetupRoutes(e *echo.Echo, h *Handlers, signingKey string) {
	e.GET("/healthz", h.Healthz)

	auth := e.Group("/auth")
	auth.POST("/token", h.GenerateToken)

	protected := e.Group("/v1/api")
	protected.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey:  []byte(signingKey),
		TokenLookup: "header:Authorization:Bearer ",
	}))

	protected.POST("/documents", h.UploadDocument)
	protected.GET("/documents", h.ListDocuments)
	protected.GET("/documents/:id", h.GetDocument)
	protected.GET("/documents/:id/download", h.DownloadDocument)
	protected.POST("/documents/:id/reprocess", h.ReprocessDocument)
	protected.DELETE("/documents/:id", h.DeleteDocument)
}

// TokenRequest is the POST /auth/token request payload.
type TokenRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// TokenResponse is the POST /auth/token response payload.
type TokenResponse struct {
	Token string `json:"token"`
}

// GenerateToken issues a signed JWT for the given user id.
func (h *Handlers) GenerateToken(c echo.Context) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}

	token, err := h.JWT.GenerateToken(req.UserID, 24*time.Hour)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to generate token"})
	}

	return c.JSON(http.StatusOK, TokenResponse{Token: token})
}

// Healthz reports liveness and probes the registry with a one-row List. The
// bus is reported "ok" whenever one is configured; its connection is not
// probed. The top-level status is "ok" in every case.
func (h *Handlers) Healthz(c echo.Context) error {
	details := map[string]interface{}{
		"registry": "unknown",
		"bus":      "unknown",
	}

	if h.Documents != nil {
		if _, err := h.Documents.List(c.Request().Context(), registry.Filter{}, registry.Pagination{Limit: 1}); err != nil {
			details["registry"] = "unreachable: " + err.Error()
		} else {
			details["registry"] = "ok"
		}
	}
	if h.Bus != nil {
		details["bus"] = "ok"
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"details": details,
	})
}

// UploadDocument accepts a multipart file upload, stores the blob, creates
// the registry row, and publishes document.uploaded. The row and blob are
// both rolled back if the publish fails.
func (h *Handlers) UploadDocument(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file is required"})
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content type is required"})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "could not read upload"})
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "could not read upload"})
	}

	ctx := c.Request().Context()
	ownerID := ownerFromContext(c)

	created, err := Ingest(ctx, h.Documents, h.Artifacts, h.Bus, IngestRequest{
		Data:        data,
		Filename:    fileHeader.Filename,
		ContentType: contentType,
		OwnerID:     ownerID,
		Priority:    0,
	})
	switch {
	case errors.Is(err, ErrStoreFailed):
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store upload"})
	case errors.Is(err, ErrCreateFailed):
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create document record"})
	case errors.Is(err, ErrPublishFailed):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "failed to publish document.uploaded"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to ingest upload"})
	}

	return c.JSON(http.StatusCreated, created)
}

// IngestRequest is the input to Ingest: raw bytes plus the metadata needed
// to build the registry row.
type IngestRequest struct {
	Data        []byte
	Filename    string
	ContentType string
	OwnerID     *string
	Priority    uint8
}

// Sentinel errors Ingest wraps its failures in, so callers (the HTTP upload
// handler, the storage watchers) can map them to their own status/log
// conventions without string-matching.
var (
	ErrStoreFailed   = fmt.Errorf("gatewayapi: store blob")
	ErrCreateFailed  = fmt.Errorf("gatewayapi: create document record")
	ErrPublishFailed = fmt.Errorf("gatewayapi: publish document.uploaded")
)

// Ingest performs the gateway's create+store+publish sequence: store the
// blob, create the registry row, publish document.uploaded. Both the row
// and the blob are rolled back if the publish fails, and the blob alone is
// rolled back if the row could not be created. It is the one ingestion
// path every document enters the pipeline through, whether from an HTTP
// upload or a storage watcher picking up a file it has not seen before.
func Ingest(ctx context.Context, documents DocumentStore, artifacts artifactstore.Store, b *bus.Bus, req IngestRequest) (clinical.Document, error) {
	loc, err := artifacts.Store(ctx, req.Data, req.Filename, req.ContentType)
	if err != nil {
		return clinical.Document{}, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}

	doc := clinical.Document{
		Filename:    req.Filename,
		FileSize:    int64(len(req.Data)),
		ContentType: req.ContentType,
		Status:      clinical.StatusPending,
		OwnerID:     req.OwnerID,
	}
	doc.SetStorage(loc)

	created, err := documents.Create(ctx, doc)
	if err != nil {
		artifacts.Delete(ctx, loc)
		return clinical.Document{}, fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}

	if err := publishUploadedMessage(b, created, req.Priority); err != nil {
		documents.Delete(ctx, created.ID)
		artifacts.Delete(ctx, loc)
		return clinical.Document{}, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	return created, nil
}

func (h *Handlers) publishUploaded(doc clinical.Document, priority uint8) error {
	return publishUploadedMessage(h.Bus, doc, priority)
}

func publishUploadedMessage(b *bus.Bus, doc clinical.Document, priority uint8) error {
	return b.Publish(bus.RoutingUploaded, clinical.UploadedMessage{
		Envelope: clinical.Envelope{
			MessageID:   doc.ID.String() + "-uploaded",
			Timestamp:   0,
			MessageType: clinical.MessageUploaded,
			DocumentID:  doc.ID.String(),
		},
		StoragePath: doc.StoragePath,
		StorageType: string(doc.StorageKind),
		ContentType: doc.ContentType,
	}, priority)
}

// ListDocuments returns a page of Documents, owner-scoped unless the caller
// is a superuser.
func (h *Handlers) ListDocuments(c echo.Context) error {
	filter := registry.Filter{}
	if status := c.QueryParam("status"); status != "" {
		filter.Status = clinical.Status(status)
	}
	if owner := ownerFromContext(c); owner != nil && !h.isSuperuser(*owner) {
		filter.OwnerID = *owner
	}

	page := registry.Pagination{Skip: queryInt(c, "skip", 0), Limit: queryInt(c, "limit", 50)}

	docs, err := h.Documents.List(c.Request().Context(), filter, page)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list documents"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"documents": docs, "count": len(docs)})
}

// GetDocument returns a single Document by id.
func (h *Handlers) GetDocument(c echo.Context) error {
	doc, err := h.loadAuthorized(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

// DownloadDocument streams the stored blob with its original content type.
func (h *Handlers) DownloadDocument(c echo.Context) error {
	doc, err := h.loadAuthorized(c)
	if err != nil {
		return err
	}

	data, contentType, err := h.Artifacts.Get(c.Request().Context(), doc.GetStorage())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read document blob"})
	}
	if contentType == "" {
		contentType = doc.ContentType
	}
	return c.Blob(http.StatusOK, contentType, data)
}

// ReprocessDocument resets a document to Pending and re-emits
// document.uploaded with elevated priority.
func (h *Handlers) ReprocessDocument(c echo.Context) error {
	doc, err := h.loadAuthorized(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if err := h.Documents.UpdateStatus(ctx, doc.ID, clinical.StatusPending, ""); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to reset document status"})
	}

	if err := h.publishUploaded(doc, 5); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "failed to publish document.uploaded"})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "reprocessing queued"})
}

// DeleteDocument deletes the blob best-effort, then the registry row.
func (h *Handlers) DeleteDocument(c echo.Context) error {
	doc, err := h.loadAuthorized(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	h.Artifacts.Delete(ctx, doc.GetStorage())

	if err := h.Documents.Delete(ctx, doc.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete document"})
	}

	return c.NoContent(http.StatusNoContent)
}

// loadAuthorized loads the document named by :id and enforces owner
// scoping, returning a ready-to-propagate echo error on any failure.
func (h *Handlers) loadAuthorized(c echo.Context) (clinical.Document, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return clinical.Document{}, c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid document id"})
	}

	doc, err := h.Documents.Get(c.Request().Context(), id)
	if err != nil {
		if err == registry.ErrNotFound {
			return clinical.Document{}, c.JSON(http.StatusNotFound, map[string]string{"error": "document not found"})
		}
		return clinical.Document{}, c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load document"})
	}

	owner := ownerFromContext(c)
	if owner != nil && !h.isSuperuser(*owner) && (doc.OwnerID == nil || *doc.OwnerID != *owner) {
		return clinical.Document{}, c.JSON(http.StatusForbidden, map[string]string{"error": "not authorized"})
	}

	return doc, nil
}

func (h *Handlers) isSuperuser(userID string) bool {
	return h.Superusers != nil && h.Superusers[userID]
}

func ownerFromContext(c echo.Context) *string {
	token, ok := c.Get("user").(interface{ Subject() string })
	if !ok {
		return nil
	}
	sub := token.Subject()
	if sub == "" {
		return nil
	}
	return &sub
}

func queryInt(c echo.Context, key string, fallback int) int {
	raw := c.QueryParam(key)
	if raw == "" {
		return fallback
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return fallback
	}
	return v
}

package gatewayapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hccpipe.dev/artifactstore"
	"hccpipe.dev/bus"
	"hccpipe.dev/clinical"
	"hccpipe.dev/registry"
	"hccpipe.dev/security"
)

type fakeDocumentStore struct {
	docs map[uuid.UUID]clinical.Document
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{docs: make(map[uuid.UUID]clinical.Document)}
}

func (f *fakeDocumentStore) Create(_ context.Context, doc clinical.Document) (clinical.Document, error) {
	doc.ID = uuid.New()
	f.docs[doc.ID] = doc
	return doc, nil
}

func (f *fakeDocumentStore) Get(_ context.Context, id uuid.UUID) (clinical.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return clinical.Document{}, registry.ErrNotFound
	}
	return doc, nil
}

func (f *fakeDocumentStore) List(_ context.Context, filter registry.Filter, _ registry.Pagination) ([]clinical.Document, error) {
	out := make([]clinical.Document, 0, len(f.docs))
	for _, d := range f.docs {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.OwnerID != "" && (d.OwnerID == nil || *d.OwnerID != filter.OwnerID) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDocumentStore) UpdateStatus(_ context.Context, id uuid.UUID, status clinical.Status, _ string) error {
	doc := f.docs[id]
	doc.Status = status
	f.docs[id] = doc
	return nil
}

func (f *fakeDocumentStore) UpdateResults(_ context.Context, id uuid.UUID, patch registry.ResultsPatch) error {
	return nil
}

func (f *fakeDocumentStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.docs[id]; !ok {
		return registry.ErrNotFound
	}
	delete(f.docs, id)
	return nil
}

func testBus(t *testing.T) (*bus.Bus, *bus.MockAMQPChannel) {
	t.Helper()
	dialer, ch := bus.NewMockAMQPDialer()
	b, err := bus.NewWithDialer(bus.DefaultConfig("amqp://unused"), dialer, nil)
	require.NoError(t, err)
	return b, ch
}

func TestGenerateToken_Success(t *testing.T) {
	e := echo.New()
	jwtService := security.NewJWTService("test-secret-key")
	h := &Handlers{JWT: jwtService}

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"user_id":"user123"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.GenerateToken(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
}

func TestGenerateToken_EmptyUserID(t *testing.T) {
	e := echo.New()
	h := &Handlers{JWT: security.NewJWTService("test-secret-key")}

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"user_id":""}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.GenerateToken(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDocument_NotFound(t *testing.T) {
	e := echo.New()
	store := newFakeDocumentStore()
	h := &Handlers{Documents: store}

	req := httptest.NewRequest(http.MethodGet, "/v1/api/documents/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetDocument(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDocument_Found(t *testing.T) {
	e := echo.New()
	store := newFakeDocumentStore()
	created, err := store.Create(context.Background(), clinical.Document{Filename: "note.txt"})
	require.NoError(t, err)
	h := &Handlers{Documents: store}

	req := httptest.NewRequest(http.MethodGet, "/v1/api/documents/"+created.ID.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())

	err = h.GetDocument(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetDocument_InvalidID(t *testing.T) {
	e := echo.New()
	h := &Handlers{Documents: newFakeDocumentStore()}

	req := httptest.NewRequest(http.MethodGet, "/v1/api/documents/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetDocument(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartUpload(t *testing.T, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	header["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return body, w.FormDataContentType()
}

func TestUploadDocument_PublishFailureRollsBack(t *testing.T) {
	e := echo.New()
	store := newFakeDocumentStore()
	artifacts := artifactstore.NewMockStore()
	b, ch := testBus(t)
	ch.PublishErr = assert.AnError

	h := &Handlers{Documents: store, Artifacts: artifacts, Bus: b}

	body, contentType := multipartUpload(t, "note.txt", "text/plain", "hello world")

	req := httptest.NewRequest(http.MethodPost, "/v1/api/documents", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.UploadDocument(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, store.docs)
}

func TestListDocuments_OwnerScoping(t *testing.T) {
	store := newFakeDocumentStore()
	owner := "user-a"
	other := "user-b"
	_, err := store.Create(context.Background(), clinical.Document{Filename: "mine.txt", OwnerID: &owner})
	require.NoError(t, err)
	_, err = store.Create(context.Background(), clinical.Document{Filename: "theirs.txt", OwnerID: &other})
	require.NoError(t, err)

	h := &Handlers{Documents: store}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/api/documents", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user", fakeToken{subject: owner})

	err = h.ListDocuments(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Documents []clinical.Document `json:"documents"`
		Count     int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "mine.txt", resp.Documents[0].Filename)
}

func TestListDocuments_SuperuserSeesAll(t *testing.T) {
	store := newFakeDocumentStore()
	owner := "user-a"
	other := "user-b"
	_, err := store.Create(context.Background(), clinical.Document{Filename: "mine.txt", OwnerID: &owner})
	require.NoError(t, err)
	_, err = store.Create(context.Background(), clinical.Document{Filename: "theirs.txt", OwnerID: &other})
	require.NoError(t, err)

	h := &Handlers{Documents: store, Superusers: map[string]bool{"admin": true}}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/api/documents", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user", fakeToken{subject: "admin"})

	err = h.ListDocuments(c)
	require.NoError(t, err)

	var resp struct {
		Documents []clinical.Document `json:"documents"`
		Count     int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestReprocessDocument_ResetsStatusAndRepublishes(t *testing.T) {
	store := newFakeDocumentStore()
	created, err := store.Create(context.Background(), clinical.Document{Filename: "note.txt", Status: clinical.StatusFailed})
	require.NoError(t, err)
	b, ch := testBus(t)

	h := &Handlers{Documents: store, Bus: b}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/api/documents/"+created.ID.String()+"/reprocess", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())

	err = h.ReprocessDocument(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, clinical.StatusPending, store.docs[created.ID].Status)
	require.Len(t, ch.PublishedKeys, 1)
	assert.Equal(t, bus.RoutingUploaded, ch.PublishedKeys[0])
}

func TestDownloadDocument_ReturnsStoredContentType(t *testing.T) {
	artifacts := artifactstore.NewMockStore()
	ctx := context.Background()
	loc, err := artifacts.Store(ctx, []byte("hello world"), "note.txt", "text/plain")
	require.NoError(t, err)

	store := newFakeDocumentStore()
	doc := clinical.Document{Filename: "note.txt", ContentType: "text/plain"}
	doc.SetStorage(loc)
	created, err := store.Create(ctx, doc)
	require.NoError(t, err)

	h := &Handlers{Documents: store, Artifacts: artifacts}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/api/documents/"+created.ID.String()+"/download", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())

	err = h.DownloadDocument(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "hello world", rec.Body.String())
}

type fakeToken struct {
	subject string
}

func (f fakeToken) Subject() string { return f.subject }

func TestDeleteDocument_NotFound(t *testing.T) {
	e := echo.New()
	store := newFakeDocumentStore()
	h := &Handlers{Documents: store, Artifacts: artifactstore.NewMockStore()}

	req := httptest.NewRequest(http.MethodDelete, "/v1/api/documents/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.DeleteDocument(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

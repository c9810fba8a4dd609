package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, rpc rpcCaller) *Service {
	t.Helper()
	db, err := openSQLite(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := newRepository(rpc)
	store := NewQueueStore(db)
	events := newEventStream()
	queue := newUploadQueue(store, repo, events)
	queue.itemDelay = 0
	queue.chunkDelay = 0
	inspector := newBridgeInspector()

	return &Service{
		rpc:       newRPCClient(),
		repo:      repo,
		store:     store,
		snapshots: NewNotebookSnapshotStore(db),
		exports:   NewExportStore(db),
		queue:     queue,
		inspector: inspector,
		extract:   newTestExtractor(inspector),
		events:    events,
		bridge:    nil,
	}
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()

	mux := http.NewServeMux()
	mux.HandleFunc(method+" "+routePattern(target), handler)
	mux.ServeHTTP(recorder, req)
	return recorder
}

// routePattern rewrites a concrete target into the registered pattern shape so
// PathValue ids resolve in handlers under test.
func routePattern(target string) string {
	if idx := strings.Index(target, "?"); idx >= 0 {
		target = target[:idx]
	}
	parts := strings.Split(target, "/")
	for i, part := range parts {
		if isServerUUID(part) || part == "item-id" {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func TestMapUpstreamError(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, mapUpstreamError(errAuthRequired).status)
	assert.Equal(t, http.StatusUnauthorized, mapUpstreamError(fmt.Errorf("wrapped: %w", errAuthRequired)).status)
	assert.Equal(t, http.StatusServiceUnavailable, mapUpstreamError(errTimeout).status)
	assert.Equal(t, http.StatusServiceUnavailable, mapUpstreamError(&transportError{status: 502}).status)
	assert.Equal(t, http.StatusInternalServerError, mapUpstreamError(&rpcError{code: 999}).status)
	assert.Equal(t, http.StatusInternalServerError, mapUpstreamError(errors.New("other")).status)
	// An apiError built deeper in the stack passes through unchanged.
	assert.Equal(t, http.StatusBadRequest, mapUpstreamError(badRequest("nope", nil)).status)
}

func TestHandleStatus(t *testing.T) {
	service := newTestService(t, &fakeRPC{})

	recorder := doJSON(t, service.handleStatus, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	body := recorder.Body.String()
	assert.Contains(t, body, `"extension_connected":false`)
	assert.Contains(t, body, `"queue_state":"idle"`)
}

func TestHandleNotebooksFallsBackToCache(t *testing.T) {
	rpc := &fakeRPC{handler: func(string, []any) (string, error) {
		return "", errAuthRequired
	}}
	service := newTestService(t, rpc)
	require.NoError(t, service.snapshots.StoreNotebooks([]Notebook{{ID: testNotebookID, Name: "Cached"}}, time.Now().UTC()))

	recorder := doJSON(t, service.handleNotebooks, http.MethodGet, "/api/notebooks", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"cached":true`)
	assert.Contains(t, recorder.Body.String(), "Cached")
}

func TestHandleNotebooksNoCacheSurfacesAuthError(t *testing.T) {
	rpc := &fakeRPC{handler: func(string, []any) (string, error) {
		return "", errAuthRequired
	}}
	service := newTestService(t, rpc)

	recorder := doJSON(t, service.handleNotebooks, http.MethodGet, "/api/notebooks", "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestHandleCreateNotebookValidation(t *testing.T) {
	service := newTestService(t, &fakeRPC{})

	recorder := doJSON(t, service.handleCreateNotebook, http.MethodPost, "/api/notebooks", `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doJSON(t, service.handleCreateNotebook, http.MethodPost, "/api/notebooks", `{broken`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleCaptureValidation(t *testing.T) {
	service := newTestService(t, &fakeRPC{})

	recorder := doJSON(t, service.handleCapture, http.MethodPost, "/api/capture",
		`{"kind":"page","content":"x"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "notebook_id")
}

func TestHandleCaptureAccepted(t *testing.T) {
	service := newTestService(t, &fakeRPC{handler: func(string, []any) (string, error) {
		return "", errAuthRequired
	}})

	recorder := doJSON(t, service.handleCapture, http.MethodPost, "/api/capture",
		fmt.Sprintf(`{"kind":"selection","title":"Snippet","content":"chosen text","notebook_id":"%s"}`, testNotebookID))
	require.Equal(t, http.StatusAccepted, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "Snippet")
}

func TestHandleExportValidation(t *testing.T) {
	service := newTestService(t, &fakeRPC{})

	recorder := doJSON(t, service.handleExport, http.MethodPost, "/api/export", `{"category":"notes","format":"md"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "notebook_id")

	recorder = doJSON(t, service.handleExport, http.MethodPost, "/api/export",
		fmt.Sprintf(`{"notebook_id":"%s"}`, testNotebookID))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleExportSources(t *testing.T) {
	sourceRow := []any{
		[]any{testSourceID},
		"Some Article",
		[]any{float64(2)},
		float64(sourceStatusReady),
	}
	rpc := &fakeRPC{handler: func(procedureID string, _ []any) (string, error) {
		switch procedureID {
		case rpcNotebookDetail:
			return envelopeFixtureForTest(procedureID, []any{[]any{"My Notebook", []any{sourceRow}}})
		case rpcSourceText:
			return envelopeFixtureForTest(procedureID, []any{[]any{nil, "The extracted body text."}})
		default:
			return "", fmt.Errorf("unexpected procedure %s", procedureID)
		}
	}}
	service := newTestService(t, rpc)

	recorder := doJSON(t, service.handleExport, http.MethodPost, "/api/export",
		fmt.Sprintf(`{"notebook_id":"%s","category":"sources","format":"md"}`, testNotebookID))
	require.Equal(t, http.StatusOK, recorder.Code)

	assert.Equal(t, "1", recorder.Header().Get("X-Export-Items"))
	assert.Contains(t, recorder.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, recorder.Body.String(), "The extracted body text.")

	// The export lands in history.
	records, err := service.exports.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "sources", records[0].Category)
	assert.Equal(t, 1, records[0].ItemCount)
}

func TestHandleQueueListAndDelete(t *testing.T) {
	service := newTestService(t, &fakeRPC{})
	require.NoError(t, service.store.Enqueue(QueueItem{
		ID: "item-id", Kind: captureKindPage, Title: "t", NotebookID: testNotebookID, Status: queueStatusError,
	}))

	recorder := doJSON(t, service.handleQueueList, http.MethodGet, "/api/queue", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"item-id"`)

	recorder = doJSON(t, service.handleQueueDelete, http.MethodDelete, "/api/queue/item-id", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	item, err := service.store.Get("item-id")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestHandleDeleteSourcesValidation(t *testing.T) {
	service := newTestService(t, &fakeRPC{})
	recorder := doJSON(t, service.handleDeleteSources, http.MethodDelete,
		"/api/notebooks/"+testNotebookID+"/sources", `{"source_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func envelopeFixtureForTest(procedureID string, payload any) (string, error) {
	inner, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	line, err := json.Marshal([]any{[]any{payloadMarker, procedureID, string(inner), nil, "generic"}})
	if err != nil {
		return "", err
	}
	return ")]}'\n\n" + string(line) + "\n", nil
}

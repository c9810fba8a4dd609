package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// mapUpstreamError translates transport-level failures into API responses.
func mapUpstreamError(err error) *apiError {
	var api *apiError
	var transport *transportError
	var rpc *rpcError
	switch {
	case errors.As(err, &api):
		return api
	case errors.Is(err, errAuthRequired):
		return unauthorized("not authenticated", err)
	case errors.Is(err, errTimeout):
		return serviceUnavailable("upstream call timed out", err)
	case errors.As(err, &transport):
		return serviceUnavailable("upstream request failed", err)
	case errors.As(err, &rpc):
		return internalServerError("upstream rejected the call", err)
	default:
		return internalServerError("internal server error", err)
	}
}

func decodeBody(r *http.Request, out any) *apiError {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return badRequest("malformed request body", err)
	}
	return nil
}

func (s *Service) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	pending, err := s.store.PendingCount()
	if err != nil {
		logWarn("status.pending_count_failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"extension_connected": s.inspector.Connected(),
		"authenticated":       s.rpc.HasTokens(),
		"queue_state":         s.queue.State(),
		"queue_pending":       pending,
	})
}

// handleNotebooks serves the live listing and refreshes the cache; when the
// upstream is unreachable it falls back to the last cached listing so the
// popup still renders.
func (s *Service) handleNotebooks(w http.ResponseWriter, r *http.Request) {
	notebooks, err := s.repo.ListNotebooks(r.Context())
	if err != nil {
		cached, cacheErr := s.snapshots.GetNotebooks()
		if cacheErr == nil && len(cached) > 0 {
			logWarn("notebooks.live_failed_serving_cache", "error", err)
			writeJSON(w, http.StatusOK, map[string]any{"notebooks": cached, "cached": true})
			return
		}
		writeAPIError(w, mapUpstreamError(err))
		return
	}

	if err := s.snapshots.StoreNotebooks(notebooks, time.Now().UTC()); err != nil {
		logWarn("notebooks.cache_store_failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"notebooks": notebooks, "cached": false})
}

func (s *Service) handleCreateNotebook(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Name string `json:"name"`
	}
	if apiErr := decodeBody(r, &request); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if strings.TrimSpace(request.Name) == "" {
		writeAPIError(w, badRequest("name is required", nil))
		return
	}

	notebook, err := s.repo.CreateNotebook(r.Context(), request.Name)
	if err != nil {
		if errors.Is(err, errCreateFailed) {
			writeAPIError(w, internalServerError("notebook creation not confirmed", err))
			return
		}
		writeAPIError(w, mapUpstreamError(err))
		return
	}
	writeJSON(w, http.StatusCreated, notebook)
}

func (s *Service) handleRenameNotebook(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	var request struct {
		Name string `json:"name"`
	}
	if apiErr := decodeBody(r, &request); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if strings.TrimSpace(request.Name) == "" {
		writeAPIError(w, badRequest("name is required", nil))
		return
	}

	if err := s.repo.RenameNotebook(r.Context(), notebookID, request.Name); err != nil {
		writeAPIError(w, mapUpstreamError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": notebookID, "name": request.Name})
}

func (s *Service) handleNotebookDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := s.repo.NotebookDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAPIError(w, mapUpstreamError(err))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Service) handleNotebookContent(w http.ResponseWriter, r *http.Request) {
	content := s.repo.NotebookContent(r.Context(), r.PathValue("id"))
	writeJSON(w, http.StatusOK, content)
}

func (s *Service) handleDeleteSources(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	var request struct {
		SourceIDs []string `json:"source_ids"`
	}
	if apiErr := decodeBody(r, &request); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if len(request.SourceIDs) == 0 {
		writeAPIError(w, badRequest("source_ids is required", nil))
		return
	}

	attempted, err := s.repo.DeleteSources(r.Context(), notebookID, request.SourceIDs)
	if err != nil {
		// Some batches may have gone through before the failure; report both.
		apiErr := mapUpstreamError(err)
		logWarn("sources.delete_partial", "attempted", attempted, "requested", len(request.SourceIDs), "error", err)
		writeJSON(w, apiErr.status, map[string]any{
			"error":     apiErr.message,
			"attempted": attempted,
			"requested": len(request.SourceIDs),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempted": attempted, "requested": len(request.SourceIDs)})
}

func (s *Service) handleCapture(w http.ResponseWriter, r *http.Request) {
	var request CaptureRequest
	if apiErr := decodeBody(r, &request); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	item, err := s.queue.Enqueue(request)
	if err != nil {
		writeAPIError(w, badRequest(err.Error(), nil))
		return
	}
	s.queue.Drain(context.Background())
	writeJSON(w, http.StatusAccepted, item)
}

func (s *Service) handleQueueList(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntQuery(r, "limit", defaultQueueListLimit, 1, maxQueueListLimit)
	if err != nil {
		writeAPIError(w, badRequest(err.Error(), nil))
		return
	}
	items, listErr := s.store.List(limit)
	if listErr != nil {
		writeAPIError(w, internalServerError("load queue", listErr))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "state": s.queue.State()})
}

func (s *Service) handleQueueDrain(w http.ResponseWriter, _ *http.Request) {
	s.queue.Drain(context.Background())
	writeJSON(w, http.StatusAccepted, map[string]string{"state": s.queue.State()})
}

func (s *Service) handleQueueRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Requeue(r.PathValue("id")); err != nil {
		writeAPIError(w, notFound(err.Error(), nil))
		return
	}
	s.queue.Drain(context.Background())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requeued"})
}

func (s *Service) handleQueueDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.PathValue("id")); err != nil {
		writeAPIError(w, internalServerError("delete queue item", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Service) handleExportsHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntQuery(r, "limit", defaultExportListLimit, 1, maxExportListLimit)
	if err != nil {
		writeAPIError(w, badRequest(err.Error(), nil))
		return
	}
	records, listErr := s.exports.ListRecent(limit)
	if listErr != nil {
		writeAPIError(w, internalServerError("load export history", listErr))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": records})
}

// handleExport assembles the requested content, renders it and streams the
// file back. Items that cannot be loaded are skipped, with both counts
// reported in response headers.
func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	var request ExportRequest
	if apiErr := decodeBody(r, &request); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if request.NotebookID == "" {
		writeAPIError(w, badRequest("notebook_id is required", nil))
		return
	}
	if request.Category == "" || request.Format == "" {
		writeAPIError(w, badRequest("category and format are required", nil))
		return
	}

	outcome, err := s.buildExportPayload(r.Context(), request)
	if err != nil {
		writeAPIError(w, mapUpstreamError(err))
		return
	}

	file, err := renderExport(outcome.payload, request.Format, request.BatchMode, time.Now().UTC())
	if err != nil {
		if errors.Is(err, errNothingToExport) {
			writeAPIError(w, notFound("nothing to export for this selection", err))
			return
		}
		writeAPIError(w, badRequest(err.Error(), nil))
		return
	}

	record := ExportRecord{
		NotebookID: request.NotebookID,
		Category:   request.Category,
		Format:     request.Format,
		Filename:   file.Name,
		ItemCount:  outcome.exported,
	}
	if err := s.exports.Record(record); err != nil {
		logWarn("export.history_record_failed", "error", err)
	}
	s.events.publish("export-completed", record)
	logInfo("export.completed",
		"notebook_id", request.NotebookID,
		"category", request.Category,
		"format", request.Format,
		"requested", outcome.requested,
		"exported", outcome.exported,
		"bytes", len(file.Data))

	w.Header().Set("X-Export-Requested", strconv.Itoa(outcome.requested))
	w.Header().Set("X-Export-Items", strconv.Itoa(outcome.exported))
	writeFile(w, file)
}

type exportOutcome struct {
	payload   exportPayload
	requested int
	exported  int
}

func (s *Service) buildExportPayload(ctx context.Context, request ExportRequest) (*exportOutcome, error) {
	outcome := &exportOutcome{
		payload: exportPayload{
			Category: request.Category,
			Title:    request.NotebookTitle,
		},
	}
	if outcome.payload.Title == "" {
		if detail, err := s.repo.NotebookDetail(ctx, request.NotebookID); err == nil && detail != nil {
			outcome.payload.Title = detail.Title
		}
	}
	if outcome.payload.Title == "" {
		outcome.payload.Title = "notebook"
	}

	switch request.Category {
	case "sources":
		return s.buildSourcesExport(ctx, request, outcome)
	case "notes":
		content := s.repo.NotebookContent(ctx, request.NotebookID)
		for _, note := range content.Notes {
			if !selected(request.ItemIDs, note.ID) {
				continue
			}
			outcome.payload.Documents = append(outcome.payload.Documents, exportDocument{Title: note.Title, Body: note.Content})
		}
		outcome.requested = len(content.Notes)
		outcome.exported = len(outcome.payload.Documents)
		return outcome, nil
	case "mindmaps":
		content := s.repo.NotebookContent(ctx, request.NotebookID)
		outcome.payload.Mindmaps = content.Mindmaps
		outcome.requested = len(content.Mindmaps)
		outcome.exported = len(content.Mindmaps)
		return outcome, nil
	case "chat":
		return s.buildChatExport(ctx, request, outcome)
	case "flashcards", "quiz", "report", "table":
		return s.buildArtifactExport(ctx, request, outcome)
	case "slides":
		return s.buildSlidesExport(ctx, request, outcome)
	case "infographic":
		return s.buildInfographicExport(ctx, request, outcome)
	default:
		return nil, badRequest("unknown export category "+request.Category, nil)
	}
}

func selected(itemIDs []string, id string) bool {
	if len(itemIDs) == 0 {
		return true
	}
	for _, candidate := range itemIDs {
		if candidate == id {
			return true
		}
	}
	return false
}

func (s *Service) buildSourcesExport(ctx context.Context, request ExportRequest, outcome *exportOutcome) (*exportOutcome, error) {
	detail, err := s.repo.NotebookDetail(ctx, request.NotebookID)
	if err != nil {
		return nil, err
	}

	wanted := []Source{}
	for _, source := range detail.Sources {
		if selected(request.ItemIDs, source.ID) {
			wanted = append(wanted, source)
		}
	}
	outcome.requested = len(wanted)

	ids := make([]string, 0, len(wanted))
	for _, source := range wanted {
		ids = append(ids, source.ID)
	}
	texts := s.repo.LoadMultipleSourceContents(ctx, request.NotebookID, ids, sourceLoadWorkers)

	for _, source := range wanted {
		text, ok := texts[source.ID]
		if !ok {
			logWarn("export.source.skipped", "source_id", source.ID, "title", source.Title)
			continue
		}
		outcome.payload.Documents = append(outcome.payload.Documents, exportDocument{Title: source.Title, Body: text})
	}
	outcome.exported = len(outcome.payload.Documents)
	return outcome, nil
}

// buildChatExport prefers the RPC chat history and falls back to scraping the
// rendered panel when the history comes back empty.
func (s *Service) buildChatExport(ctx context.Context, request ExportRequest, outcome *exportOutcome) (*exportOutcome, error) {
	content := s.repo.NotebookContent(ctx, request.NotebookID)
	outcome.payload.Chat = content.Chat

	if len(outcome.payload.Chat) == 0 && s.inspector.Connected() {
		outcome.payload.Chat = s.extract.ChatTranscript(ctx, request.NotebookID)
	}
	outcome.requested = len(outcome.payload.Chat)
	outcome.exported = len(outcome.payload.Chat)
	return outcome, nil
}

func (s *Service) buildArtifactExport(ctx context.Context, request ExportRequest, outcome *exportOutcome) (*exportOutcome, error) {
	content := s.repo.NotebookContent(ctx, request.NotebookID)

	matching := []Artifact{}
	for _, artifact := range content.Artifacts {
		if !selected(request.ItemIDs, artifact.ID) {
			continue
		}
		if !artifactMatchesCategory(artifact, request.Category) {
			continue
		}
		matching = append(matching, artifact)
	}
	outcome.requested = len(matching)

	missing := []Artifact{}
	for _, artifact := range matching {
		if content.Contents[artifact.ID].empty() {
			missing = append(missing, artifact)
		}
	}
	if len(missing) > 0 && s.inspector.Connected() {
		extracted := s.extract.ArtifactPayloads(ctx, request.NotebookID, missing, artifactExtractWorkers)
		for id, payload := range extracted {
			content.Contents[id] = payload
		}
	}

	for _, artifact := range matching {
		payload := content.Contents[artifact.ID]
		if payload.empty() {
			logWarn("export.artifact.skipped", "artifact_id", artifact.ID, "kind", artifact.Kind)
			continue
		}
		outcome.exported++
		outcome.payload.Cards = append(outcome.payload.Cards, payload.Flashcards...)
		if payload.Report != "" {
			outcome.payload.Documents = append(outcome.payload.Documents, exportDocument{Title: artifact.Title, Body: payload.Report})
		}
		if payload.Table != nil && outcome.payload.Table == nil {
			outcome.payload.Table = payload.Table
		}
	}
	return outcome, nil
}

func artifactMatchesCategory(artifact Artifact, category string) bool {
	switch category {
	case "flashcards", "quiz":
		return artifact.Kind == category
	case "report":
		return artifact.TypeCode == artifactTypeReport
	case "table":
		return artifact.TypeCode == artifactTypeTable
	default:
		return false
	}
}

func (s *Service) buildSlidesExport(ctx context.Context, request ExportRequest, outcome *exportOutcome) (*exportOutcome, error) {
	if !s.inspector.Connected() {
		return nil, serviceUnavailable("slide export needs the extension connected", errInspectorOffline)
	}

	content := s.repo.NotebookContent(ctx, request.NotebookID)
	for _, artifact := range content.Artifacts {
		if artifact.TypeCode != artifactTypeSlides || !selected(request.ItemIDs, artifact.ID) {
			continue
		}
		outcome.requested++
		slides := s.extract.SlideImages(ctx, request.NotebookID, artifact.ID)
		if len(slides) == 0 {
			logWarn("export.slides.skipped", "artifact_id", artifact.ID)
			continue
		}
		outcome.exported++
		outcome.payload.Slides = append(outcome.payload.Slides, slides...)
	}
	return outcome, nil
}

func (s *Service) buildInfographicExport(ctx context.Context, request ExportRequest, outcome *exportOutcome) (*exportOutcome, error) {
	if !s.inspector.Connected() {
		return nil, serviceUnavailable("infographic export needs the extension connected", errInspectorOffline)
	}

	content := s.repo.NotebookContent(ctx, request.NotebookID)
	for _, artifact := range content.Artifacts {
		if artifact.TypeCode != artifactTypeInfographic || !selected(request.ItemIDs, artifact.ID) {
			continue
		}
		outcome.requested++
		if dataURL := s.extract.InfographicImage(ctx, request.NotebookID, artifact.ID); dataURL != "" {
			outcome.payload.ImageData = dataURL
			outcome.exported++
			break
		}
	}
	return outcome, nil
}

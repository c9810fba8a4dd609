package main

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// extractor recovers content the RPC surface never exposes (chat transcript
// text, interactive artifact payloads, rendered slide images) by scripting
// live tabs through the PageInspector. Everything here is best-effort: any
// failure (no bridge, no tab, script rejected, deadline hit) degrades to the
// empty value so RPC-sourced data still exports.
type extractor struct {
	inspector PageInspector

	// Poll cadence is a field so tests do not sit through real deadlines.
	pollMax time.Duration
	pollGap time.Duration
	settle  time.Duration
}

func newExtractor(inspector PageInspector) *extractor {
	return &extractor{
		inspector: inspector,
		pollMax:   extractionPollMax,
		pollGap:   extractionPollGap,
		settle:    tabSettleDelay,
	}
}

type tabRef struct {
	ID     int64  `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

func notebookTabURL(notebookID string) string {
	return notebookAppOrigin + "/notebook/" + notebookID
}

func artifactTabURL(notebookID, artifactID string) string {
	return notebookTabURL(notebookID) + "/artifact/" + artifactID
}

func (e *extractor) runTask(ctx context.Context, task InspectTask, out any) bool {
	raw, err := e.inspector.Run(ctx, task)
	if err != nil {
		logWarn("extract.task_failed", "action", task.Action, "error", err)
		return false
	}
	if len(raw) == 0 || string(raw) == "null" {
		return false
	}
	if out == nil {
		return true
	}
	if err := json.Unmarshal(raw, out); err != nil {
		logWarn("extract.task_decode_failed", "action", task.Action, "error", err)
		return false
	}
	return true
}

// acquireTab reuses a tab already on the wanted URL, otherwise opens one in
// the background. The returned cleanup closes the tab only when this call
// created it; a user's own tab is never closed.
func (e *extractor) acquireTab(ctx context.Context, tabURL string) (int64, func(), bool) {
	noop := func() {}

	var existing tabRef
	if e.runTask(ctx, InspectTask{Action: inspectFindTab, URL: tabURL}, &existing) && existing.ID != 0 {
		if !e.waitTabReady(ctx, existing.ID) {
			return 0, noop, false
		}
		return existing.ID, noop, true
	}

	var opened tabRef
	if !e.runTask(ctx, InspectTask{Action: inspectOpenTab, URL: tabURL, Background: true, Pinned: true}, &opened) || opened.ID == 0 {
		return 0, noop, false
	}
	cleanup := func() {
		// Closing on every exit path keeps a long session from accumulating
		// dozens of hidden tabs; leakage here is a correctness bug.
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = e.inspector.Run(closeCtx, InspectTask{Action: inspectCloseTab, TabID: opened.ID})
	}

	if !e.waitTabReady(ctx, opened.ID) {
		cleanup()
		return 0, noop, false
	}
	return opened.ID, cleanup, true
}

// waitTabReady polls tab status until the load completes, then waits the fixed
// settle delay: the app keeps building its DOM well after the load event.
func (e *extractor) waitTabReady(ctx context.Context, tabID int64) bool {
	deadline := time.Now().Add(tabLoadTimeout)
	for {
		var status tabRef
		if e.runTask(ctx, InspectTask{Action: inspectTabStatus, TabID: tabID}, &status) && status.Status == "complete" {
			break
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		if !sleepCtx(ctx, e.pollGap) {
			return false
		}
	}
	return sleepCtx(ctx, e.settle)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// ChatTranscript reads the conversation straight off the rendered chat panel.
// Two strategies: the top frame first, then every frame in case the panel is
// hosted in an embedded frame. Empty slice on any failure.
func (e *extractor) ChatTranscript(ctx context.Context, notebookID string) []ChatMessage {
	messages := []ChatMessage{}

	tabID, cleanup, ok := e.acquireTab(ctx, notebookTabURL(notebookID))
	if !ok {
		return messages
	}
	defer cleanup()

	// Activate the chat tab so lazy-rendered messages mount before reading.
	_ = e.runTask(ctx, InspectTask{Action: inspectRunScript, TabID: tabID, Script: chatActivateScript}, nil)
	if !sleepCtx(ctx, e.settle) {
		return messages
	}

	for _, allFrames := range []bool{false, true} {
		var parsed []ChatMessage
		task := InspectTask{Action: inspectRunScript, TabID: tabID, Script: chatTranscriptScript, AllFrames: allFrames}
		if e.runTask(ctx, task, &parsed) && len(parsed) > 0 {
			return parsed
		}
	}
	return messages
}

// ArtifactPayload opens the artifact viewer in a pinned background tab and
// tries, in order: the embedded-JSON data attribute polled across all frames,
// the viewer iframe's direct URL, and finally scraping the rendered markup.
// The tab is closed on every exit path.
func (e *extractor) ArtifactPayload(ctx context.Context, notebookID string, artifact Artifact) *ArtifactContent {
	tabID, cleanup, ok := e.acquireTab(ctx, artifactTabURL(notebookID, artifact.ID))
	if !ok {
		return nil
	}
	defer cleanup()

	// Some viewers render nothing until poked.
	_ = e.runTask(ctx, InspectTask{Action: inspectRunScript, TabID: tabID, Script: artifactActivateScript}, nil)

	if payload := e.pollEmbeddedPayload(ctx, tabID, artifact.Kind); payload != nil {
		return payload
	}

	// Cross-origin frames reject injected scripts; navigating the tab to the
	// frame's own URL makes the same document scriptable first-hand.
	var frameURL string
	if e.runTask(ctx, InspectTask{Action: inspectRunScript, TabID: tabID, Script: iframeURLScript}, &frameURL) && frameURL != "" {
		if e.runTask(ctx, InspectTask{Action: inspectNavigateTab, TabID: tabID, URL: frameURL}, nil) && e.waitTabReady(ctx, tabID) {
			if payload := e.pollEmbeddedPayload(ctx, tabID, artifact.Kind); payload != nil {
				return payload
			}
		}
	}

	var scraped ArtifactContent
	task := InspectTask{Action: inspectRunScript, TabID: tabID, Script: renderedFallbackScript, AllFrames: true}
	if e.runTask(ctx, task, &scraped) && !scraped.empty() {
		return &scraped
	}
	return nil
}

func (c *ArtifactContent) empty() bool {
	return c == nil || (c.Report == "" && c.Table == nil && len(c.Flashcards) == 0)
}

// pollEmbeddedPayload watches all frames for the DOM attribute carrying the
// viewer's embedded JSON, up to the hard poll deadline.
func (e *extractor) pollEmbeddedPayload(ctx context.Context, tabID int64, kind string) *ArtifactContent {
	deadline := time.Now().Add(e.pollMax)
	for {
		var embedded string
		task := InspectTask{Action: inspectRunScript, TabID: tabID, Script: embeddedPayloadScript, AllFrames: true}
		if e.runTask(ctx, task, &embedded) && embedded != "" {
			if payload := parseInteractivePayload(kind, embedded); !payload.empty() {
				return payload
			}
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return nil
		}
		if !sleepCtx(ctx, e.pollGap) {
			return nil
		}
	}
}

// parseInteractivePayload decodes the embedded viewer JSON for one artifact
// kind. Unknown shapes degrade to nil rather than erroring.
func parseInteractivePayload(kind, embedded string) *ArtifactContent {
	payload := &ArtifactContent{}
	switch kind {
	case "flashcards", "quiz":
		var wrapper struct {
			Cards     []Flashcard `json:"cards"`
			Questions []struct {
				Question string   `json:"question"`
				Answer   string   `json:"answer"`
				Tags     []string `json:"tags"`
			} `json:"questions"`
		}
		if err := json.Unmarshal([]byte(embedded), &wrapper); err != nil {
			return payload
		}
		payload.Flashcards = wrapper.Cards
		for _, q := range wrapper.Questions {
			payload.Flashcards = append(payload.Flashcards, Flashcard{Front: q.Question, Back: q.Answer, Tags: q.Tags})
		}
	case "table":
		var table DataTable
		if err := json.Unmarshal([]byte(embedded), &table); err != nil || len(table.Headers) == 0 {
			return payload
		}
		payload.Table = &table
	default:
		var wrapper struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(embedded), &wrapper); err != nil || strings.TrimSpace(wrapper.Text) == "" {
			return payload
		}
		payload.Report = wrapper.Text
	}
	return payload
}

// ArtifactPayloads extracts several artifacts with a small fixed pool pulling
// from a shared cursor. The pool size caps how many background tabs exist at
// once.
func (e *extractor) ArtifactPayloads(ctx context.Context, notebookID string, artifacts []Artifact, workers int) map[string]*ArtifactContent {
	if workers <= 0 {
		workers = artifactExtractWorkers
	}
	if workers > len(artifacts) {
		workers = len(artifacts)
	}

	results := make(map[string]*ArtifactContent, len(artifacts))
	if len(artifacts) == 0 {
		return results
	}

	var (
		mu     sync.Mutex
		cursor int
		wg     sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				mu.Lock()
				if cursor >= len(artifacts) || ctx.Err() != nil {
					mu.Unlock()
					return
				}
				artifact := artifacts[cursor]
				cursor++
				mu.Unlock()

				payload := e.ArtifactPayload(ctx, notebookID, artifact)
				if payload.empty() {
					continue
				}
				mu.Lock()
				results[artifact.ID] = payload
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return results
}

// SlideImages reads every slide image in the deck viewer, re-encoded through
// an offscreen canvas. The canvas round-trip is what turns cookie-gated image
// responses into portable data URLs: the browser already fetched the pixels
// with credentials, so reading them back needs no second request.
func (e *extractor) SlideImages(ctx context.Context, notebookID, artifactID string) []Slide {
	slides := []Slide{}

	tabID, cleanup, ok := e.acquireTab(ctx, artifactTabURL(notebookID, artifactID))
	if !ok {
		return slides
	}
	defer cleanup()

	var parsed []Slide
	task := InspectTask{Action: inspectRunScript, TabID: tabID, Script: slideImagesScript, AllFrames: true}
	if e.runTask(ctx, task, &parsed) && len(parsed) > 0 {
		return parsed
	}
	return slides
}

// InfographicImage returns the rendered infographic as a data URL, empty on
// failure.
func (e *extractor) InfographicImage(ctx context.Context, notebookID, artifactID string) string {
	tabID, cleanup, ok := e.acquireTab(ctx, artifactTabURL(notebookID, artifactID))
	if !ok {
		return ""
	}
	defer cleanup()

	var dataURL string
	task := InspectTask{Action: inspectRunScript, TabID: tabID, Script: infographicImageScript, AllFrames: true}
	if e.runTask(ctx, task, &dataURL) {
		return dataURL
	}
	return ""
}

// FetchImage resolves an arbitrary image URL to a data URL using three
// strategies: render-and-canvas in a background tab, a plain extension-side
// fetch, and an authenticated in-page fetch from the notebook tab's own
// context. Each is individually bounded; the whole operation never retries
// beyond them.
func (e *extractor) FetchImage(ctx context.Context, notebookID, imageURL string) string {
	if tabID, cleanup, ok := e.acquireTab(ctx, imageURL); ok {
		var dataURL string
		found := e.runTask(ctx, InspectTask{Action: inspectRunScript, TabID: tabID, Script: canvasImageScript}, &dataURL)
		cleanup()
		if found && dataURL != "" {
			return dataURL
		}
	}

	var fetched string
	if e.runTask(ctx, InspectTask{Action: inspectFetchImage, URL: imageURL}, &fetched) && fetched != "" {
		return fetched
	}

	tabID, cleanup, ok := e.acquireTab(ctx, notebookTabURL(notebookID))
	if !ok {
		return ""
	}
	defer cleanup()

	var inPage string
	script := strings.Replace(inPageFetchImageScript, "__IMAGE_URL__", jsString(imageURL), 1)
	if e.runTask(ctx, InspectTask{Action: inspectRunScript, TabID: tabID, Script: script}, &inPage) {
		return inPage
	}
	return ""
}

func jsString(s string) string {
	encoded, _ := json.Marshal(s)
	return string(encoded)
}

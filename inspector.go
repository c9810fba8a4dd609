package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errInspectorOffline = errors.New("extension bridge not connected")

// Inspector actions the extension side implements. Each one is a thin wrapper
// over a browser tab/scripting API call; the service never touches those APIs
// directly.
const (
	inspectFindTab     = "find-tab"
	inspectTabStatus   = "tab-status"
	inspectOpenTab     = "open-tab"
	inspectNavigateTab = "navigate-tab"
	inspectCloseTab    = "close-tab"
	inspectRunScript   = "run-script"
	inspectFetchImage  = "fetch-image"
	inspectReadCookies = "read-cookies"
)

// InspectTask describes one read-only operation against the live browser.
type InspectTask struct {
	Action     string `json:"action"`
	URL        string `json:"url,omitempty"`
	TabID      int64  `json:"tab_id,omitempty"`
	Script     string `json:"script,omitempty"`
	AllFrames  bool   `json:"all_frames,omitempty"`
	Background bool   `json:"background,omitempty"`
	Pinned     bool   `json:"pinned,omitempty"`
	TimeoutMS  int    `json:"timeout_ms,omitempty"`
}

// PageInspector is the capability of running extraction tasks against live
// pages. The repository and exporters depend on this interface only, so they
// are testable without a browser attached.
type PageInspector interface {
	Run(ctx context.Context, task InspectTask) (json.RawMessage, error)
	Connected() bool
}

type inspectReply struct {
	data json.RawMessage
	err  error
}

// bridgeInspector relays tasks to whichever extension is currently connected
// over the WebSocket bridge, correlating replies by request id. One
// connection at a time; a newer connection replaces the old one.
type bridgeInspector struct {
	mu      sync.Mutex
	conn    *wsConnClient
	pending map[string]chan inspectReply
}

func newBridgeInspector() *bridgeInspector {
	return &bridgeInspector{pending: make(map[string]chan inspectReply)}
}

func (b *bridgeInspector) Attach(conn *wsConnClient) {
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	logInfo("inspector.attached")
}

func (b *bridgeInspector) Detach(conn *wsConnClient) {
	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	// Outstanding calls against the dropped connection will never be
	// answered; fail them now instead of letting them run to deadline.
	for id, ch := range b.pending {
		select {
		case ch <- inspectReply{err: errInspectorOffline}:
		default:
		}
		delete(b.pending, id)
	}
	b.mu.Unlock()
	logInfo("inspector.detached")
}

func (b *bridgeInspector) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

func (b *bridgeInspector) Run(ctx context.Context, task InspectTask) (json.RawMessage, error) {
	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		return nil, errInspectorOffline
	}
	id := uuid.NewString()
	ch := make(chan inspectReply, 1)
	b.pending[id] = ch
	b.mu.Unlock()

	defer b.forget(id)

	timeout := inspectorTimeout
	if task.TimeoutMS > 0 {
		timeout = time.Duration(task.TimeoutMS) * time.Millisecond
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request := wsServerMessage{Type: wsTypeInspect, ID: id, Data: task}
	if err := conn.write(runCtx, request); err != nil {
		return nil, fmt.Errorf("send inspect task: %w", err)
	}

	select {
	case reply := <-ch:
		return reply.data, reply.err
	case <-runCtx.Done():
		return nil, fmt.Errorf("inspect %s: %w", task.Action, runCtx.Err())
	}
}

func (b *bridgeInspector) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// deliver routes an inspect-result message from the extension back to the
// waiting caller. Unknown ids are late replies after a deadline; dropped.
func (b *bridgeInspector) deliver(id string, ok bool, data json.RawMessage, errMessage string) {
	b.mu.Lock()
	ch, found := b.pending[id]
	if found {
		delete(b.pending, id)
	}
	b.mu.Unlock()

	if !found {
		logWarn("inspector.reply.unmatched", "id", id)
		return
	}

	reply := inspectReply{data: data}
	if !ok {
		if errMessage == "" {
			errMessage = "inspection failed"
		}
		reply.err = errors.New(errMessage)
	}
	ch <- reply
}

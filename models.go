package main

import "time"

// SessionTokens are the two values the notebook app embeds in its served HTML.
// They are required on every batched RPC call and live only in process memory.
type SessionTokens struct {
	BLToken     string    `json:"bl_token"`
	ActionToken string    `json:"action_token"`
	AuthUser    int       `json:"auth_user"`
	FetchedAt   time.Time `json:"fetched_at"`
}

type Notebook struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Source struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	TypeCode int    `json:"type_code"`
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	Status   int    `json:"status"`
}

// Artifact is a generated deliverable inside a notebook. Type code 4 covers two
// distinct deliverables and is told apart by Variant (1 flashcards, 2 quiz);
// that split is how the upstream schema works, not something to flatten.
type Artifact struct {
	ID       string `json:"id"`
	TypeCode int    `json:"type_code"`
	Variant  int    `json:"variant,omitempty"`
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
}

type Note struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type ChatMessage struct {
	Role      string `json:"role"` // user, assistant or date
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

type Flashcard struct {
	Front string   `json:"front"`
	Back  string   `json:"back"`
	Tags  []string `json:"tags,omitempty"`
}

type DataTable struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

type Slide struct {
	SlideNumber int    `json:"slide_number"`
	ImageURL    string `json:"image_url,omitempty"`
	PDFURL      string `json:"pdf_url,omitempty"`
	ImageData   string `json:"image_data,omitempty"` // data URL after canvas re-encode
}

type MindmapNode struct {
	Label    string         `json:"label"`
	Children []*MindmapNode `json:"children,omitempty"`
}

type Mindmap struct {
	Title string       `json:"title"`
	Root  *MindmapNode `json:"root"`
}

type NotebookDetail struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Sources []Source `json:"sources"`
}

// ArtifactContent is the per-artifact payload recovered through the extra
// content fetch or, failing that, DOM extraction.
type ArtifactContent struct {
	Report     string      `json:"report,omitempty"`
	Flashcards []Flashcard `json:"flashcards,omitempty"`
	Table      *DataTable  `json:"table,omitempty"`
}

// NotebookContent aggregates the three best-effort extended fetches plus any
// per-artifact payloads worth fetching. Missing pieces stay empty.
type NotebookContent struct {
	Notes     []Note                      `json:"notes"`
	Mindmaps  []Mindmap                   `json:"mindmaps"`
	Chat      []ChatMessage               `json:"chat"`
	Artifacts []Artifact                  `json:"artifacts"`
	Contents  map[string]*ArtifactContent `json:"contents"`
}

const (
	queueStatusPending    = "pending"
	queueStatusProcessing = "processing"
	queueStatusDone       = "done"
	queueStatusError      = "error"
)

const (
	captureKindPage      = "page"
	captureKindSelection = "selection"
	captureKindFile      = "file"
	captureKindYoutube   = "youtube"
	captureKindNote      = "note"
)

type QueueItem struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Payload     string    `json:"payload,omitempty"`
	URL         string    `json:"url,omitempty"`
	MIME        string    `json:"mime,omitempty"`
	NotebookID  string    `json:"notebook_id"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Progress    int       `json:"progress"`
	ChunkIndex  int       `json:"chunk_index,omitempty"`
	TotalChunks int       `json:"total_chunks,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CaptureRequest is what the extension posts when the user grabs a page,
// selection, file, note or YouTube link.
type CaptureRequest struct {
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	Content    string `json:"content,omitempty"`
	URL        string `json:"url,omitempty"`
	MIME       string `json:"mime,omitempty"`
	NotebookID string `json:"notebook_id"`
}

type ExportRequest struct {
	Category      string   `json:"category"`
	Format        string   `json:"format"`
	ItemIDs       []string `json:"item_ids,omitempty"`
	BatchMode     string   `json:"batch_mode,omitempty"` // combined or individual
	NotebookID    string   `json:"notebook_id"`
	NotebookTitle string   `json:"notebook_title,omitempty"`
}

type ExportRecord struct {
	RowID      int64     `json:"row_id"`
	NotebookID string    `json:"notebook_id"`
	Category   string    `json:"category"`
	Format     string    `json:"format"`
	Filename   string    `json:"filename"`
	ItemCount  int       `json:"item_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// BrowserCookie is the shape the extension forwards from the browser cookie
// store for the notebook app domain.
type BrowserCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
	Secure bool   `json:"secure"`
}

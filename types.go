package main

import (
	"time"
)

// Session is one stored conversation transcript. Sessions and everything in
// them are immutable history owned by the host conversation system; this
// engine only reads them. Notes are the one mutable addition, and those live
// in a separate store (see notes.go).
type Session struct {
	ID        string    `json:"session_id"`
	Project   string    `json:"project"`
	Path      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	Turns     []Turn    `json:"turns"`
	Todos     []Todo    `json:"todos"` // final snapshot state
	Files     []FileTouch   `json:"files"`
	Commands  []CommandRun  `json:"commands"`
	Snapshots []TodoSnapshot `json:"-"` // full history, for chapter derivation
}

// Turn is one user or assistant exchange unit within a session.
// Index is the flat 1-based position across all turns; UserTurn is the
// 1-based count of user turns up to and including this one, which is the
// ordinal @<turn> addressing resolves against.
type Turn struct {
	Role      string `json:"role"` // "user" or "assistant"
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
	Index     int    `json:"index"`
	UserTurn  int    `json:"userTurn"`
}

// Todo is a task record produced by the host agent's task-tracking tool.
// The engine reads state transitions and never mutates them.
type Todo struct {
	Text   string `json:"content"`
	Status string `json:"status"` // "pending", "in_progress", "completed"
}

// TodoSnapshot is the full todo list as it stood after the turn at Index.
type TodoSnapshot struct {
	Index int
	Todos []Todo
}

// FileTouch records a file read/write/edit attributed to a turn.
type FileTouch struct {
	Path  string `json:"path"`
	Op    string `json:"op"` // "read", "write", "edit"
	Index int    `json:"index"`
}

// CommandRun records a shell invocation attributed to a turn.
type CommandRun struct {
	Command string `json:"command"`
	Index   int    `json:"index"`
}

// Note is a breadcrumb appended to a session to aid future searches.
// Append-only: never edited or deleted once written.
type Note struct {
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Chapter is a contiguous range of turns bounded by todo-completion events.
// Boundaries are recomputed from todo state on every use, never stored, so
// they cannot diverge from the todo list. The range is half-open over flat
// turn indexes: [Start, End).
type Chapter struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// SessionIndex is the derived, per-session search structure: distinct
// lowercase tokens per category plus the display metadata search results
// need. It is a pure function of session content (notes are scored from the
// live note store instead, so appending a note never invalidates an index).
type SessionIndex struct {
	SessionID   string    `json:"sessionId"`
	Project     string    `json:"project"`
	Timestamp   time.Time `json:"timestamp"`
	Fingerprint string    `json:"fingerprint"`

	Tokens map[Category][]string `json:"tokens"` // sorted distinct tokens

	WorkItems      []string `json:"workItems"` // todo texts + chapter titles
	Completed      []string `json:"completed"`
	InProgress     []string `json:"inProgress"`
	Pending        []string `json:"pending"`
	FilesTouched   []string `json:"filesTouched"`
	CommandsRun    []string `json:"commandsRun"`
	ChapterTitles  []string `json:"chapterTitles"`
	FirstMessage   string   `json:"firstMessage"`
	UserMessageArc []string `json:"userMessageArc"` // first and last user message
	UserTurns      int      `json:"userTurns"`
	TurnCount      int      `json:"turnCount"`
}

// SearchResult is one scored session in a search response.
type SearchResult struct {
	SessionID  string              `json:"sessionId"`
	Score      int                 `json:"score"`
	Breadth    int                 `json:"breadth"`
	Timestamp  time.Time           `json:"timestamp"`
	When       string              `json:"when"`
	Project    string              `json:"project"`
	Summary    string              `json:"summary"`
	Turns      int                 `json:"turns"`
	Snippets   map[Category]string `json:"snippets,omitempty"`
	FirstMatch string              `json:"firstMatch,omitempty"`
}

// SearchPayload is the structured half of a search response.
type SearchPayload struct {
	Results      []SearchResult `json:"results"`
	TotalMatches int            `json:"totalMatches"`
	Query        string         `json:"query"`
}

// SessionSummary is one entry in a recent listing or an ambiguous-identifier
// candidate list.
type SessionSummary struct {
	SessionID  string   `json:"sessionId"`
	Project    string   `json:"project"`
	When       string   `json:"when"`
	Summary    string   `json:"summary"`
	Turns      int      `json:"turns"`
	Completed  []string `json:"completed,omitempty"`
	InProgress []string `json:"inProgress,omitempty"`
	Pending    []string `json:"pending,omitempty"`
	WorkDone   []string `json:"workDone,omitempty"`
	HasNotes   bool     `json:"hasNotes,omitempty"`
}

// RecentPayload is the structured half of a recent listing.
type RecentPayload struct {
	Sessions []SessionSummary `json:"sessions"`
	Total    int              `json:"total"`
}

// ChapterSummary describes one chapter in an overview.
type ChapterSummary struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Messages int    `json:"messages"`
}

// OverviewPayload is the structural view of a single session: chapters,
// todo summary, touched files, and commands, but no transcript text.
type OverviewPayload struct {
	SessionID  string           `json:"sessionId"`
	Project    string           `json:"project"`
	When       string           `json:"when"`
	Turns      int              `json:"turns"`
	Chapters   []ChapterSummary `json:"chapters,omitempty"`
	Completed  []string         `json:"completed,omitempty"`
	InProgress []string         `json:"inProgress,omitempty"`
	Pending    []string         `json:"pending,omitempty"`
	Notes      []string         `json:"notes,omitempty"`
	WorkDone   []string         `json:"workDone,omitempty"`
}

// RenderedTurn is a turn prepared for display, with the truncation policy
// applied. Truncation is a display-time transform; Content always derives
// from the same stored text.
type RenderedTurn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
	Index     int    `json:"index"`
	UserTurn  int    `json:"userTurn"`
	Truncated bool   `json:"truncated,omitempty"`
}

// ReadPayload is the structured half of a read response.
type ReadPayload struct {
	SessionID    string         `json:"sessionId"`
	Mode         string         `json:"mode"` // "session", "chapter", "turn", "message"
	Chapter      int            `json:"chapter,omitempty"`
	ChapterTitle string         `json:"chapterTitle,omitempty"`
	Turn         int            `json:"turn,omitempty"`
	Message      int            `json:"message,omitempty"`
	Messages     []RenderedTurn `json:"messages"`
	TotalTurns   int            `json:"totalTurns"`
}

// CandidatesPayload carries the candidate list for an ambiguous identifier.
type CandidatesPayload struct {
	Ref     string           `json:"ref"`
	Matches []SessionSummary `json:"matches"`
	Total   int              `json:"total"`
}

// NotePayload is the structured half of an add-note response.
type NotePayload struct {
	SessionID  string `json:"sessionId"`
	Note       string `json:"note"`
	TotalNotes int    `json:"totalNotes"`
}

// ProjectsPayload lists the project labels present in the store.
type ProjectsPayload struct {
	Projects []string `json:"projects"`
}

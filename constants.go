package main

// Category identifies the structural source of an indexed token.
type Category string

// Token categories, in descending scoring priority.
const (
	CategoryTodos    Category = "todos"
	CategoryNotes    Category = "notes"
	CategoryFiles    Category = "files"
	CategoryCommands Category = "commands"
	CategoryText     Category = "text"
)

// categoryPriority is the fixed lookup order used by the scorer: a term that
// appears in several categories is credited to the highest one only.
var categoryPriority = []Category{
	CategoryTodos,
	CategoryNotes,
	CategoryFiles,
	CategoryCommands,
	CategoryText,
}

// CategoryWeights holds the per-category contribution to a relevance score.
// The strict ordering todos > notes > files > commands > text is load-bearing:
// a single todo match must outscore any number of text-only matches for the
// same term. Every weight is a multiple of 5 so signal sums never differ by
// less than the recency boost.
type CategoryWeights struct {
	Todos    int
	Notes    int
	Files    int
	Commands int
	Text     int
}

// DefaultWeights is the standard scoring configuration.
var DefaultWeights = CategoryWeights{
	Todos:    30,
	Notes:    25,
	Files:    20,
	Commands: 15,
	Text:     10,
}

// Recency boost constants. Additive and bounded; strictly smaller than the
// smallest category weight so recency can only break ties, never reorder
// sessions with different signal scores.
const (
	RecencyBoostToday = 2
	RecencyBoostWeek  = 1
)

// Message rendering constants
const (
	// Rune threshold above which assistant messages are shortened
	// unless full content is requested
	TruncateLength = 500
	// Number of user turns shown before and after the target of an
	// @<turn> reference
	ContextTurns = 2
	// Bound on an unscoped session read
	DefaultMessageLimit = 50
	// Cap on preview snippets in search results
	MaxSnippetLength = 80
)

// Search and listing constants
const (
	// Default number of results per page
	DefaultSearchLimit = 5
	// Cap on candidates reported for an ambiguous identifier
	MaxAmbiguousMatches = 10
)

// Transcript parsing constants
const (
	// Scanner buffer for transcript lines; long assistant responses
	// routinely exceed bufio's 64KB default
	MaxLineSize = 1024 * 1024
	// Bound on the in-memory LRU of fully parsed sessions
	TranscriptCacheSize = 32
	// Bound on parallel transcript parsing during a scan
	ScanConcurrency = 8
)

// Server configuration constants
const (
	// MCP server name
	ServerName = "deja"
	// Server version following semantic versioning
	ServerVersion = "1.0.0"
)

// UI/CLI messages
const (
	PromptStr     = "deja> "
	WelcomeMsg    = "=== Deja Test Mode ==="
	HelpMsg       = "Commands: search <terms> | recent | show <id> | read <id[:c|@t|.m]> | note <id> <text> | projects | exit"
	UnknownCmdMsg = "Unknown command. Try: search, recent, show, read, note, projects, exit"
)

// Error and status messages
const (
	NoSessionsMsg = "No sessions found."
)

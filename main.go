package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// App wires the search engine and its collaborators for the tool handlers.
type App struct {
	engine   *Engine
	cache    *IndexCache
	logger   *log.Logger
	testMode bool
}

func main() {
	testMode := flag.Bool("t", false, "Run in interactive CLI test mode")
	rootFlag := flag.String("root", "", "Transcript store root (overrides config)")
	flag.Parse()

	ctx := context.Background()
	logger := log.New(os.Stderr, "", log.LstdFlags)

	cfg, err := LoadConfig(logger)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *rootFlag != "" {
		cfg.ProjectsPath = *rootFlag
	}

	store := NewStore(cfg.ProjectsPath, logger)
	notes := NewNoteStore(cfg.NotesPath)

	var cache *IndexCache
	if !cfg.DisableCache {
		cache, err = OpenIndexCache(cfg.CacheDir)
		if err != nil {
			// The cache is an optimization; run uncached rather than die.
			logger.Printf("Warning: running without index cache: %v", err)
			cache = nil
		}
	}

	app := &App{
		engine:   NewEngine(store, notes, cache, DefaultWeights, logger),
		cache:    cache,
		logger:   logger,
		testMode: *testMode,
	}
	defer func() {
		if app.cache != nil {
			app.cache.Close()
		}
	}()

	if *testMode {
		app.runInteractiveCLI(ctx)
		return
	}

	s := server.NewMCPServer(ServerName, ServerVersion)

	// --- Tool Registration ---

	s.AddTool(mcp.NewTool("search_sessions",
		mcp.WithDescription("Search past sessions by keyword. Matching is exact, case-insensitive token equality over todos, notes, files, commands, and transcript text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search terms, whitespace separated")),
		mcp.WithString("project", mcp.Description("Only sessions from this project")),
		mcp.WithString("after", mcp.Description("Only sessions on or after this date (YYYY-MM-DD or RFC 3339)")),
		mcp.WithString("before", mcp.Description("Only sessions strictly before this date")),
		mcp.WithNumber("skip", mcp.Description("Results to skip for pagination")),
		mcp.WithNumber("limit", mcp.Description("Maximum results to return")),
	), app.searchHandler)

	s.AddTool(mcp.NewTool("recent_sessions",
		mcp.WithDescription("List sessions newest first, with the same filters and pagination as search_sessions."),
		mcp.WithString("project", mcp.Description("Only sessions from this project")),
		mcp.WithString("after", mcp.Description("Only sessions on or after this date")),
		mcp.WithString("before", mcp.Description("Only sessions strictly before this date")),
		mcp.WithNumber("skip", mcp.Description("Sessions to skip for pagination")),
		mcp.WithNumber("limit", mcp.Description("Maximum sessions to return")),
	), app.recentHandler)

	s.AddTool(mcp.NewTool("session_overview",
		mcp.WithDescription("Structural overview of one session: chapters, todos, notes, files, and commands. No transcript text."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session id or unique prefix")),
	), app.overviewHandler)

	s.AddTool(mcp.NewTool("read_session",
		mcp.WithDescription("Read transcript content. Address a chapter with <id>:<n>, a turn with <id>@<n>, or a single message with <id>.<n>."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session reference, e.g. abc123, abc123:2, abc123@5, abc123.17")),
		mcp.WithBoolean("full", mcp.Description("Disable truncation of long assistant messages")),
	), app.readHandler)

	s.AddTool(mcp.NewTool("add_note",
		mcp.WithDescription("Append a breadcrumb note to a session so future searches can find it."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session id or unique prefix")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Note text")),
	), app.noteHandler)

	s.AddTool(mcp.NewTool("list_projects",
		mcp.WithDescription("List the project labels present in the transcript store."),
	), app.projectsHandler)

	logger.Printf("%s %s serving on stdio (store: %s)", ServerName, ServerVersion, cfg.ProjectsPath)
	if err := server.ServeStdio(s); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

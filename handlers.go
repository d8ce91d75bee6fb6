package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// formatResult renders the stable two-part response contract: a one-line
// prose summary followed by a machine-parseable JSON payload.
func formatResult(summary string, payload any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode payload: %v", err))
	}
	return mcp.NewToolResultText(summary + "\n" + string(data))
}

// resultForErr maps engine errors to tool results. Ambiguous identifiers
// are a normal, self-correctable outcome and come back as a candidate
// listing rather than an error.
func resultForErr(err error) *mcp.CallToolResult {
	var amb *AmbiguousIdentifierError
	if errors.As(err, &amb) {
		summary := fmt.Sprintf("%d sessions match %q. Be more specific or use the full ID.", len(amb.Candidates), amb.Ref)
		return formatResult(summary, CandidatesPayload{
			Ref:   amb.Ref,
			Total: len(amb.Candidates),
			Matches: func() []SessionSummary {
				out := make([]SessionSummary, 0, len(amb.Candidates))
				for _, id := range amb.Candidates {
					out = append(out, SessionSummary{SessionID: id})
				}
				return out
			}(),
		})
	}
	return mcp.NewToolResultError(err.Error())
}

// argString extracts a string argument.
func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

// argInt extracts a numeric argument, which arrives as float64 from JSON.
func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}

// argBool extracts a boolean argument.
func argBool(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

// parseFilters builds the common project/date filters from tool arguments.
func parseFilters(args map[string]any) (Filters, error) {
	filters := Filters{Project: argString(args, "project")}

	after, err := parseFilterTime(argString(args, "after"))
	if err != nil {
		return Filters{}, err
	}
	before, err := parseFilterTime(argString(args, "before"))
	if err != nil {
		return Filters{}, err
	}
	filters.After = after
	filters.Before = before
	return filters, nil
}

// searchHandler handles the search_sessions tool - exact keyword search
// over todos, notes, files, commands, and transcript text.
func (a *App) searchHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments"), nil
	}

	query := argString(args, "query")
	if query == "" {
		return mcp.NewToolResultError("Search query cannot be empty"), nil
	}

	filters, err := parseFilters(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	skip := argInt(args, "skip", 0)
	limit := argInt(args, "limit", DefaultSearchLimit)

	summary, payload, err := a.engine.Search(ctx, query, filters, skip, limit)
	if err != nil {
		return resultForErr(err), nil
	}
	return formatResult(summary, payload), nil
}

// recentHandler handles the recent_sessions tool - newest-first listing
// with the same filters and pagination as search.
func (a *App) recentHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		args = map[string]any{}
	}

	filters, err := parseFilters(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	skip := argInt(args, "skip", 0)
	limit := argInt(args, "limit", DefaultSearchLimit)

	summary, payload, err := a.engine.Recent(ctx, filters, skip, limit)
	if err != nil {
		return resultForErr(err), nil
	}
	return formatResult(summary, payload), nil
}

// overviewHandler handles the session_overview tool - the structural view
// of one session without transcript text.
func (a *App) overviewHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	ref := argString(args, "session")
	if ref == "" {
		return mcp.NewToolResultError("Session identifier cannot be empty"), nil
	}

	summary, payload, err := a.engine.Overview(ctx, ref)
	if err != nil {
		return resultForErr(err), nil
	}
	return formatResult(summary, payload), nil
}

// readHandler handles the read_session tool - transcript content addressed
// by <id>, <id>:<chapter>, <id>@<turn>, or <id>.<message>.
func (a *App) readHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	ref := argString(args, "session")
	if ref == "" {
		return mcp.NewToolResultError("Session identifier cannot be empty"), nil
	}
	full := argBool(args, "full")

	summary, payload, err := a.engine.Read(ctx, ref, full)
	if err != nil {
		return resultForErr(err), nil
	}
	return formatResult(summary, payload), nil
}

// noteHandler handles the add_note tool - appends a breadcrumb to a
// session for future searches.
func (a *App) noteHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	ref := argString(args, "session")
	text := argString(args, "text")
	if ref == "" {
		return mcp.NewToolResultError("Session identifier cannot be empty"), nil
	}
	if text == "" {
		return mcp.NewToolResultError("Note text cannot be empty"), nil
	}

	summary, payload, err := a.engine.AddNote(ctx, ref, text)
	if err != nil {
		return resultForErr(err), nil
	}
	return formatResult(summary, payload), nil
}

// projectsHandler handles the list_projects tool.
func (a *App) projectsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, payload, err := a.engine.Projects(ctx)
	if err != nil {
		return resultForErr(err), nil
	}
	return formatResult(summary, payload), nil
}

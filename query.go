package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"
)

// Filters narrows a search or listing before scoring. Project matching is
// exact; After is inclusive and Before exclusive.
type Filters struct {
	Project string
	After   time.Time
	Before  time.Time
}

func (f Filters) matches(idx *SessionIndex) bool {
	if f.Project != "" && idx.Project != f.Project {
		return false
	}
	if !f.After.IsZero() && idx.Timestamp.Before(f.After) {
		return false
	}
	if !f.Before.IsZero() && !idx.Timestamp.Before(f.Before) {
		return false
	}
	return true
}

// parseFilterTime parses a date filter value as a calendar date or a full
// RFC 3339 timestamp. A malformed value is an invalid query, rejected
// before the store is touched.
func parseFilterTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse date %q (want YYYY-MM-DD or RFC 3339)", ErrInvalidQuery, value)
}

// Engine orchestrates loading, indexing, scoring, and addressing. It holds
// no mutable state of its own beyond the read-through caches, so concurrent
// invocations are safe.
type Engine struct {
	store  *Store
	notes  *NoteStore
	cache  *IndexCache // optional; nil disables the persistent index cache
	scorer *Scorer
	logger *log.Logger
	now    func() time.Time
}

// NewEngine wires an Engine from its collaborators. cache may be nil.
func NewEngine(store *Store, notes *NoteStore, cache *IndexCache, weights CategoryWeights, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Engine{
		store:  store,
		notes:  notes,
		cache:  cache,
		scorer: NewScorer(weights),
		logger: logger,
		now:    time.Now,
	}
}

// storeView is one invocation's consistent picture of the store: the
// record listing plus an index per parseable session, newest first.
type storeView struct {
	files   []SessionFile
	byID    map[string]SessionFile
	indexes []*SessionIndex
}

// view scans the store and produces the session indexes, reading from the
// persistent cache where fingerprints still match and rebuilding the rest
// from freshly parsed transcripts.
func (e *Engine) view(ctx context.Context) (*storeView, error) {
	files, err := e.store.Scan(ctx)
	if err != nil {
		return nil, err
	}

	v := &storeView{
		files: files,
		byID:  make(map[string]SessionFile, len(files)),
	}

	cached := make(map[string]*SessionIndex, len(files))
	var misses []SessionFile
	for _, file := range files {
		v.byID[file.ID] = file
		if e.cache != nil {
			if idx, ok := e.cache.Get(file.ID, file.Fingerprint()); ok {
				cached[file.ID] = idx
				continue
			}
		}
		misses = append(misses, file)
	}

	if len(misses) > 0 {
		sessions := e.store.LoadAll(ctx, misses)
		for _, file := range misses {
			sess, ok := sessions[file.ID]
			if !ok {
				continue // corrupt record, already warned
			}
			idx := BuildIndex(sess, file)
			cached[file.ID] = idx
			if e.cache != nil {
				if err := e.cache.Put(idx); err != nil {
					e.logger.Printf("Warning: failed to cache index for %s: %v", file.ID, err)
				}
			}
		}
	}

	for _, file := range files {
		if idx, ok := cached[file.ID]; ok {
			v.indexes = append(v.indexes, idx)
		}
	}

	if e.cache != nil {
		live := make(map[string]struct{}, len(files))
		for _, file := range files {
			live[file.ID] = struct{}{}
		}
		if err := e.cache.Prune(live); err != nil {
			e.logger.Printf("Warning: failed to prune index cache: %v", err)
		}
	}

	return v, nil
}

// Search scores every session in the store against the query, returning a
// one-line prose summary plus the ranked, paginated payload. Sessions
// scoring zero are not results. An empty query falls back to recent-session
// ordering with the same filters and window.
func (e *Engine) Search(ctx context.Context, query string, filters Filters, skip, limit int) (string, *SearchPayload, error) {
	if err := validateWindow(skip, limit); err != nil {
		return "", nil, err
	}

	v, err := e.view(ctx)
	if err != nil {
		return "", nil, err
	}

	terms := distinctTerms(query)
	allNotes, err := e.notes.All()
	if err != nil {
		return "", nil, err
	}

	var ranked []rankedResult
	for _, idx := range v.indexes {
		if !filters.matches(idx) {
			continue
		}

		if len(terms) == 0 {
			// Recent-sessions mode: every filtered session is a result,
			// ordered purely by creation time.
			ranked = append(ranked, rankedResult{idx: idx})
			continue
		}

		tokens := make(map[string]struct{})
		tokenSet(tokens, noteTexts(allNotes[idx.SessionID])...)
		rel := e.scorer.ScoreSession(idx, sortedTokens(tokens), terms)
		if rel.Breadth == 0 {
			continue
		}
		ranked = append(ranked, rankedResult{idx: idx, rel: rel})
	}

	if len(terms) == 0 {
		sort.Slice(ranked, func(i, j int) bool {
			if !ranked[i].idx.Timestamp.Equal(ranked[j].idx.Timestamp) {
				return ranked[i].idx.Timestamp.After(ranked[j].idx.Timestamp)
			}
			return ranked[i].idx.SessionID < ranked[j].idx.SessionID
		})
	} else {
		sort.Slice(ranked, func(i, j int) bool {
			return moreRelevant(ranked[i], ranked[j])
		})
	}

	total := len(ranked)
	window := windowOf(ranked, skip, limit)

	payload := &SearchPayload{
		Results:      make([]SearchResult, 0, len(window)),
		TotalMatches: total,
		Query:        query,
	}
	for _, r := range window {
		payload.Results = append(payload.Results, e.buildResult(r, allNotes[r.idx.SessionID], v))
	}

	var summary string
	if skip > 0 {
		summary = fmt.Sprintf("Found %d sessions matching %q. Showing %d-%d.", total, query, skip+1, skip+len(window))
	} else {
		summary = fmt.Sprintf("Found %d sessions matching %q. Showing top %d.", total, query, len(window))
	}
	return summary, payload, nil
}

// Recent lists sessions by creation time descending with the same filters
// and pagination as Search.
func (e *Engine) Recent(ctx context.Context, filters Filters, skip, limit int) (string, *RecentPayload, error) {
	if err := validateWindow(skip, limit); err != nil {
		return "", nil, err
	}

	v, err := e.view(ctx)
	if err != nil {
		return "", nil, err
	}
	allNotes, err := e.notes.All()
	if err != nil {
		return "", nil, err
	}

	projects := make(map[string]struct{})
	var filtered []*SessionIndex
	for _, idx := range v.indexes {
		projects[idx.Project] = struct{}{}
		if filters.matches(idx) {
			filtered = append(filtered, idx)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].Timestamp.Equal(filtered[j].Timestamp) {
			return filtered[i].Timestamp.After(filtered[j].Timestamp)
		}
		return filtered[i].SessionID < filtered[j].SessionID
	})

	window := windowOf(filtered, skip, limit)
	payload := &RecentPayload{
		Sessions: make([]SessionSummary, 0, len(window)),
		Total:    len(filtered),
	}
	for _, idx := range window {
		payload.Sessions = append(payload.Sessions, e.summarize(idx, allNotes[idx.SessionID]))
	}

	var summary string
	switch {
	case len(v.indexes) == 0:
		summary = NoSessionsMsg
	case skip > 0:
		summary = fmt.Sprintf("%d conversations across %d projects. Showing %d-%d.", len(v.indexes), len(projects), skip+1, skip+len(window))
	default:
		summary = fmt.Sprintf("%d conversations across %d projects. Showing %d most recent.", len(v.indexes), len(projects), len(window))
	}
	return summary, payload, nil
}

// Projects lists the project labels present in the store.
func (e *Engine) Projects(ctx context.Context) (string, *ProjectsPayload, error) {
	projects, err := e.store.Projects()
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%d projects", len(projects)), &ProjectsPayload{Projects: projects}, nil
}

// AddNote appends a breadcrumb to a session. The identifier may be a
// prefix; it must resolve uniquely.
func (e *Engine) AddNote(ctx context.Context, ref, text string) (string, *NotePayload, error) {
	v, err := e.view(ctx)
	if err != nil {
		return "", nil, err
	}
	file, err := resolveID(ref, v.files)
	if err != nil {
		return "", nil, err
	}

	total, err := e.notes.Append(file.ID, text)
	if err != nil {
		return "", nil, err
	}

	summary := fmt.Sprintf("Added note to %s (%d total notes)", shortID(file.ID), total)
	return summary, &NotePayload{SessionID: file.ID, Note: text, TotalNotes: total}, nil
}

// buildResult assembles one search result with its per-category preview
// snippets and first-match location hint.
func (e *Engine) buildResult(r rankedResult, notes []Note, v *storeView) SearchResult {
	idx := r.idx
	result := SearchResult{
		SessionID: idx.SessionID,
		Score:     r.rel.Score(),
		Breadth:   r.rel.Breadth,
		Timestamp: idx.Timestamp,
		When:      shortWhen(idx.Timestamp, e.now()),
		Project:   shortProject(idx.Project),
		Summary:   sessionSummaryLine(idx),
		Turns:     idx.UserTurns,
	}

	matched := make([]string, 0, len(r.rel.Matches))
	for _, m := range r.rel.Matches {
		matched = append(matched, m.Term)
	}
	if len(matched) == 0 {
		return result
	}

	result.Snippets = make(map[Category]string)
	for _, cat := range r.rel.Categories() {
		var pool []string
		switch cat {
		case CategoryTodos:
			pool = idx.WorkItems
		case CategoryNotes:
			pool = noteTexts(notes)
		case CategoryFiles:
			pool = idx.FilesTouched
		case CategoryCommands:
			pool = idx.CommandsRun
		}
		if snippet := firstContaining(pool, matched); snippet != "" {
			result.Snippets[cat] = clip(snippet, MaxSnippetLength)
		}
	}

	result.FirstMatch = e.firstMatch(idx, matched, v)
	return result
}

// firstMatch locates where in the session the query first hits: a chapter
// title (":N title") or, failing that, the first matching turn ("@N ...").
// Turn lookup needs the full transcript, so it runs only for windowed
// results.
func (e *Engine) firstMatch(idx *SessionIndex, matched []string, v *storeView) string {
	for i, title := range idx.ChapterTitles {
		if containsAny(title, matched) {
			return fmt.Sprintf(":%d %s", i+1, clip(title, MaxSnippetLength))
		}
	}

	file, ok := v.byID[idx.SessionID]
	if !ok {
		return ""
	}
	sess, err := e.store.Load(file)
	if err != nil {
		return ""
	}
	for _, turn := range sess.Turns {
		if containsAny(turn.Content, matched) {
			return fmt.Sprintf("@%d %s", turn.UserTurn, clip(turn.Content, 50))
		}
	}
	return ""
}

// summarize builds the listing entry for one session.
func (e *Engine) summarize(idx *SessionIndex, notes []Note) SessionSummary {
	workDone := append([]string{}, idx.FilesTouched...)
	if len(workDone) > 5 {
		workDone = workDone[:5]
	}
	cmds := idx.CommandsRun
	if len(cmds) > 3 {
		cmds = cmds[:3]
	}
	workDone = append(workDone, cmds...)

	return SessionSummary{
		SessionID:  idx.SessionID,
		Project:    shortProject(idx.Project),
		When:       shortWhen(idx.Timestamp, e.now()),
		Summary:    sessionSummaryLine(idx),
		Turns:      idx.UserTurns,
		Completed:  idx.Completed,
		InProgress: idx.InProgress,
		Pending:    idx.Pending,
		WorkDone:   workDone,
		HasNotes:   len(notes) > 0,
	}
}

// sessionSummaryLine describes a session in one line: what was completed,
// or the first-to-last arc of user messages.
func sessionSummaryLine(idx *SessionIndex) string {
	if len(idx.Completed) > 0 {
		top := idx.Completed
		if len(top) > 3 {
			top = top[:3]
		}
		return strings.Join(top, ", ")
	}
	switch len(idx.UserMessageArc) {
	case 2:
		return fmt.Sprintf("[%dt] %s → %s", idx.UserTurns, clip(idx.UserMessageArc[0], 60), clip(idx.UserMessageArc[1], 60))
	case 1:
		return fmt.Sprintf("[%dt] %s", idx.UserTurns, clip(idx.UserMessageArc[0], 100))
	default:
		return clip(idx.FirstMessage, 100)
	}
}

// distinctTerms tokenizes a query the same way session content is
// tokenized, deduplicated in first-seen order.
func distinctTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, tok := range Tokenize(query) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
	}
	return terms
}

// validateWindow rejects nonsensical pagination before any store access.
func validateWindow(skip, limit int) error {
	if skip < 0 {
		return fmt.Errorf("%w: skip must be non-negative", ErrInvalidQuery)
	}
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be positive", ErrInvalidQuery)
	}
	return nil
}

// windowOf returns the [skip, skip+limit) slice of results. A skip beyond
// the end yields an empty window, not an error.
func windowOf[T any](results []T, skip, limit int) []T {
	if skip >= len(results) {
		return nil
	}
	end := skip + limit
	if end > len(results) {
		end = len(results)
	}
	return results[skip:end]
}

// firstContaining returns the first candidate containing any term,
// case-insensitively.
func firstContaining(candidates []string, terms []string) string {
	for _, cand := range candidates {
		if containsAny(cand, terms) {
			return cand
		}
	}
	return ""
}

func containsAny(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// shortProject trims a store-mangled project label (-Users-kate-Projects-foo)
// to its last path component.
func shortProject(project string) string {
	if project == "" {
		return ""
	}
	parts := strings.Split(project, "-")
	return parts[len(parts)-1]
}

// shortID abbreviates a session identifier for prose summaries.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// shortWhen formats a timestamp relative to now: "now", "3h ago",
// "yesterday", "4d ago", or "Jan 2" beyond a week.
func shortWhen(ts time.Time, now time.Time) string {
	if ts.IsZero() {
		return ""
	}
	diff := now.Sub(ts)
	days := int(diff.Hours() / 24)
	switch {
	case days == 0:
		hours := int(diff.Hours())
		if hours == 0 {
			return "now"
		}
		return fmt.Sprintf("%dh ago", hours)
	case days == 1:
		return "yesterday"
	case days < 7:
		return fmt.Sprintf("%dd ago", days)
	default:
		return ts.Format("Jan 2")
	}
}

package main

import (
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// Tokenize splits text on whitespace and punctuation boundaries into
// lowercase alphanumeric runs, discarding empty tokens. No stemming and no
// synonym expansion: matching is exact token equality.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenSet accumulates the distinct tokens of the given texts.
func tokenSet(dst map[string]struct{}, texts ...string) {
	for _, text := range texts {
		for _, tok := range Tokenize(text) {
			dst[tok] = struct{}{}
		}
	}
}

// sortedTokens flattens a token set into a sorted slice for storage.
func sortedTokens(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for tok := range set {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// BuildIndex derives the searchable token sets and display metadata for one
// session. The result is a pure function of the session's content; notes
// are scored from the live note store instead so that appending a note
// never invalidates a cached index.
func BuildIndex(sess *Session, file SessionFile) *SessionIndex {
	idx := &SessionIndex{
		SessionID:   sess.ID,
		Project:     sess.Project,
		Timestamp:   sess.CreatedAt,
		Fingerprint: file.Fingerprint(),
		Tokens:      make(map[Category][]string),
		TurnCount:   len(sess.Turns),
	}

	chapters := ComputeChapters(sess)
	for _, ch := range chapters {
		if ch.Title != "" {
			idx.ChapterTitles = append(idx.ChapterTitles, ch.Title)
		}
	}

	for _, todo := range sess.Todos {
		switch todo.Status {
		case "completed":
			idx.Completed = append(idx.Completed, todo.Text)
		case "in_progress":
			idx.InProgress = append(idx.InProgress, todo.Text)
		default:
			idx.Pending = append(idx.Pending, todo.Text)
		}
	}

	// Work items unify final todos with chapter titles so sessions that
	// cleared their todo list stay findable by what they accomplished.
	seen := make(map[string]struct{})
	for _, text := range append(append(append(append([]string{}, idx.Completed...), idx.InProgress...), idx.Pending...), idx.ChapterTitles...) {
		if text == "" {
			continue
		}
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		idx.WorkItems = append(idx.WorkItems, text)
	}

	todoTokens := make(map[string]struct{})
	tokenSet(todoTokens, idx.WorkItems...)

	fileTokens := make(map[string]struct{})
	seenFiles := make(map[string]struct{})
	for _, touch := range sess.Files {
		tokenSet(fileTokens, touch.Path)
		// Path segments and the bare filename are tokens in their own
		// right, so a query can name a file directly.
		for _, seg := range strings.Split(strings.ToLower(touch.Path), "/") {
			if seg != "" {
				fileTokens[seg] = struct{}{}
			}
		}
		base := filepath.Base(touch.Path)
		if _, ok := seenFiles[base]; !ok {
			seenFiles[base] = struct{}{}
			idx.FilesTouched = append(idx.FilesTouched, base)
		}
	}

	cmdTokens := make(map[string]struct{})
	seenCmds := make(map[string]struct{})
	for _, run := range sess.Commands {
		tokenSet(cmdTokens, run.Command)
		display := run.Command
		if len(display) > 100 {
			display = display[:100]
		}
		if _, ok := seenCmds[display]; !ok {
			seenCmds[display] = struct{}{}
			idx.CommandsRun = append(idx.CommandsRun, display)
		}
	}

	textTokens := make(map[string]struct{})
	var userMessages []string
	for _, turn := range sess.Turns {
		tokenSet(textTokens, turn.Content)
		if turn.Role == "user" {
			userMessages = append(userMessages, clip(turn.Content, 200))
		}
	}

	idx.UserTurns = len(userMessages)
	if len(userMessages) > 0 {
		idx.FirstMessage = userMessages[0]
		idx.UserMessageArc = []string{userMessages[0]}
		if len(userMessages) > 1 {
			idx.UserMessageArc = append(idx.UserMessageArc, userMessages[len(userMessages)-1])
		}
	}

	idx.Tokens[CategoryTodos] = sortedTokens(todoTokens)
	idx.Tokens[CategoryFiles] = sortedTokens(fileTokens)
	idx.Tokens[CategoryCommands] = sortedTokens(cmdTokens)
	idx.Tokens[CategoryText] = sortedTokens(textTokens)

	return idx
}

// ComputeChapters derives chapter boundaries from todo completion events:
// a todo transitioning to completed closes the current chapter and opens
// the next. Computed fresh from Turns+Snapshots on every call so boundaries
// can never diverge from the todo list. The returned chapters partition
// [1, len(Turns)] exactly; a session with no turns has no chapters.
func ComputeChapters(sess *Session) []Chapter {
	total := len(sess.Turns)
	if total == 0 {
		return nil
	}

	var chapters []Chapter
	completed := make(map[string]struct{})
	start := 1

	for _, snap := range sess.Snapshots {
		for _, todo := range snap.Todos {
			if todo.Status != "completed" || todo.Text == "" {
				continue
			}
			if _, ok := completed[todo.Text]; ok {
				continue
			}
			completed[todo.Text] = struct{}{}

			end := snap.Index + 1 // half-open; includes the completing turn
			if end > total+1 {
				end = total + 1
			}
			if end <= start {
				// Completion before any new turn: fold into the next
				// chapter rather than emit an empty one.
				continue
			}
			chapters = append(chapters, Chapter{
				Number: len(chapters) + 1,
				Title:  todo.Text,
				Start:  start,
				End:    end,
			})
			start = end
		}
	}

	// Remaining turns form the open tail chapter, titled by what is still
	// underway.
	if start <= total {
		chapters = append(chapters, Chapter{
			Number: len(chapters) + 1,
			Title:  openChapterTitle(sess),
			Start:  start,
			End:    total + 1,
		})
	}

	return chapters
}

// openChapterTitle names the trailing chapter after the first in-progress
// todo, falling back to the first pending one.
func openChapterTitle(sess *Session) string {
	for _, todo := range sess.Todos {
		if todo.Status == "in_progress" && todo.Text != "" {
			return todo.Text
		}
	}
	for _, todo := range sess.Todos {
		if todo.Status == "pending" && todo.Text != "" {
			return todo.Text
		}
	}
	return ""
}

// chapterFor returns the chapter containing the turn at the given flat
// index, or nil if the index is outside every chapter.
func chapterFor(chapters []Chapter, index int) *Chapter {
	for i := range chapters {
		if index >= chapters[i].Start && index < chapters[i].End {
			return &chapters[i]
		}
	}
	return nil
}

// clip shortens s to at most n runes, appending an ellipsis when cut.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

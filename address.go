package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RefKind is the addressing depth of a parsed session reference.
type RefKind int

const (
	RefSession RefKind = iota // <id>
	RefChapter                // <id>:<n>
	RefTurn                   // <id>@<n>
	RefMessage                // <id>.<n>
)

// Ref is a parsed session reference. N is meaningful for every kind except
// RefSession.
type Ref struct {
	ID   string
	Kind RefKind
	N    int
}

// ParseRef parses the addressing grammar: `<id>`, `<id>:<chapter>`,
// `<id>@<turn>`, `<id>.<message>`. The identifier part may be a prefix;
// resolution happens separately.
func ParseRef(input string) (Ref, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Ref{}, fmt.Errorf("%w: empty session reference", ErrInvalidQuery)
	}

	sep := strings.IndexAny(input, ":@.")
	if sep < 0 {
		return Ref{ID: input, Kind: RefSession}, nil
	}

	id := input[:sep]
	numPart := input[sep+1:]
	if id == "" {
		return Ref{}, fmt.Errorf("%w: missing identifier in %q", ErrInvalidQuery, input)
	}
	n, err := strconv.Atoi(numPart)
	if err != nil || n < 1 {
		return Ref{}, fmt.Errorf("%w: %q is not a valid ordinal in %q", ErrInvalidQuery, numPart, input)
	}

	ref := Ref{ID: id, N: n}
	switch input[sep] {
	case ':':
		ref.Kind = RefChapter
	case '@':
		ref.Kind = RefTurn
	case '.':
		ref.Kind = RefMessage
	}
	return ref, nil
}

// resolveID maps an identifier (or unique prefix) to its session record.
// An exact match always wins; otherwise the prefix must match exactly one
// session. Ambiguity reports the candidates, newest first, and is never
// silently resolved.
func resolveID(ref string, files []SessionFile) (SessionFile, error) {
	var matches []SessionFile
	for _, file := range files {
		if file.ID == ref {
			return file, nil
		}
		if strings.HasPrefix(file.ID, ref) {
			matches = append(matches, file)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return SessionFile{}, &NotFoundError{Ref: ref}
	}

	// files arrive newest first from Scan, but sort defensively: the
	// candidate list is part of the user-visible contract.
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].ModTime.Equal(matches[j].ModTime) {
			return matches[i].ModTime.After(matches[j].ModTime)
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > MaxAmbiguousMatches {
		matches = matches[:MaxAmbiguousMatches]
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	return SessionFile{}, &AmbiguousIdentifierError{Ref: ref, Candidates: ids}
}

// Overview produces the structural view of one session: chapter list with
// boundaries, todo summary, notes, and work done. No transcript text, so a
// bare identifier never dumps a whole conversation.
func (e *Engine) Overview(ctx context.Context, refStr string) (string, *OverviewPayload, error) {
	ref, err := ParseRef(refStr)
	if err != nil {
		return "", nil, err
	}

	v, err := e.view(ctx)
	if err != nil {
		return "", nil, err
	}
	file, err := resolveID(ref.ID, v.files)
	if err != nil {
		return "", nil, err
	}
	sess, err := e.store.Load(file)
	if err != nil {
		return "", nil, fmt.Errorf("session %s is unreadable: %w", file.ID, err)
	}

	notes, err := e.notes.For(file.ID)
	if err != nil {
		return "", nil, err
	}

	chapters := ComputeChapters(sess)
	payload := &OverviewPayload{
		SessionID: sess.ID,
		Project:   shortProject(sess.Project),
		When:      shortWhen(sess.CreatedAt, e.now()),
		Notes:     noteTexts(notes),
	}

	for _, ch := range chapters {
		payload.Chapters = append(payload.Chapters, ChapterSummary{
			Number:   ch.Number,
			Title:    ch.Title,
			Start:    ch.Start,
			End:      ch.End - 1, // reported inclusive
			Messages: ch.End - ch.Start,
		})
	}

	for _, todo := range sess.Todos {
		switch todo.Status {
		case "completed":
			payload.Completed = append(payload.Completed, todo.Text)
		case "in_progress":
			payload.InProgress = append(payload.InProgress, todo.Text)
		default:
			payload.Pending = append(payload.Pending, todo.Text)
		}
	}

	userTurns := 0
	for _, turn := range sess.Turns {
		if turn.Role == "user" {
			userTurns++
		}
	}
	payload.Turns = userTurns

	seen := make(map[string]struct{})
	for _, touch := range sess.Files {
		base := touch.Path[strings.LastIndex(touch.Path, "/")+1:]
		if _, ok := seen[base]; ok {
			continue
		}
		seen[base] = struct{}{}
		payload.WorkDone = append(payload.WorkDone, base)
		if len(payload.WorkDone) >= 10 {
			break
		}
	}
	for i, run := range sess.Commands {
		if i >= 5 {
			break
		}
		payload.WorkDone = append(payload.WorkDone, clip(run.Command, 100))
	}

	summary := fmt.Sprintf("Session %s · %d turns · %s · %s",
		sess.ID, userTurns, shortProject(sess.Project), shortWhen(sess.CreatedAt, e.now()))
	return summary, payload, nil
}

// Read renders transcript content for a reference: the whole session
// (bounded), one chapter, one turn with its context window, or one
// message. Assistant content is truncated unless full is set; truncation
// is display-only and both renderings share the stored text.
func (e *Engine) Read(ctx context.Context, refStr string, full bool) (string, *ReadPayload, error) {
	ref, err := ParseRef(refStr)
	if err != nil {
		return "", nil, err
	}

	v, err := e.view(ctx)
	if err != nil {
		return "", nil, err
	}
	file, err := resolveID(ref.ID, v.files)
	if err != nil {
		return "", nil, err
	}
	sess, err := e.store.Load(file)
	if err != nil {
		return "", nil, fmt.Errorf("session %s is unreadable: %w", file.ID, err)
	}

	payload := &ReadPayload{
		SessionID:  sess.ID,
		TotalTurns: len(sess.Turns),
	}

	switch ref.Kind {
	case RefChapter:
		chapters := ComputeChapters(sess)
		if ref.N > len(chapters) {
			return "", nil, &OutOfRangeError{What: "chapter", N: ref.N, Max: len(chapters)}
		}
		ch := chapters[ref.N-1]
		payload.Mode = "chapter"
		payload.Chapter = ch.Number
		payload.ChapterTitle = ch.Title
		for _, turn := range sess.Turns[ch.Start-1 : ch.End-1] {
			payload.Messages = append(payload.Messages, renderTurn(turn, full))
		}
		summary := fmt.Sprintf("Chapter %d: %s · %d messages", ch.Number, ch.Title, len(payload.Messages))
		return summary, payload, nil

	case RefTurn:
		userTurns := 0
		for _, turn := range sess.Turns {
			if turn.Role == "user" {
				userTurns++
			}
		}
		if ref.N > userTurns {
			return "", nil, &OutOfRangeError{What: "turn", N: ref.N, Max: userTurns}
		}
		lo, hi := ref.N-ContextTurns, ref.N+ContextTurns
		payload.Mode = "turn"
		payload.Turn = ref.N
		for _, turn := range sess.Turns {
			if turn.UserTurn >= lo && turn.UserTurn <= hi {
				payload.Messages = append(payload.Messages, renderTurn(turn, full))
			}
		}
		summary := fmt.Sprintf("Turn %d of %d (showing context)", ref.N, userTurns)
		return summary, payload, nil

	case RefMessage:
		if ref.N > len(sess.Turns) {
			return "", nil, &OutOfRangeError{What: "message", N: ref.N, Max: len(sess.Turns)}
		}
		payload.Mode = "message"
		payload.Message = ref.N
		payload.Messages = []RenderedTurn{renderTurn(sess.Turns[ref.N-1], full)}
		return fmt.Sprintf("Message %d of %d", ref.N, len(sess.Turns)), payload, nil

	default:
		payload.Mode = "session"
		end := len(sess.Turns)
		if !full && end > DefaultMessageLimit {
			end = DefaultMessageLimit
		}
		for _, turn := range sess.Turns[:end] {
			payload.Messages = append(payload.Messages, renderTurn(turn, full))
		}
		summary := fmt.Sprintf("Messages 1-%d of %d", end, len(sess.Turns))
		return summary, payload, nil
	}
}

// renderTurn applies the display-time truncation policy to one turn.
func renderTurn(turn Turn, full bool) RenderedTurn {
	rt := RenderedTurn{
		Role:      turn.Role,
		Content:   turn.Content,
		Timestamp: turn.Timestamp,
		Index:     turn.Index,
		UserTurn:  turn.UserTurn,
	}
	if !full && turn.Role == "assistant" {
		if runes := []rune(turn.Content); len(runes) > TruncateLength {
			rt.Content = string(runes[:TruncateLength]) + "..."
			rt.Truncated = true
		}
	}
	return rt
}

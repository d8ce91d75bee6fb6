package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestParseRef(t *testing.T) {
	cases := []struct {
		input string
		want  Ref
	}{
		{"abc123", Ref{ID: "abc123", Kind: RefSession}},
		{"abc123:2", Ref{ID: "abc123", Kind: RefChapter, N: 2}},
		{"abc123@5", Ref{ID: "abc123", Kind: RefTurn, N: 5}},
		{"abc123.17", Ref{ID: "abc123", Kind: RefMessage, N: 17}},
		{"  abc123  ", Ref{ID: "abc123", Kind: RefSession}},
	}
	for _, tc := range cases {
		got, err := ParseRef(tc.input)
		if err != nil {
			t.Errorf("ParseRef(%q) failed: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseRef(%q) = %+v, want %+v", tc.input, got, tc.want)
		}
	}
}

func TestParseRefInvalid(t *testing.T) {
	for _, input := range []string{"", "abc123:", "abc123:0", "abc123:-1", "abc123@x", ":5"} {
		if _, err := ParseRef(input); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("ParseRef(%q) error = %v, want ErrInvalidQuery", input, err)
		}
	}
}

func TestResolveIDPrefix(t *testing.T) {
	files := []SessionFile{
		{ID: "abc123-aaaa"},
		{ID: "abc456-bbbb"},
		{ID: "def789-cccc"},
	}

	// Unique prefix resolves.
	got, err := resolveID("abc1", files)
	if err != nil {
		t.Fatalf("resolveID failed: %v", err)
	}
	if got.ID != "abc123-aaaa" {
		t.Errorf("Resolved %q, want abc123-aaaa", got.ID)
	}

	// Full identifier resolves.
	if got, err := resolveID("def789-cccc", files); err != nil || got.ID != "def789-cccc" {
		t.Errorf("Full id resolution = %v, %v", got.ID, err)
	}

	// Unknown prefix is not found.
	var nf *NotFoundError
	if _, err := resolveID("zzz", files); !errors.As(err, &nf) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
}

func TestResolveIDAmbiguous(t *testing.T) {
	newer := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	older := newer.AddDate(0, 0, -3)
	files := []SessionFile{
		{ID: "abc123-aaaa", ModTime: older},
		{ID: "abc456-bbbb", ModTime: newer},
	}

	_, err := resolveID("abc", files)
	var amb *AmbiguousIdentifierError
	if !errors.As(err, &amb) {
		t.Fatalf("Expected AmbiguousIdentifierError, got %v", err)
	}
	if len(amb.Candidates) != 2 {
		t.Fatalf("Expected 2 candidates, got %v", amb.Candidates)
	}
	// Candidates are newest first and the error never silently picks one.
	if amb.Candidates[0] != "abc456-bbbb" || amb.Candidates[1] != "abc123-aaaa" {
		t.Errorf("Candidate order = %v", amb.Candidates)
	}
}

func TestResolveIDExactBeatsPrefix(t *testing.T) {
	files := []SessionFile{
		{ID: "abc"},
		{ID: "abcdef"},
	}
	got, err := resolveID("abc", files)
	if err != nil {
		t.Fatalf("Exact match must win over prefix ambiguity: %v", err)
	}
	if got.ID != "abc" {
		t.Errorf("Resolved %q, want the exact match", got.ID)
	}
}

// chapteredSession writes a transcript with two completed todo chapters and
// an in-progress tail.
func chapteredSession(t *testing.T, root, project, id string) {
	t.Helper()
	start := time.Date(2026, 8, 12, 9, 0, 0, 0, time.UTC)
	writeTranscript(t, root, project, id,
		userLine(t, "set up the project scaffolding", ts(start)),
		todoWriteLine(t, ts(start.Add(time.Minute)),
			todoItem("Scaffold the repo", "completed"),
			todoItem("Add integration tests", "pending"),
		),
		userLine(t, "now the tests please", ts(start.Add(2*time.Minute))),
		assistantLine(t, ts(start.Add(3*time.Minute)), textBlock("Writing the integration tests now.")),
		todoWriteLine(t, ts(start.Add(4*time.Minute)),
			todoItem("Scaffold the repo", "completed"),
			todoItem("Add integration tests", "completed"),
			todoItem("Polish the docs", "in_progress"),
		),
		userLine(t, "great, docs next", ts(start.Add(5*time.Minute))),
		assistantLine(t, ts(start.Add(6*time.Minute)), textBlock("Starting on the docs.")),
	)
}

func TestOverview(t *testing.T) {
	root := t.TempDir()
	chapteredSession(t, root, "-home-kate-myproj", "sess-overview")
	e := newTestEngine(t, root)

	summary, payload, err := e.Overview(context.Background(), "sess-overview")
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}

	if payload.SessionID != "sess-overview" {
		t.Errorf("SessionID = %q", payload.SessionID)
	}
	if len(payload.Chapters) != 3 {
		t.Fatalf("Expected 3 chapters, got %+v", payload.Chapters)
	}
	if payload.Chapters[0].Title != "Scaffold the repo" {
		t.Errorf("Chapter 1 title = %q", payload.Chapters[0].Title)
	}
	if payload.Chapters[2].Title != "Polish the docs" {
		t.Errorf("Open chapter title = %q", payload.Chapters[2].Title)
	}
	if len(payload.Completed) != 2 || len(payload.InProgress) != 1 {
		t.Errorf("Todo split = %d completed, %d in progress", len(payload.Completed), len(payload.InProgress))
	}

	// The overview never includes transcript text.
	if strings.Contains(summary, "Writing the integration tests") {
		t.Errorf("Overview summary leaked transcript text: %q", summary)
	}
	if !strings.HasPrefix(summary, "Session sess-overview") {
		t.Errorf("Summary = %q", summary)
	}
}

func TestReadChapter(t *testing.T) {
	root := t.TempDir()
	chapteredSession(t, root, "-home-kate-myproj", "sess-read")
	e := newTestEngine(t, root)

	_, payload, err := e.Read(context.Background(), "sess-read:2", false)
	if err != nil {
		t.Fatalf("Read chapter failed: %v", err)
	}
	if payload.Mode != "chapter" || payload.Chapter != 2 {
		t.Errorf("Mode/chapter = %s/%d", payload.Mode, payload.Chapter)
	}
	if payload.ChapterTitle != "Add integration tests" {
		t.Errorf("ChapterTitle = %q", payload.ChapterTitle)
	}
	if len(payload.Messages) == 0 {
		t.Fatalf("Chapter has no messages")
	}

	// Reading every chapter in order walks each turn exactly once.
	seen := make(map[int]int)
	for n := 1; ; n++ {
		_, p, err := e.Read(context.Background(), "sess-read:"+strconv.Itoa(n), false)
		if err != nil {
			var oor *OutOfRangeError
			if !errors.As(err, &oor) {
				t.Fatalf("Read chapter %d failed: %v", n, err)
			}
			break
		}
		for _, msg := range p.Messages {
			seen[msg.Index]++
		}
	}
	if len(seen) != payload.TotalTurns {
		t.Errorf("Chapters covered %d distinct turns, want %d", len(seen), payload.TotalTurns)
	}
	for idx, count := range seen {
		if count != 1 {
			t.Errorf("Turn %d appeared in %d chapters", idx, count)
		}
	}
}

func TestReadTurnWindow(t *testing.T) {
	root := t.TempDir()
	start := time.Date(2026, 8, 12, 9, 0, 0, 0, time.UTC)
	var lines []string
	for i := 1; i <= 6; i++ {
		lines = append(lines,
			userLine(t, "question number "+strconv.Itoa(i), ts(start.Add(time.Duration(i)*time.Minute))),
			assistantLine(t, ts(start.Add(time.Duration(i)*time.Minute+30*time.Second)), textBlock("answer number "+strconv.Itoa(i))),
		)
	}
	writeTranscript(t, root, "proj", "sess-turns", lines...)
	e := newTestEngine(t, root)

	_, payload, err := e.Read(context.Background(), "sess-turns@4", false)
	if err != nil {
		t.Fatalf("Read turn failed: %v", err)
	}
	if payload.Mode != "turn" || payload.Turn != 4 {
		t.Errorf("Mode/turn = %s/%d", payload.Mode, payload.Turn)
	}
	// Window spans user turns 2 through 6.
	for _, msg := range payload.Messages {
		if msg.UserTurn < 2 || msg.UserTurn > 6 {
			t.Errorf("Message at user turn %d escaped the context window", msg.UserTurn)
		}
	}
	found := false
	for _, msg := range payload.Messages {
		if msg.Role == "user" && msg.Content == "question number 4" {
			found = true
		}
	}
	if !found {
		t.Errorf("Addressed turn missing from window")
	}
}

func TestReadMessage(t *testing.T) {
	root := t.TempDir()
	chapteredSession(t, root, "proj", "sess-msg")
	e := newTestEngine(t, root)

	_, payload, err := e.Read(context.Background(), "sess-msg.3", false)
	if err != nil {
		t.Fatalf("Read message failed: %v", err)
	}
	if payload.Mode != "message" || payload.Message != 3 {
		t.Errorf("Mode/message = %s/%d", payload.Mode, payload.Message)
	}
	if len(payload.Messages) != 1 || payload.Messages[0].Index != 3 {
		t.Errorf("Expected exactly message 3, got %+v", payload.Messages)
	}
}

func TestReadOutOfRange(t *testing.T) {
	root := t.TempDir()
	chapteredSession(t, root, "proj", "sess-oor")
	e := newTestEngine(t, root)

	cases := []struct {
		ref  string
		what string
	}{
		{"sess-oor:99", "chapter"},
		{"sess-oor@99", "turn"},
		{"sess-oor.99", "message"},
	}
	for _, tc := range cases {
		_, _, err := e.Read(context.Background(), tc.ref, false)
		var oor *OutOfRangeError
		if !errors.As(err, &oor) {
			t.Errorf("Read(%q) error = %v, want OutOfRangeError", tc.ref, err)
			continue
		}
		if oor.What != tc.what {
			t.Errorf("Read(%q) reported %q out of range, want %q", tc.ref, oor.What, tc.what)
		}
		if oor.Max < 1 {
			t.Errorf("Read(%q) reported max %d", tc.ref, oor.Max)
		}
	}
}

func TestReadTruncation(t *testing.T) {
	root := t.TempDir()
	long := strings.Repeat("the quick brown fox jumps over the lazy dog ", 30)
	writeTranscript(t, root, "proj", "sess-trunc",
		userLine(t, "explain everything", ""),
		assistantLine(t, "", textBlock(long)),
	)
	e := newTestEngine(t, root)

	_, truncated, err := e.Read(context.Background(), "sess-trunc.2", false)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	_, full, err := e.Read(context.Background(), "sess-trunc.2", true)
	if err != nil {
		t.Fatalf("Read full failed: %v", err)
	}

	short := truncated.Messages[0]
	if !short.Truncated {
		t.Errorf("Long assistant message not marked truncated")
	}
	if len([]rune(short.Content)) > TruncateLength+3 {
		t.Errorf("Truncated content too long: %d runes", len([]rune(short.Content)))
	}

	entire := full.Messages[0]
	if entire.Truncated {
		t.Errorf("Full read must not truncate")
	}
	if entire.Content != long {
		t.Errorf("Full content differs from stored text")
	}
	// Both renderings derive from the same stored text.
	if !strings.HasPrefix(entire.Content, strings.TrimSuffix(short.Content, "...")) {
		t.Errorf("Truncated content is not a prefix of the full content")
	}
}

func TestReadUserContentNeverTruncated(t *testing.T) {
	root := t.TempDir()
	long := strings.Repeat("user text ", 100)
	writeTranscript(t, root, "proj", "sess-user",
		userLine(t, long, ""),
	)
	e := newTestEngine(t, root)

	_, payload, err := e.Read(context.Background(), "sess-user.1", false)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if payload.Messages[0].Truncated || payload.Messages[0].Content != long {
		t.Errorf("User content must be rendered whole")
	}
}

func TestReadSessionBounded(t *testing.T) {
	root := t.TempDir()
	start := time.Date(2026, 8, 12, 9, 0, 0, 0, time.UTC)
	var lines []string
	for i := 0; i < DefaultMessageLimit; i++ {
		lines = append(lines,
			userLine(t, "q "+strconv.Itoa(i), ts(start)),
			assistantLine(t, ts(start), textBlock("a "+strconv.Itoa(i))),
		)
	}
	writeTranscript(t, root, "proj", "sess-long", lines...)
	e := newTestEngine(t, root)

	_, payload, err := e.Read(context.Background(), "sess-long", false)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(payload.Messages) != DefaultMessageLimit {
		t.Errorf("Bounded read returned %d messages, want %d", len(payload.Messages), DefaultMessageLimit)
	}
	if payload.TotalTurns != 2*DefaultMessageLimit {
		t.Errorf("TotalTurns = %d", payload.TotalTurns)
	}

	_, payload, err = e.Read(context.Background(), "sess-long", true)
	if err != nil {
		t.Fatalf("Full read failed: %v", err)
	}
	if len(payload.Messages) != 2*DefaultMessageLimit {
		t.Errorf("Full read returned %d messages", len(payload.Messages))
	}
}

func TestReadAmbiguousPrefix(t *testing.T) {
	root := t.TempDir()
	chapteredSession(t, root, "proj", "abc123-first")
	chapteredSession(t, root, "proj", "abc456-second")
	base := time.Date(2026, 8, 12, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"abc123-first", "abc456-second"} {
		mt := base.AddDate(0, 0, i)
		if err := os.Chtimes(root+"/proj/"+id+".jsonl", mt, mt); err != nil {
			t.Fatal(err)
		}
	}
	e := newTestEngine(t, root)

	_, _, err := e.Read(context.Background(), "abc", false)
	var amb *AmbiguousIdentifierError
	if !errors.As(err, &amb) {
		t.Fatalf("Expected AmbiguousIdentifierError, got %v", err)
	}
	if len(amb.Candidates) != 2 {
		t.Errorf("Candidates = %v", amb.Candidates)
	}

	// The longer prefix resolves and reads normally.
	_, payload, err := e.Read(context.Background(), "abc1", false)
	if err != nil {
		t.Fatalf("Unique prefix read failed: %v", err)
	}
	if payload.SessionID != "abc123-first" {
		t.Errorf("Resolved %q", payload.SessionID)
	}
}

func TestReadNotFound(t *testing.T) {
	root := t.TempDir()
	chapteredSession(t, root, "proj", "sess-x")
	e := newTestEngine(t, root)

	var nf *NotFoundError
	if _, _, err := e.Read(context.Background(), "nope", false); !errors.As(err, &nf) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
}

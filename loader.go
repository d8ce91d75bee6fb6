package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// SessionFile is the on-disk identity of one session record: enough to
// resolve identifiers and check index freshness without parsing the
// transcript.
type SessionFile struct {
	ID      string
	Project string
	Path    string
	ModTime time.Time
	Size    int64
}

// Fingerprint identifies the content state of the record. Index cache
// entries are invalidated when it changes.
func (f SessionFile) Fingerprint() string {
	return fmt.Sprintf("%d-%d", f.ModTime.UnixNano(), f.Size)
}

// Store reads session transcripts from a read-only store root laid out as
// one directory per project containing one JSONL file per session.
type Store struct {
	root   string
	logger *log.Logger
	cache  *lru.Cache[string, *Session]
}

// NewStore creates a Store over the given root directory.
func NewStore(root string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	cache, _ := lru.New[string, *Session](TranscriptCacheSize)
	return &Store{root: root, logger: logger, cache: cache}
}

// Scan lists every session record in the store, newest first. Re-scanning
// re-reads from source, so new sessions appear on the next call. Fails only
// if the store root itself is unreadable; unreadable project directories
// are skipped with a warning.
func (s *Store) Scan(ctx context.Context) ([]SessionFile, error) {
	dirs, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.root, ErrStoreUnavailable)
	}

	var files []SessionFile
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		projectDir := filepath.Join(s.root, dir.Name())
		entries, err := os.ReadDir(projectDir)
		if err != nil {
			s.logger.Printf("Warning: skipping unreadable project dir %s: %v", projectDir, err)
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				s.logger.Printf("Warning: skipping %s: %v", entry.Name(), err)
				continue
			}
			files = append(files, SessionFile{
				ID:      strings.TrimSuffix(entry.Name(), ".jsonl"),
				Project: dir.Name(),
				Path:    filepath.Join(projectDir, entry.Name()),
				ModTime: info.ModTime(),
				Size:    info.Size(),
			})
		}
	}

	// Newest first; identifier order breaks exact timestamp ties so the
	// listing is deterministic.
	sort.Slice(files, func(i, j int) bool {
		if !files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ModTime.After(files[j].ModTime)
		}
		return files[i].ID < files[j].ID
	})

	return files, nil
}

// Projects lists the project labels present in the store.
func (s *Store) Projects() ([]string, error) {
	dirs, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.root, ErrStoreUnavailable)
	}
	var projects []string
	for _, dir := range dirs {
		if dir.IsDir() {
			projects = append(projects, dir.Name())
		}
	}
	sort.Strings(projects)
	return projects, nil
}

// Load parses the full transcript for one session record. Parsed sessions
// are held in a bounded LRU keyed by id and content fingerprint, so repeat
// reads of the same unchanged session skip the parse.
func (s *Store) Load(file SessionFile) (*Session, error) {
	key := file.ID + "@" + file.Fingerprint()
	if sess, ok := s.cache.Get(key); ok {
		return sess, nil
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session %s: %w", file.ID, err)
	}
	defer f.Close()

	sess, err := parseSession(f, file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", file.ID, err)
	}

	s.cache.Add(key, sess)
	return sess, nil
}

// LoadAll parses the given records concurrently and returns the sessions
// that parsed cleanly, keyed by id. Corrupt records are skipped with a
// warning; one bad file must not abort the rest. All parsing completes
// before the map is returned.
func (s *Store) LoadAll(ctx context.Context, files []SessionFile) map[string]*Session {
	var mu sync.Mutex
	sessions := make(map[string]*Session, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ScanConcurrency)

	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sess, err := s.Load(file)
			if err != nil {
				s.logger.Printf("Warning: %v", err)
				return nil
			}
			mu.Lock()
			sessions[file.ID] = sess
			mu.Unlock()
			return nil
		})
	}

	// Barrier: ordering decisions happen only after every record is in.
	_ = g.Wait()
	return sessions
}

// --- Transcript parsing ---

// transcriptLine is the top-level structure of a transcript JSONL line.
type transcriptLine struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Message   *messagePayload `json:"message,omitempty"`
	Todos     []rawTodo       `json:"todos,omitempty"` // OpenCode-style inline todos
}

// messagePayload is the message field within a transcript line. Content is
// either a plain string or a list of content blocks.
type messagePayload struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentBlock represents a content block within a message.
type contentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

// rawTodo covers both the TodoWrite shape (content/status) and the newer
// Task shape (subject/description/status).
type rawTodo struct {
	ID          string `json:"id,omitempty"`
	Content     string `json:"content,omitempty"`
	Status      string `json:"status,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Description string `json:"description,omitempty"`
}

var commandNameRe = regexp.MustCompile(`<command-name>([^<]+)</command-name>`)

// isLocalCommandNoise reports whether user content is host-generated
// boilerplate that should be dropped entirely.
func isLocalCommandNoise(content string) bool {
	return strings.HasPrefix(content, "Caveat: The messages below were generated")
}

// cleanLocalCommand collapses local-command XML into a readable marker.
func cleanLocalCommand(content string) string {
	if m := commandNameRe.FindStringSubmatch(content); m != nil {
		return "[" + m[1] + "]"
	}
	if strings.Contains(content, "<local-command-stdout>") {
		return "[command output]"
	}
	return content
}

// normalizeTodo converts either todo shape to the unified Todo record.
func normalizeTodo(r rawTodo) Todo {
	status := r.Status
	if status == "" {
		status = "pending"
	}
	text := r.Content
	if text == "" {
		text = r.Subject
		if r.Description != "" {
			desc := r.Description
			if len(desc) > 100 {
				desc = desc[:100] + "..."
			}
			text = r.Subject + ": " + desc
		}
	}
	return Todo{Text: text, Status: status}
}

// toolDetail extracts the key argument of a tool call for display.
func toolDetail(name string, input map[string]any) string {
	str := func(key string) string {
		v, _ := input[key].(string)
		return v
	}
	switch name {
	case "Read", "Write", "Edit":
		return filepath.Base(str("file_path"))
	case "Bash":
		cmd := str("command")
		if len(cmd) > 50 {
			return cmd[:50] + "..."
		}
		return cmd
	case "Grep", "Glob":
		return str("pattern")
	case "WebFetch":
		url := str("url")
		if i := strings.Index(url, "://"); i >= 0 {
			url = url[i+3:]
		}
		if i := strings.Index(url, "/"); i >= 0 {
			url = url[:i]
		}
		return url
	case "Task":
		return str("description")
	case "TodoWrite":
		if todos, ok := input["todos"].([]any); ok {
			return fmt.Sprintf("%d items", len(todos))
		}
	}
	return ""
}

// taskState tracks TaskCreate/TaskUpdate todos by id so updates can be
// applied to the running list.
type taskState struct {
	ids   []string
	todos map[string]Todo
}

func (t *taskState) snapshot() []Todo {
	out := make([]Todo, 0, len(t.ids))
	for _, id := range t.ids {
		out = append(out, t.todos[id])
	}
	return out
}

// parseSession reads a JSONL transcript into the in-memory session model.
// Malformed lines are skipped without error; only a read failure on the
// stream itself is fatal for the record.
func parseSession(r io.Reader, file SessionFile) (*Session, error) {
	sess := &Session{
		ID:        file.ID,
		Project:   file.Project,
		Path:      file.Path,
		CreatedAt: file.ModTime,
	}

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, MaxLineSize)

	tasks := &taskState{todos: make(map[string]Todo)}
	haveTimestamp := false
	userTurn := 0

	appendTurn := func(role, content, ts string) {
		sess.Turns = append(sess.Turns, Turn{
			Role:      role,
			Content:   content,
			Timestamp: ts,
			Index:     len(sess.Turns) + 1,
			UserTurn:  userTurn,
		})
	}
	// snapshotAt binds the flat turn index a snapshot belongs to. Snapshots
	// raised while an assistant turn is still being assembled must point at
	// that turn, not the last appended one.
	snapshotAt := func(index int) func([]Todo) {
		return func(todos []Todo) {
			sess.Snapshots = append(sess.Snapshots, TodoSnapshot{
				Index: index,
				Todos: todos,
			})
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var tl transcriptLine
		if err := json.Unmarshal([]byte(line), &tl); err != nil {
			continue
		}

		if tl.Timestamp != "" && !haveTimestamp {
			if ts, err := time.Parse(time.RFC3339, tl.Timestamp); err == nil {
				sess.CreatedAt = ts
				haveTimestamp = true
			}
		}

		switch tl.Type {
		case "user":
			if tl.Message == nil {
				continue
			}
			content := extractText(tl.Message.Content)
			if content == "" || isLocalCommandNoise(content) {
				continue
			}
			userTurn++
			appendTurn("user", cleanLocalCommand(content), tl.Timestamp)
			if len(tl.Todos) > 0 {
				todos := make([]Todo, 0, len(tl.Todos))
				for _, r := range tl.Todos {
					todos = append(todos, normalizeTodo(r))
				}
				snapshotAt(len(sess.Turns))(todos)
			}

		case "assistant":
			if tl.Message == nil {
				continue
			}
			var parts []string
			for _, block := range decodeBlocks(tl.Message.Content) {
				switch block.Type {
				case "text":
					if block.Text != "" {
						parts = append(parts, block.Text)
					}
				case "tool_use":
					turnIdx := len(sess.Turns) + 1
					applyToolUse(sess, tasks, block, turnIdx, snapshotAt(turnIdx))
					if detail := toolDetail(block.Name, block.Input); detail != "" {
						parts = append(parts, "["+block.Name+": "+detail+"]")
					} else {
						parts = append(parts, "["+block.Name+"]")
					}
				}
			}
			appendTurn("assistant", strings.Join(parts, "\n"), tl.Timestamp)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(sess.Snapshots) > 0 {
		sess.Todos = sess.Snapshots[len(sess.Snapshots)-1].Todos
	}

	return sess, nil
}

// applyToolUse folds one tool_use block into the session's activity
// records: file touches, command runs, and todo snapshots.
func applyToolUse(sess *Session, tasks *taskState, block contentBlock, turnIdx int, recordSnapshot func([]Todo)) {
	str := func(key string) string {
		v, _ := block.Input[key].(string)
		return v
	}

	switch block.Name {
	case "Read", "Write", "Edit":
		if path := str("file_path"); path != "" {
			sess.Files = append(sess.Files, FileTouch{
				Path:  path,
				Op:    strings.ToLower(block.Name),
				Index: turnIdx,
			})
		}

	case "Bash":
		if cmd := str("command"); cmd != "" {
			sess.Commands = append(sess.Commands, CommandRun{Command: cmd, Index: turnIdx})
		}

	case "TodoWrite":
		raw, ok := block.Input["todos"].([]any)
		if !ok {
			return
		}
		todos := make([]Todo, 0, len(raw))
		tasks.ids = tasks.ids[:0]
		for i, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			todo := normalizeTodo(rawTodoFromMap(m))
			todos = append(todos, todo)
			id, _ := m["id"].(string)
			if id == "" {
				id = fmt.Sprintf("%d", i+1)
			}
			tasks.ids = append(tasks.ids, id)
			tasks.todos[id] = todo
		}
		recordSnapshot(todos)

	case "TaskCreate":
		todo := normalizeTodo(rawTodoFromMap(block.Input))
		id := str("id")
		if id == "" {
			id = fmt.Sprintf("%d", len(tasks.ids)+1)
		}
		tasks.ids = append(tasks.ids, id)
		tasks.todos[id] = todo
		recordSnapshot(tasks.snapshot())

	case "TaskUpdate":
		id := str("taskId")
		status := str("status")
		if id == "" || status == "" {
			return
		}
		if todo, ok := tasks.todos[id]; ok {
			todo.Status = status
			tasks.todos[id] = todo
			recordSnapshot(tasks.snapshot())
		}
	}
}

// rawTodoFromMap decodes a todo from untyped tool input.
func rawTodoFromMap(m map[string]any) rawTodo {
	str := func(key string) string {
		v, _ := m[key].(string)
		return v
	}
	return rawTodo{
		ID:          str("id"),
		Content:     str("content"),
		Status:      str("status"),
		Subject:     str("subject"),
		Description: str("description"),
	}
}

// extractText pulls plain text out of a message content field, which is
// either a bare string or a list of content blocks.
func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []string
	for _, block := range decodeBlocks(raw) {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, " ")
}

// decodeBlocks decodes a content-block list, tolerating malformed entries.
func decodeBlocks(raw json.RawMessage) []contentBlock {
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}
	return blocks
}

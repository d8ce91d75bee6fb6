package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// NoteStore persists breadcrumb notes as one JSON object per line in an
// append-only file. Appends go through a single O_APPEND write-and-flush,
// so a cancelled run never leaves a half-written note and concurrent
// appends from two invocations cannot interleave bytes.
type NoteStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewNoteStore creates a NoteStore backed by the given file path.
func NewNoteStore(path string) *NoteStore {
	return &NoteStore{path: path, now: time.Now}
}

// Append records a note against a session and returns the session's total
// note count. A failed append always surfaces as an error.
func (n *NoteStore) Append(sessionID, text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("%w: note text cannot be empty", ErrInvalidQuery)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(n.path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create notes directory: %w", err)
	}

	data, err := json.Marshal(Note{
		SessionID: sessionID,
		Text:      text,
		CreatedAt: n.now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal note: %w", err)
	}

	f, err := os.OpenFile(n.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open notes file: %w", err)
	}

	// One write per note line: O_APPEND keeps the write position-independent
	// across concurrent invocations.
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to append note: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to flush note: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close notes file: %w", err)
	}

	notes, err := n.forLocked(sessionID)
	if err != nil {
		return 0, err
	}
	return len(notes), nil
}

// All returns every note grouped by session, in append order.
func (n *NoteStore) All() (map[string][]Note, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.allLocked()
}

// For returns the notes appended to one session, in append order.
func (n *NoteStore) For(sessionID string) ([]Note, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.forLocked(sessionID)
}

func (n *NoteStore) forLocked(sessionID string) ([]Note, error) {
	all, err := n.allLocked()
	if err != nil {
		return nil, err
	}
	return all[sessionID], nil
}

func (n *NoteStore) allLocked() (map[string][]Note, error) {
	notes := make(map[string][]Note)

	f, err := os.Open(n.path)
	if err != nil {
		if os.IsNotExist(err) {
			return notes, nil
		}
		return nil, fmt.Errorf("failed to open notes file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var note Note
		if err := json.Unmarshal([]byte(line), &note); err != nil {
			// A torn trailing line from a crashed writer is not fatal.
			continue
		}
		notes[note.SessionID] = append(notes[note.SessionID], note)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read notes file: %w", err)
	}

	return notes, nil
}

// noteTexts flattens notes to their text content.
func noteTexts(notes []Note) []string {
	out := make([]string, 0, len(notes))
	for _, note := range notes {
		out = append(out, note.Text)
	}
	return out
}

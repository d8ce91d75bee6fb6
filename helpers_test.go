package main

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Helper to write one session transcript into a store root.
func writeTranscript(t *testing.T, root, project, id string, lines ...string) string {
	t.Helper()
	dir := filepath.Join(root, project)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create project dir: %v", err)
	}
	path := filepath.Join(dir, id+".jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("Failed to write transcript: %v", err)
	}
	return path
}

func jsonLine(t *testing.T, v map[string]any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal test line: %v", err)
	}
	return string(data)
}

// userLine builds a user transcript line with plain string content.
func userLine(t *testing.T, text, ts string) string {
	t.Helper()
	return jsonLine(t, map[string]any{
		"type":      "user",
		"timestamp": ts,
		"message":   map[string]any{"role": "user", "content": text},
	})
}

// assistantLine builds an assistant transcript line from content blocks.
func assistantLine(t *testing.T, ts string, blocks ...map[string]any) string {
	t.Helper()
	return jsonLine(t, map[string]any{
		"type":      "assistant",
		"timestamp": ts,
		"message":   map[string]any{"role": "assistant", "content": blocks},
	})
}

func textBlock(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

func toolUse(name string, input map[string]any) map[string]any {
	return map[string]any{"type": "tool_use", "name": name, "input": input}
}

func todoItem(content, status string) map[string]any {
	return map[string]any{"content": content, "status": status}
}

// todoWriteLine builds an assistant line carrying one TodoWrite call.
func todoWriteLine(t *testing.T, ts string, todos ...map[string]any) string {
	t.Helper()
	return assistantLine(t, ts, toolUse("TodoWrite", map[string]any{"todos": todos}))
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// newTestEngine builds an Engine over a store root with a fresh note store
// and no persistent index cache.
func newTestEngine(t *testing.T, root string) *Engine {
	t.Helper()
	store := NewStore(root, discardLogger())
	notes := NewNoteStore(filepath.Join(t.TempDir(), "notes.jsonl"))
	return NewEngine(store, notes, nil, DefaultWeights, discardLogger())
}

// ts formats a timestamp for transcript lines.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

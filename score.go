package main

import (
	"sort"
	"time"
)

// TermMatch records the highest-priority category a query term was found in.
type TermMatch struct {
	Term     string   `json:"term"`
	Category Category `json:"category"`
}

// Relevance is the scoring outcome for one session against one query.
// Breadth (distinct terms matched) is the primary ranking key; the weighted
// signal sum plus the bounded recency boost breaks ties within equal
// breadth. A Relevance with zero breadth means the session is not a result.
type Relevance struct {
	Breadth int
	Signal  int
	Recency int
	Matches []TermMatch
}

// Score is the displayed relevance value.
func (r Relevance) Score() int {
	return r.Signal + r.Recency
}

// Categories returns the distinct matched categories in priority order.
func (r Relevance) Categories() []Category {
	seen := make(map[Category]struct{})
	for _, m := range r.Matches {
		seen[m.Category] = struct{}{}
	}
	var out []Category
	for _, cat := range categoryPriority {
		if _, ok := seen[cat]; ok {
			out = append(out, cat)
		}
	}
	return out
}

// weightOf maps a category to its configured weight.
func (w CategoryWeights) weightOf(cat Category) int {
	switch cat {
	case CategoryTodos:
		return w.Todos
	case CategoryNotes:
		return w.Notes
	case CategoryFiles:
		return w.Files
	case CategoryCommands:
		return w.Commands
	default:
		return w.Text
	}
}

// Scorer computes relevance scores from session indexes. The clock is
// injectable so recency behavior is testable.
type Scorer struct {
	weights CategoryWeights
	now     func() time.Time
}

// NewScorer creates a Scorer with the given weights.
func NewScorer(weights CategoryWeights) *Scorer {
	return &Scorer{weights: weights, now: time.Now}
}

// hasToken reports membership in a sorted token slice.
func hasToken(sorted []string, tok string) bool {
	i := sort.SearchStrings(sorted, tok)
	return i < len(sorted) && sorted[i] == tok
}

// ScoreSession scores one session index against a query's distinct terms,
// tokenized identically to the index. Each term is credited to the
// highest-priority category containing it; terms matching nowhere
// contribute nothing, and a session matching no terms scores zero.
// noteTokens carries the session's note tokens, which live outside the
// cached index.
func (s *Scorer) ScoreSession(idx *SessionIndex, noteTokens []string, terms []string) Relevance {
	var rel Relevance

	for _, term := range terms {
		cat, ok := s.matchCategory(idx, noteTokens, term)
		if !ok {
			continue
		}
		rel.Breadth++
		rel.Signal += s.weights.weightOf(cat)
		rel.Matches = append(rel.Matches, TermMatch{Term: term, Category: cat})
	}

	if rel.Breadth > 0 {
		rel.Recency = recencyBoost(idx.Timestamp, s.now())
	}

	return rel
}

// matchCategory finds the highest-priority category containing the term.
func (s *Scorer) matchCategory(idx *SessionIndex, noteTokens []string, term string) (Category, bool) {
	for _, cat := range categoryPriority {
		var tokens []string
		if cat == CategoryNotes {
			tokens = noteTokens
		} else {
			tokens = idx.Tokens[cat]
		}
		if hasToken(tokens, term) {
			return cat, true
		}
	}
	return "", false
}

// recencyBoost is a small additive bonus for fresh sessions: today +2, past
// week +1, older 0. Monotonically non-increasing with age, and strictly
// smaller than any category weight so it can only break ties between
// sessions of equal signal.
func recencyBoost(ts time.Time, now time.Time) int {
	if ts.IsZero() {
		return 0
	}
	age := now.Sub(ts)
	switch {
	case age < 24*time.Hour:
		return RecencyBoostToday
	case age < 7*24*time.Hour:
		return RecencyBoostWeek
	default:
		return 0
	}
}

// rankedResult pairs an index with its relevance for sorting.
type rankedResult struct {
	idx *SessionIndex
	rel Relevance
}

// moreRelevant is the total ranking order: breadth first, then weighted
// signal with recency, then newest session, then identifier. Deterministic
// and stable across runs.
func moreRelevant(a, b rankedResult) bool {
	if a.rel.Breadth != b.rel.Breadth {
		return a.rel.Breadth > b.rel.Breadth
	}
	if a.rel.Score() != b.rel.Score() {
		return a.rel.Score() > b.rel.Score()
	}
	if !a.idx.Timestamp.Equal(b.idx.Timestamp) {
		return a.idx.Timestamp.After(b.idx.Timestamp)
	}
	return a.idx.SessionID < b.idx.SessionID
}

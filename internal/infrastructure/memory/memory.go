// Package memory holds in-process collaborators used by tests and dry runs.
package memory

import (
	"context"
	"sync"

	"ImpactWatcher/internal/domain"
	"ImpactWatcher/internal/ports"
)

// FetchResult is one scripted answer of Source.
type FetchResult struct {
	Posts []domain.Post
	Err   error
}

// Source replays scripted fetch results; once exhausted it repeats the last one.
type Source struct {
	mu      sync.Mutex
	results []FetchResult
	calls   []domain.Cursor
}

var _ ports.PostSource = (*Source)(nil)

// NewSource scripts the given results in order.
func NewSource(results ...FetchResult) *Source {
	return &Source{results: results}
}

// FetchSince records the cursor and returns the next scripted result.
func (s *Source) FetchSince(_ context.Context, since domain.Cursor) ([]domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, since)
	if len(s.results) == 0 {
		return nil, nil
	}
	next := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return append([]domain.Post(nil), next.Posts...), next.Err
}

// Calls returns the cursors FetchSince was called with.
func (s *Source) Calls() []domain.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Cursor(nil), s.calls...)
}

// Classifier answers from a table keyed by text; unknown text is neutral.
type Classifier struct {
	mu      sync.Mutex
	verdict map[string]domain.Classification
	seen    []string
}

var _ ports.Classifier = (*Classifier)(nil)

// NewClassifier copies verdicts.
func NewClassifier(verdicts map[string]domain.Classification) *Classifier {
	c := &Classifier{verdict: make(map[string]domain.Classification, len(verdicts))}
	for k, v := range verdicts {
		c.verdict[k] = v
	}
	return c
}

// Classify looks text up in the table.
func (c *Classifier) Classify(_ context.Context, text string) domain.Classification {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seen = append(c.seen, text)
	if v, ok := c.verdict[text]; ok {
		return v
	}
	return domain.NeutralClassification()
}

// Seen returns every classified text in call order.
func (c *Classifier) Seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seen...)
}

// Sender records alerts and optionally fails every send.
type Sender struct {
	mu   sync.Mutex
	sent []domain.Alert
	Err  error
}

var _ ports.AlertSender = (*Sender)(nil)

// Send records the alert, then returns Err.
func (s *Sender) Send(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, alert)
	return s.Err
}

// Sent returns recorded alerts.
func (s *Sender) Sent() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Alert(nil), s.sent...)
}

// CursorStore keeps the cursor in memory with injectable failures.
type CursorStore struct {
	mu      sync.Mutex
	value   domain.Cursor
	saves   []domain.Cursor
	LoadErr error
	SaveErr error
}

var _ ports.CursorStore = (*CursorStore)(nil)

// NewCursorStore starts from initial.
func NewCursorStore(initial domain.Cursor) *CursorStore {
	return &CursorStore{value: initial}
}

// Load returns the stored value or LoadErr.
func (s *CursorStore) Load(context.Context) (domain.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return "", s.LoadErr
	}
	return s.value, nil
}

// Save records every attempt; empty cursors are ignored like the durable stores do.
func (s *CursorStore) Save(_ context.Context, cursor domain.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cursor.IsZero() {
		return nil
	}
	s.saves = append(s.saves, cursor)
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.value = cursor
	return nil
}

// Value returns the last successfully saved cursor.
func (s *CursorStore) Value() domain.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Saves returns every attempted save.
func (s *CursorStore) Saves() []domain.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Cursor(nil), s.saves...)
}

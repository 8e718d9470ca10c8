package domain

import (
	"strings"
	"time"
)

// Post is a single status published by the watched account.
type Post struct {
	ID        string
	Content   string // raw HTML as served upstream
	Text      string // plain text extracted from Content
	Author    string
	URL       string
	CreatedAt time.Time
}

// HasText reports whether the post carries anything a classifier can read.
func (p Post) HasText() bool {
	return strings.TrimSpace(p.Text) != ""
}

// Body returns the payload handed to the classifier.
func (p Post) Body() string {
	if strings.TrimSpace(p.Content) != "" {
		return p.Content
	}
	return p.Text
}

// Direction is the expected market move implied by a post.
type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
	DirectionNeutral  Direction = "neutral"
)

// ParseDirection normalizes a backend label; unknown labels are rejected.
func ParseDirection(raw string) (Direction, bool) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(raw))); d {
	case DirectionPositive, DirectionNegative, DirectionNeutral:
		return d, true
	default:
		return DirectionNeutral, false
	}
}

// Classification is the classifier verdict for one post.
type Classification struct {
	Direction   Direction
	Significant bool
	Rationale   string
}

// NeutralClassification is returned whenever the backend answer cannot be trusted.
func NeutralClassification() Classification {
	return Classification{Direction: DirectionNeutral}
}

// Alertable is true only for significant, directional verdicts.
func (c Classification) Alertable() bool {
	if !c.Significant {
		return false
	}
	return c.Direction == DirectionPositive || c.Direction == DirectionNegative
}

// Alert is the message pushed to the outbound channel.
type Alert struct {
	PostID   string
	Title    string
	Body     string
	Priority string
	Tags     []string
}

package usecase

import (
	"fmt"
	"strings"
	"time"

	"ImpactWatcher/internal/domain"
)

const (
	snippetRunes   = 200
	alertPriority  = "high"
	timestampStyle = "2006-01-02 15:04:05 MST"
)

// BuildAlert formats a qualifying post for the outbound channel.
// Timestamps are rendered in loc.
func BuildAlert(post domain.Post, cls domain.Classification, loc *time.Location) domain.Alert {
	impact, emoji, trend := "NEGATIVE", "📉", "chart_with_downwards_trend"
	if cls.Direction == domain.DirectionPositive {
		impact, emoji, trend = "POSITIVE", "📈", "chart_with_upwards_trend"
	}
	title := fmt.Sprintf("SIGNIFICANT %s IMPACT %s", impact, emoji)

	author := post.Author
	if author == "" {
		author = "unknown"
	}

	stamp := "unknown time"
	if !post.CreatedAt.IsZero() {
		if loc == nil {
			loc = time.UTC
		}
		stamp = post.CreatedAt.In(loc).Format(timestampStyle)
	}

	content := post.Text
	if strings.TrimSpace(content) == "" {
		content = post.Content
	}

	var body strings.Builder
	fmt.Fprintf(&body, "🚨 %s\n", title)
	fmt.Fprintf(&body, "User: @%s\n", author)
	fmt.Fprintf(&body, "Timestamp: %s\n", stamp)
	fmt.Fprintf(&body, "Content: %s\n\n", snippet(content, snippetRunes))
	fmt.Fprintf(&body, "Reasoning: %s", cls.Rationale)
	if post.URL != "" {
		fmt.Fprintf(&body, "\n%s", post.URL)
	}

	return domain.Alert{
		PostID:   post.ID,
		Title:    title,
		Body:     body.String(),
		Priority: alertPriority,
		Tags:     []string{trend, string(cls.Direction)},
	}
}

func snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

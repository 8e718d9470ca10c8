package ports

import (
	"context"
	"time"

	"ImpactWatcher/internal/domain"
)

// PostSource pulls posts of the watched account newer than the cursor.
type PostSource interface {
	FetchSince(ctx context.Context, since domain.Cursor) ([]domain.Post, error)
}

// ClassifierBackend sends an instruction plus post text to a model and returns its raw answer.
type ClassifierBackend interface {
	Complete(ctx context.Context, instruction, text string) (string, error)
}

// Classifier turns post text into a verdict. Implementations never fail.
type Classifier interface {
	Classify(ctx context.Context, text string) domain.Classification
}

// AlertSender delivers an alert to Telegram, ntfy or other channels.
type AlertSender interface {
	Send(ctx context.Context, alert domain.Alert) error
}

// CursorStore persists the newest processed post identifier.
type CursorStore interface {
	Load(ctx context.Context) (domain.Cursor, error)
	Save(ctx context.Context, cursor domain.Cursor) error
}

// Scheduler decides when passes may run.
type Scheduler interface {
	IsActive(now time.Time) bool
	NextWait(now time.Time) time.Duration
}

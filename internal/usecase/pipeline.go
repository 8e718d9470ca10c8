package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ImpactWatcher/internal/domain"
	"ImpactWatcher/internal/logging"
	"ImpactWatcher/internal/monitoring"
	"ImpactWatcher/internal/ports"
)

// PipelineDeps wires all driven adapters into the polling pass.
type PipelineDeps struct {
	Source     ports.PostSource
	Classifier ports.Classifier
	Sender     ports.AlertSender
	Store      ports.CursorStore
	Location   *time.Location
	Metrics    *monitoring.Collector
	Logger     *slog.Logger
	Now        func() time.Time
	NewPassID  func() string
}

// Pipeline implements one fetch, classify, alert and persist pass.
type Pipeline struct {
	source     ports.PostSource
	classifier ports.Classifier
	sender     ports.AlertSender
	store      ports.CursorStore
	location   *time.Location
	metrics    *monitoring.Collector
	logger     *slog.Logger
	now        func() time.Time
	newPassID  func() string
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	var errs []error
	if deps.Source == nil {
		errs = append(errs, errors.New("pipeline: source is required"))
	}
	if deps.Classifier == nil {
		errs = append(errs, errors.New("pipeline: classifier is required"))
	}
	if deps.Sender == nil {
		errs = append(errs, errors.New("pipeline: alert sender is required"))
	}
	if deps.Store == nil {
		errs = append(errs, errors.New("pipeline: cursor store is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	p := &Pipeline{
		source:     deps.Source,
		classifier: deps.Classifier,
		sender:     deps.Sender,
		store:      deps.Store,
		location:   deps.Location,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Now,
		newPassID:  deps.NewPassID,
	}
	if p.location == nil {
		p.location = time.UTC
	}
	if p.logger == nil {
		p.logger = logging.Discard()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newPassID == nil {
		p.newPassID = func() string { return uuid.NewString() }
	}
	return p, nil
}

// RunPass processes every post newer than cursor and returns the new cursor.
// The result is never lower than cursor; a fetch failure returns cursor unchanged.
func (p *Pipeline) RunPass(ctx context.Context, cursor domain.Cursor) domain.Cursor {
	logger := p.logger.With("pass_id", p.newPassID())
	started := p.now()
	logger.Info("pass started", "cursor", cursor.String())

	posts, err := p.source.FetchSince(ctx, cursor)
	if err != nil {
		logger.Error("fetch failed, cursor unchanged", "cursor", cursor.String(), "error", err)
		p.metrics.PassFinished(monitoring.PassFetchError, started, p.now())
		return cursor
	}

	highest := cursor
	alerts := 0
	for _, post := range posts {
		if !cursor.Admits(post.ID) {
			logger.Warn("skipping already processed post", "post_id", post.ID, "cursor", cursor.String())
			p.metrics.Post(monitoring.PostSkippedSeen)
			continue
		}

		if p.process(ctx, logger, post) {
			alerts++
		}
		highest = highest.Advance(post.ID)
	}

	if highest != cursor {
		err := p.store.Save(ctx, highest)
		p.metrics.CursorWrite(err)
		if err != nil {
			logger.Error("persist cursor failed", "cursor", highest.String(), "error", err)
		} else {
			logger.Info("cursor advanced", "from", cursor.String(), "to", highest.String())
		}
	}

	finished := p.now()
	p.metrics.PassFinished(monitoring.PassCompleted, started, finished)
	logger.Info("pass finished",
		"fetched", len(posts),
		"alerts", alerts,
		"cursor", highest.String(),
		"duration", finished.Sub(started),
	)
	return highest
}

// process classifies one post and alerts when it qualifies. It reports whether an alert was sent.
func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, post domain.Post) bool {
	logger = logger.With("post_id", post.ID)

	if !post.HasText() {
		logger.Info("skipping post without text")
		p.metrics.Post(monitoring.PostSkippedEmpty)
		return false
	}

	cls := p.classifier.Classify(ctx, post.Body())
	if !cls.Alertable() {
		logger.Info("post not alertable", "direction", cls.Direction, "significant", cls.Significant)
		p.metrics.Post(monitoring.PostNotAlertable)
		return false
	}

	alert := BuildAlert(post, cls, p.location)
	logger.Warn("significant market impact detected",
		"direction", cls.Direction,
		"author", post.Author,
		"reasoning", cls.Rationale,
	)

	err := p.sender.Send(ctx, alert)
	p.metrics.Alert(string(cls.Direction), err)
	if err != nil {
		p.metrics.Post(monitoring.PostAlertFailed)
		logger.Error("alert delivery failed", "error", err)
		return false
	}
	p.metrics.Post(monitoring.PostAlerted)
	logger.Info("alert sent", "title", alert.Title)
	return true
}

package outbox

import (
	"context"
	"time"

	"github.com/robertarktes/stadium-tickets/internal/adapters/crdb"
	"github.com/robertarktes/stadium-tickets/internal/adapters/rabbit"
	"github.com/robertarktes/stadium-tickets/internal/observability"
)

// Publisher drains staged reservation events from the outbox table to
// the rabbit topic exchange. SKIP LOCKED in the drain query makes it
// safe to run several replicas.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
	batchSize int
	interval  time.Duration
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{
		repo:      repo,
		rabbitPub: rabbitPub,
		logger:    logger,
		batchSize: 50,
		interval:  5 * time.Second,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Drain(ctx)
		}
	}
}

// Drain publishes one batch of staged events.
func (p *Publisher) Drain(ctx context.Context) {
	records, err := p.repo.GetUnpublishedOutbox(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("failed to read outbox: ", err)
		return
	}
	if len(records) > 0 {
		observability.OutboxLag.Set(time.Since(records[0].CreatedAt).Seconds())
	} else {
		observability.OutboxLag.Set(0)
	}

	for _, rec := range records {
		if err := p.rabbitPub.PublishJSON(ctx, rec.EventType, rec.DedupeKey, rec.Payload); err != nil {
			p.logger.WithField("event_id", rec.ID).Error("failed to publish outbox event: ", err)
			if err := p.repo.MarkFailed(ctx, rec.ID); err != nil {
				p.logger.Error("failed to mark outbox record failed: ", err)
			}
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
			p.logger.Error("failed to mark outbox record published: ", err)
		}
	}
}

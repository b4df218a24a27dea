package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/stadium-tickets/internal/domain"
	"github.com/robertarktes/stadium-tickets/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditMirror copies request-log entries into a Mongo collection for
// offline abuse analysis. It is strictly best-effort: the relational
// request_log table is the durable record, and a mirror failure never
// fails the reservation attempt.
type AuditMirror struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditMirror(db *mongo.Database, logger observability.Logger) *AuditMirror {
	return &AuditMirror{
		coll:   db.Collection("request_log"),
		logger: logger,
	}
}

type requestLogDoc struct {
	ID         uuid.UUID  `bson:"_id"`
	UserID     *uuid.UUID `bson:"user_id"`
	MatchID    *uuid.UUID `bson:"match_id"`
	SeatID     *uuid.UUID `bson:"seat_id"`
	Action     string     `bson:"action"`
	Success    bool       `bson:"success"`
	FailReason *string    `bson:"fail_reason"`
	IP         string     `bson:"ip"`
	UserAgent  string     `bson:"user_agent"`
	MirroredAt time.Time  `bson:"mirrored_at"`
}

func (a *AuditMirror) Mirror(ctx context.Context, e domain.RequestLogEntry) error {
	doc := requestLogDoc{
		ID:         e.ID,
		UserID:     e.UserID,
		MatchID:    e.MatchID,
		SeatID:     e.SeatID,
		Action:     e.Action,
		Success:    e.Success,
		FailReason: e.FailReason,
		IP:         e.IP,
		UserAgent:  e.UserAgent,
		MirroredAt: time.Now(),
	}
	if _, err := a.coll.InsertOne(ctx, doc); err != nil {
		a.logger.Error("failed to mirror request log entry", err)
		return err
	}
	return nil
}

// RecentFailures supports ad-hoc abuse digging on the mirror without
// touching the primary store.
func (a *AuditMirror) RecentFailures(ctx context.Context, since time.Time, limit int64) ([]domain.RequestLogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "mirrored_at", Value: -1}}).SetLimit(limit)
	cur, err := a.coll.Find(ctx, bson.M{"success": false, "mirrored_at": bson.M{"$gte": since}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []domain.RequestLogEntry
	for cur.Next(ctx) {
		var doc requestLogDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, domain.RequestLogEntry{
			ID:         doc.ID,
			UserID:     doc.UserID,
			MatchID:    doc.MatchID,
			SeatID:     doc.SeatID,
			Action:     doc.Action,
			Success:    doc.Success,
			FailReason: doc.FailReason,
			IP:         doc.IP,
			UserAgent:  doc.UserAgent,
		})
	}
	return out, cur.Err()
}

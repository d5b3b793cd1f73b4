package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/robertarktes/cinema-seat-booking/internal/observability"
	"github.com/robertarktes/cinema-seat-booking/internal/outbox"
)

// AuditLogger appends booking events to the booking_audit collection.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("booking_audit"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) Name() string { return "mongo-audit" }

// Publish is idempotent per event: a retried insert of the same event ID
// is treated as success.
func (a *AuditLogger) Publish(ctx context.Context, ev outbox.BookingEvent) error {
	_, err := a.coll.InsertOne(ctx, newAuditLog(ev))
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

func newAuditLog(ev outbox.BookingEvent) AuditLog {
	return AuditLog{
		ID:        ev.ID.String(),
		Action:    ev.Type,
		Timestamp: ev.OccurredAt,
		Data: bson.M{
			"booking_id": ev.BookingID.String(),
			"theater":    ev.Theater,
			"room":       ev.Room,
			"movie":      ev.Movie,
			"seats":      ev.Seats,
		},
	}
}

// FindByBooking returns the audit entries recorded for one booking.
func (a *AuditLogger) FindByBooking(ctx context.Context, bookingID uuid.UUID) ([]AuditLog, error) {
	cur, err := a.coll.Find(ctx, bson.M{"data.booking_id": bookingID.String()})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var logs []AuditLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

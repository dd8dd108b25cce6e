package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/attitudes-vip/event-gateway/internal/domain"
	"github.com/attitudes-vip/event-gateway/internal/dynamo"
)

// auditDynamoDB is a narrow, consumer-defined interface for DynamoDB
// operations required by the event log. The *dynamodb.Client satisfies it.
type auditDynamoDB interface {
	PutItem(ctx context.Context, params *dynamo.PutItemInput, optFns ...func(*dynamo.Options)) (*dynamo.PutItemOutput, error)
}

// auditItem is the DynamoDB item shape for the event audit table.
type auditItem struct {
	EventID      string `dynamodbav:"event_id"`
	WeddingID    string `dynamodbav:"wedding_id"`
	SenderUserID string `dynamodbav:"sender_user_id"`
	EventType    string `dynamodbav:"event_type"`
	Payload      string `dynamodbav:"payload"`
	Priority     string `dynamodbav:"priority"`
	CreatedAt    int64  `dynamodbav:"created_at"`
}

// EventLog appends event records to DynamoDB for durable audit. Callers
// treat failures as domain.ErrPersistenceFailure: logged, never blocking
// delivery.
type EventLog struct {
	db        auditDynamoDB
	tableName string
}

// NewEventLog creates an EventLog backed by the given DynamoDB client.
func NewEventLog(db auditDynamoDB, tableName string) *EventLog {
	return &EventLog{
		db:        db,
		tableName: tableName,
	}
}

// AppendEvent writes one event record. The event's own timestamp is kept
// as created_at so audit ordering matches gateway receipt order.
func (l *EventLog) AppendEvent(ctx context.Context, ev *domain.Event) error {
	item, err := dynamo.MarshalMap(auditItem{
		EventID:      uuid.NewString(),
		WeddingID:    ev.WeddingID,
		SenderUserID: ev.SenderUserID,
		EventType:    string(ev.Type),
		Payload:      string(ev.Payload),
		Priority:     string(ev.Priority),
		CreatedAt:    ev.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("event log: marshal: %w", err)
	}

	if _, err := l.db.PutItem(ctx, &dynamo.PutItemInput{
		TableName: &l.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("event log: append: %w: %w", domain.ErrPersistenceFailure, err)
	}

	return nil
}

// Package store holds the persistence collaborator adapters: user record
// lookup during authentication and fire-and-forget event audit appends.
// The gateway's job is delivery, not durability; nothing here sits on a
// delivery path.
package store

import (
	"context"
	"fmt"

	"github.com/attitudes-vip/event-gateway/internal/domain"
	"github.com/attitudes-vip/event-gateway/internal/dynamo"
)

// userDynamoDB is a narrow, consumer-defined interface for DynamoDB
// operations required by the user store. The *dynamodb.Client satisfies it.
type userDynamoDB interface {
	GetItem(ctx context.Context, params *dynamo.GetItemInput, optFns ...func(*dynamo.Options)) (*dynamo.GetItemOutput, error)
}

// userItem is the DynamoDB item shape for the users table.
type userItem struct {
	UserID      string `dynamodbav:"user_id"`
	DisplayName string `dynamodbav:"display_name"`
	Role        string `dynamodbav:"role"`
	WeddingID   string `dynamodbav:"wedding_id"`
	CreatedAt   string `dynamodbav:"created_at"`
}

// UserRecord is the store-level representation of a user.
type UserRecord struct {
	UserID      string
	DisplayName string
	Role        string
	WeddingID   string
	CreatedAt   string
}

// UserStore reads user records from DynamoDB.
type UserStore struct {
	db        userDynamoDB
	tableName string
}

// NewUserStore creates a UserStore backed by the given DynamoDB client.
func NewUserStore(db userDynamoDB, tableName string) *UserStore {
	return &UserStore{
		db:        db,
		tableName: tableName,
	}
}

// GetByID retrieves a user record by user ID.
// Returns domain.ErrNotFound when no user exists for the given ID.
func (s *UserStore) GetByID(ctx context.Context, userID string) (*UserRecord, error) {
	out, err := s.db.GetItem(ctx, &dynamo.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]dynamo.AttributeValue{
			"user_id": &dynamo.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("user store: get by id: %w", err)
	}

	if out.Item == nil {
		return nil, fmt.Errorf("user store: get by id: %w", domain.ErrNotFound)
	}

	var item userItem
	if err := dynamo.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("user store: unmarshal user: %w", err)
	}

	return &UserRecord{
		UserID:      item.UserID,
		DisplayName: item.DisplayName,
		Role:        item.Role,
		WeddingID:   item.WeddingID,
		CreatedAt:   item.CreatedAt,
	}, nil
}

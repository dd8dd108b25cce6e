package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attitudes-vip/event-gateway/internal/domain"
	"github.com/attitudes-vip/event-gateway/internal/dynamo"
	"github.com/attitudes-vip/event-gateway/internal/store"
)

// fakeUserDB captures GetItem calls and returns a canned response.
type fakeUserDB struct {
	lastInput *dynamo.GetItemInput
	out       *dynamo.GetItemOutput
	err       error
}

func (f *fakeUserDB) GetItem(ctx context.Context, params *dynamo.GetItemInput, optFns ...func(*dynamo.Options)) (*dynamo.GetItemOutput, error) {
	f.lastInput = params
	return f.out, f.err
}

func TestUserStoreGetByID(t *testing.T) {
	t.Run("found user unmarshals to record", func(t *testing.T) {
		db := &fakeUserDB{out: &dynamo.GetItemOutput{
			Item: map[string]dynamo.AttributeValue{
				"user_id":      &dynamo.AttributeValueMemberS{Value: "user_1"},
				"display_name": &dynamo.AttributeValueMemberS{Value: "Dana"},
				"role":         &dynamo.AttributeValueMemberS{Value: "vendor"},
				"wedding_id":   &dynamo.AttributeValueMemberS{Value: "wed_1"},
				"created_at":   &dynamo.AttributeValueMemberS{Value: "2026-06-20T12:00:00Z"},
			},
		}}
		s := store.NewUserStore(db, "users")

		rec, err := s.GetByID(context.Background(), "user_1")
		require.NoError(t, err)
		assert.Equal(t, "user_1", rec.UserID)
		assert.Equal(t, "Dana", rec.DisplayName)
		assert.Equal(t, "vendor", rec.Role)
		assert.Equal(t, "wed_1", rec.WeddingID)

		require.NotNil(t, db.lastInput)
		assert.Equal(t, "users", *db.lastInput.TableName)
	})

	t.Run("missing item maps to ErrNotFound", func(t *testing.T) {
		db := &fakeUserDB{out: &dynamo.GetItemOutput{Item: nil}}
		s := store.NewUserStore(db, "users")

		_, err := s.GetByID(context.Background(), "user_unknown")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("dynamo error propagates", func(t *testing.T) {
		db := &fakeUserDB{err: fmt.Errorf("throttled")}
		s := store.NewUserStore(db, "users")

		_, err := s.GetByID(context.Background(), "user_1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrNotFound)
	})
}

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"vidstream/internal/db"
	"vidstream/internal/session"
)

// Subscriptions manages the directed subscriber→channel edge set.
type Subscriptions struct {
	db *db.DB
}

func NewSubscriptions(dbConn *db.DB) *Subscriptions {
	return &Subscriptions{db: dbConn}
}

// Subscribe creates the edge. The composite primary key keeps the pair
// unique, so repeating the call is a no-op rather than a duplicate edge.
func (s *Subscriptions) Subscribe(ctx context.Context, subscriberID, channelID uuid.UUID) error {
	if subscriberID == channelID {
		return fmt.Errorf("%w: cannot subscribe to yourself", session.ErrValidation)
	}
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO subscriptions (subscriber_id, channel_id)
		 VALUES ($1, $2)
		 ON CONFLICT (subscriber_id, channel_id) DO NOTHING`,
		subscriberID, channelID)
	if err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	return nil
}

func (s *Subscriptions) Unsubscribe(ctx context.Context, subscriberID, channelID uuid.UUID) error {
	_, err := s.db.Pool.Exec(ctx,
		`DELETE FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2`,
		subscriberID, channelID)
	if err != nil {
		return fmt.Errorf("unsubscribing: %w", err)
	}
	return nil
}

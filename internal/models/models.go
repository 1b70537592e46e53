package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is the full stored record. PasswordHash and RefreshToken never
// leave the process; every response goes through Projection().
type Account struct {
	ID           uuid.UUID
	Username     string
	Email        string
	FullName     string
	PasswordHash string
	RefreshToken *string
	AvatarURL    string
	AvatarKey    string
	CoverURL     string
	CoverKey     string
	WatchHistory []uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountProjection is the externally visible shape of an account.
type AccountProjection struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url"`
	CoverURL  string    `json:"cover_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Account) Projection() AccountProjection {
	return AccountProjection{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		FullName:  a.FullName,
		AvatarURL: a.AvatarURL,
		CoverURL:  a.CoverURL,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

type Video struct {
	ID              uuid.UUID `json:"id"`
	OwnerID         uuid.UUID `json:"owner_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	VideoURL        string    `json:"video_url"`
	ThumbnailURL    string    `json:"thumbnail_url,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	Views           int64     `json:"views"`
	Published       bool      `json:"published"`
	CreatedAt       time.Time `json:"created_at"`
}

// Subscription is a directed edge: subscriber follows channel.
// The pair is the primary key, so an edge exists at most once.
type Subscription struct {
	SubscriberID uuid.UUID `json:"subscriber_id"`
	ChannelID    uuid.UUID `json:"channel_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChannelProfile is the viewer-relative aggregation over accounts and
// subscription edges.
type ChannelProfile struct {
	ID                        uuid.UUID `json:"id"`
	Username                  string    `json:"username"`
	Email                     string    `json:"email"`
	FullName                  string    `json:"full_name"`
	AvatarURL                 string    `json:"avatar_url"`
	CoverURL                  string    `json:"cover_url,omitempty"`
	SubscribersCount          int64     `json:"subscribers_count"`
	ChannelsSubscribedToCount int64     `json:"channels_subscribed_to_count"`
	IsSubscribed              bool      `json:"is_subscribed"`
	CreatedAt                 time.Time `json:"created_at"`
}

// VideoOwner is the minimal owner projection embedded in watch history rows.
type VideoOwner struct {
	FullName  string `json:"full_name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// WatchHistoryEntry is one denormalized row of an account's watch history.
// Owner is nil when the owning account no longer exists.
type WatchHistoryEntry struct {
	ID              uuid.UUID   `json:"id"`
	Title           string      `json:"title"`
	ThumbnailURL    string      `json:"thumbnail_url,omitempty"`
	VideoURL        string      `json:"video_url"`
	DurationSeconds int         `json:"duration_seconds"`
	Views           int64       `json:"views"`
	CreatedAt       time.Time   `json:"created_at"`
	Owner           *VideoOwner `json:"owner"`
}

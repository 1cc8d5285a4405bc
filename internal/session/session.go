// Package session carries the shopper's credential explicitly: a session is
// created once from an access token, persisted, and every engine and gateway
// built for it receives that credential through its constructor.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidSession  = errors.New("access_token and user_id are required")
)

type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store interface {
	Get(ctx context.Context, id string) (Session, error)
	Set(ctx context.Context, s Session) error
	Delete(ctx context.Context, id string) error
}

func New(userID, accessToken string) (Session, error) {
	if userID == "" || accessToken == "" {
		return Session{}, ErrInvalidSession
	}
	return Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		AccessToken: accessToken,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Package store provides the persistence backends for quiz sessions.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/m3rciful/quizbot/internal/quiz"
)

// ErrNotFound is returned when no session exists for (phone, botID).
var ErrNotFound = quiz.ErrNotFound

// Store is the session store contract; see quiz.Store.
type Store interface {
	quiz.Store
	Close(ctx context.Context) error
}

func validKey(phone, botID string) error {
	if strings.TrimSpace(phone) == "" || strings.TrimSpace(botID) == "" {
		return fmt.Errorf("store: empty key (phone=%q bot=%q)", phone, botID)
	}
	return nil
}

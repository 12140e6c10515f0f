package repository

import (
	"context"
	"errors"
	"time"

	"github.com/immxrtalbeast/clipguess/internal/domain"
)

var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrRoomNotFound   = errors.New("room not found")
	ErrTokenNotFound  = errors.New("import token not found or expired")
)

type PlayerRepository interface {
	// GetOrCreate matches an existing profile by external name or display
	// name, case-insensitively, and creates one otherwise.
	GetOrCreate(ctx context.Context, username, externalName string) (*domain.Profile, error)
}

type RoomRepository interface {
	Create(ctx context.Context, code string) (string, error)
	AddMember(ctx context.Context, roomID, playerID, sessionID string) error
}

type SubmissionRepository interface {
	// Save stores urls for owner and returns how many were new. Urls whose
	// external video id is already known are skipped.
	Save(ctx context.Context, ownerID string, urls []string) (int, error)
	// Eligible returns up to limit submissions of owners, never-played first
	// in random order, topped up by least-played then oldest-played ones.
	Eligible(ctx context.Context, ownerIDs []string, limit int) ([]domain.Round, error)
	MarkPlayed(ctx context.Context, submissionID, roomCode string) error
	// PlayableCounts counts never-played submissions per owner.
	PlayableCounts(ctx context.Context, ownerIDs []string) (map[string]int, error)
}

type TokenStore interface {
	Put(ctx context.Context, token *domain.ImportToken, ttl time.Duration) error
	// Take returns the token and invalidates it.
	Take(ctx context.Context, token string) (*domain.ImportToken, error)
}

const fallbackScanLimit = 100

// mergeEligible appends fallback rows to fresh ones, skipping duplicates, up
// to limit.
func mergeEligible(fresh, fallback []domain.Round, limit int) []domain.Round {
	if len(fresh) == 0 || len(fresh) >= limit {
		return fresh
	}
	seen := make(map[string]struct{}, len(fresh))
	for _, r := range fresh {
		seen[r.ID] = struct{}{}
	}
	res := fresh
	for _, r := range fallback {
		if len(res) >= limit {
			break
		}
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		res = append(res, r)
	}
	return res
}

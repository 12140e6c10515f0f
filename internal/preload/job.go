package preload

import (
	"sync"

	"github.com/immxrtalbeast/clipguess/internal/domain"
)

type JobState int

const (
	StatePending JobState = iota
	StateRetrying
	StateSubstituting
	StateSucceeded
	StateFailed
)

func (s JobState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRetrying:
		return "retrying"
	case StateSubstituting:
		return "substituting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// RoundJob is the preload state of one round slot. Round is the submission
// currently occupying the slot, which changes on substitution.
type RoundJob struct {
	Index         int
	Round         domain.Round
	State         JobState
	Attempts      int
	Substitutions int
}

// roundSet tracks which submissions are in use by the game so spare picks
// never duplicate a round, by id or by url.
type roundSet struct {
	mu     sync.Mutex
	rounds []domain.Round
	tried  map[string]struct{}
}

func newRoundSet(rounds []domain.Round) *roundSet {
	return &roundSet{
		rounds: append([]domain.Round(nil), rounds...),
		tried:  make(map[string]struct{}),
	}
}

// claim picks a spare not used by any round and installs it in slot index.
func (s *roundSet) claim(index int, spare []domain.Round, intn func(int) int) (domain.Round, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := s.candidatesLocked(spare)
	if len(candidates) == 0 {
		return domain.Round{}, false
	}
	pick := candidates[intn(len(candidates))]
	s.rounds[index] = pick
	return pick, true
}

func (s *roundSet) markTried(round domain.Round) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tried[round.ID] = struct{}{}
	s.tried[round.VideoURL] = struct{}{}
}

func (s *roundSet) candidatesLocked(spare []domain.Round) []domain.Round {
	used := make(map[string]struct{}, 2*len(s.rounds))
	for _, r := range s.rounds {
		used[r.ID] = struct{}{}
		used[r.VideoURL] = struct{}{}
	}

	res := make([]domain.Round, 0, len(spare))
	for _, r := range spare {
		if _, ok := used[r.ID]; ok {
			continue
		}
		if _, ok := used[r.VideoURL]; ok {
			continue
		}
		if _, ok := s.tried[r.ID]; ok {
			continue
		}
		if _, ok := s.tried[r.VideoURL]; ok {
			continue
		}
		res = append(res, r)
	}
	return res
}

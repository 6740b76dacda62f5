package gateway

import (
	"sync"

	"legal-rag/internal/models"
)

const maxTrackedUpdates = 1000

// updateSet remembers recently handled update ids for one process. Telegram
// redelivers an update when the webhook is slow to answer.
type updateSet struct {
	mu   sync.Mutex
	seen map[int64]struct{}
}

func newUpdateSet() *updateSet {
	return &updateSet{seen: make(map[int64]struct{})}
}

// firstTime records id and reports whether it had not been seen. Ids that
// are not positive and the test update id are always new.
func (s *updateSet) firstTime(id int64) bool {
	if id <= 0 || id == models.TelegramTestUpdateID {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	if len(s.seen) > maxTrackedUpdates {
		clear(s.seen)
	}
	return true
}

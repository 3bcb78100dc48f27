package game

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ActionCounter tallies committed actions by name across all sessions.
type ActionCounter struct {
	counts map[string]int
	mu     sync.Mutex
}

func NewActionCounter() *ActionCounter {
	return &ActionCounter{
		counts: make(map[string]int),
	}
}

func (ac *ActionCounter) Count(op string) {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	ac.counts[op]++
}

// Counts returns a copy of the current tallies.
func (ac *ActionCounter) Counts() map[string]int {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	out := make(map[string]int, len(ac.counts))
	for op, n := range ac.counts {
		out[op] = n
	}
	return out
}

func (ac *ActionCounter) LogCounts(logger *zap.Logger) {
	counts := ac.Counts()
	ops := make([]string, 0, len(counts))
	for op := range counts {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		logger.Info("Action count", zap.String("action", op), zap.Int("count", counts[op]))
	}
}

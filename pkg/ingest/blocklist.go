package ingest

import (
	"sync"

	"github.com/cuemby/ingestord/pkg/types"
)

// blockedSet tracks (org, stream_type) pairs rejected wholesale at
// admission, per spec.md §4.1's "blocked-streams set".
type blockedSet struct {
	mu      sync.RWMutex
	blocked map[string]struct{}
}

func newBlockedSet() *blockedSet {
	return &blockedSet{blocked: map[string]struct{}{}}
}

func blockKey(orgID string, st types.StreamType) string {
	return orgID + "/" + string(st)
}

func (b *blockedSet) Block(orgID string, st types.StreamType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocked[blockKey(orgID, st)] = struct{}{}
}

func (b *blockedSet) Unblock(orgID string, st types.StreamType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blocked, blockKey(orgID, st))
}

func (b *blockedSet) IsBlocked(orgID string, st types.StreamType) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blocked[blockKey(orgID, st)]
	return ok
}

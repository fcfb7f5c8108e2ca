package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"spotarb/internal/domain/model"
)

// maxBatchHashes bounds the rendered-batch dedup set. Once exceeded the set
// is cleared wholesale: coarse dedup, not an exact sliding window.
const maxBatchHashes = 50

type cacheEntry struct {
	firstSeen time.Time
	lastSeen  time.Time
	seenCount int
}

// Tracker correlates each cycle's signals with the previous cycle's cache to
// carry firstSeenAt forward, compute age, evict stale entries and suppress
// re-notification of identical batches. Safe for concurrent use: the scan
// cycle and the interactive trade flow run on independent triggers.
type Tracker struct {
	mu     sync.Mutex
	cache  map[string]cacheEntry // keyed by symbol
	ttl    time.Duration         // 0 = baseline drop-if-absent policy
	hashes map[string]struct{}
	now    func() time.Time
}

func NewTracker(ttl time.Duration) *Tracker {
	return &Tracker{
		cache:  make(map[string]cacheEntry),
		ttl:    ttl,
		hashes: make(map[string]struct{}),
		now:    time.Now,
	}
}

// Reconcile enriches a fresh batch with age/persistence data and advances the
// cache. Symbols absent from the batch are dropped immediately, or kept until
// their TTL expires when a TTL is configured. Eviction never touches signals
// already emitted.
func (t *Tracker) Reconcile(fresh []*model.Signal) []*model.Signal {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	next := make(map[string]cacheEntry, len(fresh))

	for _, sig := range fresh {
		prev, ok := t.cache[sig.Symbol]
		if !ok {
			prev = cacheEntry{firstSeen: now}
		}
		entry := cacheEntry{
			firstSeen: prev.firstSeen,
			lastSeen:  now,
			seenCount: prev.seenCount + 1,
		}
		next[sig.Symbol] = entry

		sig.FirstSeenAt = entry.firstSeen
		sig.LastSeenAt = now
		sig.AgeMinutes = now.Sub(entry.firstSeen).Minutes()
		sig.SeenCount = entry.seenCount
	}

	if t.ttl > 0 {
		for symbol, entry := range t.cache {
			if _, ok := next[symbol]; ok {
				continue
			}
			if now.Sub(entry.lastSeen) <= t.ttl {
				next[symbol] = entry
			}
		}
	}

	t.cache = next
	return fresh
}

// Cached reports whether a symbol currently has a cache entry. Test hook and
// status display helper.
func (t *Tracker) Cached(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.cache[symbol]
	return ok
}

// ShouldNotify returns false when an identical batch was already rendered
// recently. Empty batches are never notified.
func (t *Tracker) ShouldNotify(batch []*model.Signal) bool {
	if len(batch) == 0 {
		return false
	}

	h := batchHash(batch)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.hashes[h]; ok {
		return false
	}
	if len(t.hashes) >= maxBatchHashes {
		t.hashes = make(map[string]struct{})
	}
	t.hashes[h] = struct{}{}
	return true
}

// batchHash fingerprints the fields a reader would actually see, so a batch
// with unchanged content but refreshed timestamps still counts as identical.
func batchHash(batch []*model.Signal) string {
	var b strings.Builder
	for _, sig := range batch {
		fmt.Fprintf(&b, "%s|%s|%s|%.6f|%.6f|%.2f\n",
			sig.Symbol, sig.BuyExchange, sig.SellExchange, sig.BuyPrice, sig.SellPrice, sig.NetProfitPct)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

package analysis

import (
	"container/list"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/nao1215/imgguard/internal/model"
)

// Digest returns the hex SHA3-256 digest of image bytes.
func Digest(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// cacheKey combines the image digest with the enabled scan categories.
func cacheKey(digest string, opts model.ScanOptions) string {
	return digest + ":" + opts.Key()
}

// VerdictCache is an LRU cache with TTL for analysis results, keyed by
// image digest and scan options. Identical bytes served from different
// URLs share an entry.
type VerdictCache struct {
	maxSize int
	ttl     time.Duration
	items   map[string]*cacheItem
	lruList *list.List
	mu      sync.Mutex
	now     func() time.Time

	// onEvict is called with mu held whenever an entry is dropped for space.
	onEvict func()
}

type cacheItem struct {
	key       string
	result    model.AnalysisResult
	element   *list.Element
	expiresAt time.Time
}

// NewVerdictCache creates a cache holding at most maxSize results for ttl.
// Expired entries are dropped lazily on access.
func NewVerdictCache(maxSize int, ttl time.Duration) *VerdictCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &VerdictCache{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*cacheItem),
		lruList: list.New(),
		now:     time.Now,
	}
}

// Get returns a copy of the cached result for key.
func (c *VerdictCache) Get(key string) (*model.AnalysisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().After(item.expiresAt) {
		c.removeItem(item)
		return nil, false
	}

	c.lruList.MoveToFront(item.element)
	return copyResult(&item.result), true
}

// Set stores a copy of result under key.
func (c *VerdictCache) Set(key string, result *model.AnalysisResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[key]; ok {
		existing.result = *copyResult(result)
		existing.expiresAt = c.now().Add(c.ttl)
		c.lruList.MoveToFront(existing.element)
		return
	}

	item := &cacheItem{
		key:       key,
		result:    *copyResult(result),
		expiresAt: c.now().Add(c.ttl),
	}
	item.element = c.lruList.PushFront(item)
	c.items[key] = item

	if len(c.items) > c.maxSize {
		if oldest := c.lruList.Back(); oldest != nil {
			c.removeItem(oldest.Value.(*cacheItem)) //nolint:forcetypeassert // list holds only *cacheItem
			if c.onEvict != nil {
				c.onEvict()
			}
		}
	}
}

// Len returns the number of cached results, expired ones included.
func (c *VerdictCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *VerdictCache) removeItem(item *cacheItem) {
	delete(c.items, item.key)
	c.lruList.Remove(item.element)
}

// copyResult copies r with its own Threats slice.
func copyResult(r *model.AnalysisResult) *model.AnalysisResult {
	out := *r
	out.Threats = append([]model.Threat{}, r.Threats...)
	return &out
}

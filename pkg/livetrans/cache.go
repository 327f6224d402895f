package livetrans

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultSegmentCacheEntries 分段缓存默认容量
	DefaultSegmentCacheEntries = 2048
	// DefaultDocumentCacheEntries 文档缓存默认容量
	DefaultDocumentCacheEntries = 64
	// DefaultCacheTTL 两级缓存默认过期时间
	DefaultCacheTTL = 24 * time.Hour
)

// segmentEntry 分段缓存条目
type segmentEntry struct {
	result    RawResult
	timestamp time.Time
}

// SegmentCache 分段级翻译缓存
// 按指纹存储，容量有界，按最旧条目全局淘汰；
// 文档↔指纹双向索引使按文档清理的代价与该文档触达的条目数成正比
type SegmentCache struct {
	mu         sync.Mutex
	entries    map[string]*segmentEntry
	byDocument map[string]map[string]struct{} // documentID -> fingerprints
	owners     map[string]map[string]struct{} // fingerprint -> documentIDs
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// NewSegmentCache 创建分段缓存
func NewSegmentCache(maxEntries int, ttl time.Duration) *SegmentCache {
	if maxEntries <= 0 {
		maxEntries = DefaultSegmentCacheEntries
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &SegmentCache{
		entries:    make(map[string]*segmentEntry),
		byDocument: make(map[string]map[string]struct{}),
		owners:     make(map[string]map[string]struct{}),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get 获取未过期的缓存条目；超过TTL视为不存在
func (c *SegmentCache) Get(fingerprint string) (RawResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		return RawResult{}, false
	}
	if c.now().Sub(entry.timestamp) > c.ttl {
		return RawResult{}, false
	}
	return entry.result, true
}

// GetStale 获取最近的缓存条目，忽略TTL
// 仅用于重试耗尽后的缓存回落
func (c *SegmentCache) GetStale(fingerprint string) (RawResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		return RawResult{}, false
	}
	return entry.result, true
}

// Put 写入缓存并登记文档归属，超容量时淘汰全局最旧条目
func (c *SegmentCache) Put(documentID, fingerprint string, result RawResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fingerprint] = &segmentEntry{
		result:    result,
		timestamp: c.now(),
	}
	c.addOwnerLocked(documentID, fingerprint)

	for len(c.entries) > c.maxEntries {
		c.evictOldestLocked()
	}
}

// Touch 为已存在的条目登记新的文档归属（共享条目场景）
func (c *SegmentCache) Touch(documentID, fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[fingerprint]; ok {
		c.addOwnerLocked(documentID, fingerprint)
	}
}

// ClearForDocument 清除某文档触达的所有分段条目
// 被多个文档共享的条目仅在失去最后一个归属者时删除
func (c *SegmentCache) ClearForDocument(documentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fps, ok := c.byDocument[documentID]
	if !ok {
		return
	}
	delete(c.byDocument, documentID)

	for fp := range fps {
		docs, ok := c.owners[fp]
		if !ok {
			continue
		}
		delete(docs, documentID)
		if len(docs) == 0 {
			delete(c.owners, fp)
			delete(c.entries, fp)
		}
	}
}

// Clear 清空全部条目
func (c *SegmentCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*segmentEntry)
	c.byDocument = make(map[string]map[string]struct{})
	c.owners = make(map[string]map[string]struct{})
}

// Len 当前条目数
func (c *SegmentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *SegmentCache) addOwnerLocked(documentID, fingerprint string) {
	if documentID == "" {
		return
	}
	if c.byDocument[documentID] == nil {
		c.byDocument[documentID] = make(map[string]struct{})
	}
	c.byDocument[documentID][fingerprint] = struct{}{}
	if c.owners[fingerprint] == nil {
		c.owners[fingerprint] = make(map[string]struct{})
	}
	c.owners[fingerprint][documentID] = struct{}{}
}

// evictOldestLocked 淘汰时间戳最旧的条目，并同步清理归属索引
func (c *SegmentCache) evictOldestLocked() {
	var oldestFP string
	var oldest time.Time
	first := true
	for fp, entry := range c.entries {
		if first || entry.timestamp.Before(oldest) {
			oldestFP = fp
			oldest = entry.timestamp
			first = false
		}
	}
	if first {
		return
	}

	delete(c.entries, oldestFP)
	for doc := range c.owners[oldestFP] {
		if fps, ok := c.byDocument[doc]; ok {
			delete(fps, oldestFP)
			if len(fps) == 0 {
				delete(c.byDocument, doc)
			}
		}
	}
	delete(c.owners, oldestFP)
}

// DocumentKey 文档级缓存键
type DocumentKey struct {
	DocumentID string
	Version    string // 版本号或内容哈希
	ConfigHash string
}

// documentEntry 文档缓存条目
type documentEntry struct {
	result    Result
	timestamp time.Time
}

// DocumentCache 文档级翻译缓存
// 内存层有界且带TTL；可选的持久层用于跨会话复用
type DocumentCache struct {
	mu         sync.Mutex
	entries    map[DocumentKey]*documentEntry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	store      *DiskStore
	logger     *zap.Logger
}

// NewDocumentCache 创建文档缓存
func NewDocumentCache(maxEntries int, ttl time.Duration, logger *zap.Logger) *DocumentCache {
	if maxEntries <= 0 {
		maxEntries = DefaultDocumentCacheEntries
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentCache{
		entries:    make(map[DocumentKey]*documentEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		logger:     logger,
	}
}

// WithStore 挂接持久层
func (c *DocumentCache) WithStore(store *DiskStore) *DocumentCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
	return c
}

// Get 获取文档缓存
// contentHash 用于持久层加载时的新鲜度校验
func (c *DocumentCache) Get(key DocumentKey, contentHash string, cfg *Config, prompt *Prompt) (Result, bool) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.now().Sub(entry.timestamp) <= c.ttl {
		result := entry.result
		c.mu.Unlock()
		return result, true
	}
	store := c.store
	c.mu.Unlock()

	if store == nil {
		return Result{}, false
	}

	// 持久层：加载时重新校验内容哈希与配置
	result, ok := store.Load(key.DocumentID, contentHash, cfg, prompt)
	if !ok {
		return Result{}, false
	}

	c.mu.Lock()
	c.entries[key] = &documentEntry{result: result, timestamp: c.now()}
	c.evictLocked()
	c.mu.Unlock()
	return result, true
}

// Set 写入文档缓存；持久层写入失败仅记录日志
func (c *DocumentCache) Set(key DocumentKey, contentHash string, cfg *Config, prompt *Prompt, result Result) {
	c.mu.Lock()
	c.entries[key] = &documentEntry{result: result, timestamp: c.now()}
	c.evictLocked()
	store := c.store
	c.mu.Unlock()

	if store != nil {
		if err := store.Save(key.DocumentID, contentHash, cfg, prompt, result); err != nil {
			c.logger.Warn("document cache persist failed",
				zap.String("documentID", key.DocumentID),
				zap.Error(err))
		}
	}
}

// Delete 删除指定键的条目（含持久层）
func (c *DocumentCache) Delete(key DocumentKey, cfg *Config, prompt *Prompt) {
	c.mu.Lock()
	delete(c.entries, key)
	store := c.store
	c.mu.Unlock()

	if store != nil {
		store.Remove(key.DocumentID, cfg, prompt)
	}
}

// Clear 清空内存层
func (c *DocumentCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[DocumentKey]*documentEntry)
}

// Len 当前内存条目数
func (c *DocumentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked 容量超限时淘汰最旧条目
func (c *DocumentCache) evictLocked() {
	for len(c.entries) > c.maxEntries {
		var oldestKey DocumentKey
		var oldest time.Time
		first := true
		for key, entry := range c.entries {
			if first || entry.timestamp.Before(oldest) {
				oldestKey = key
				oldest = entry.timestamp
				first = false
			}
		}
		if first {
			return
		}
		delete(c.entries, oldestKey)
	}
}

package challenge

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Store 短时键值存储抽象
// challenge 缓存与注册状态缓存都通过它注入，进程内 map 和分布式缓存可以互换
type Store interface {
	// Get 返回键对应的值；不存在或已过期时 found 为 false
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Put 写入键值并设置存活时间
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Expire 立即失效一个键
	Expire(ctx context.Context, key string) error
}

// Consumer 支持原子取出并删除的存储
// 一次性 challenge 的消费必须走这条路径，先读后删在并发下会放过重放
type Consumer interface {
	// Consume 原子地取出并删除键；键不存在或已过期时 found 为 false
	Consume(ctx context.Context, key string) (found bool, err error)
}

// memoryEntry 进程内存储条目
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore 进程内实现，带周期性过期清扫
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore 创建进程内存储并启动清扫协程
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		done:    make(chan struct{}),
	}
	go s.sweepLoop(sweepInterval)
	return s
}

// Get 读取未过期的键
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Put 写入键值
func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	s.mu.Lock()
	s.entries[key] = memoryEntry{value: stored, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Expire 删除键
func (s *MemoryStore) Expire(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Consume 写锁内取出并删除，并发消费同一键只有一个成功
func (s *MemoryStore) Consume(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	delete(s.entries, key)
	if time.Now().After(entry.expiresAt) {
		return false, nil
	}
	return true, nil
}

// Close 停止清扫协程
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	removed := 0
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	remaining := len(s.entries)
	s.mu.Unlock()
	if removed > 0 {
		log.Debug().Int("removed", removed).Int("remaining", remaining).Msg("Swept expired cache entries")
	}
}

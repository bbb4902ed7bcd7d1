// Package cache はキー単位のTTL付きインメモリキャッシュを提供する。
// 値は再計算時に丸ごと置き換えられ、部分的な無効化は行わない。
package cache

import (
	"context"
	"sync"
	"time"
)

// Observer はキャッシュのヒット・ミスを受け取るインターフェース。
// metrics.Collectorが実装する。
type Observer interface {
	RecordCacheHit(key string)
	RecordCacheMiss(key string)
}

type entry struct {
	value      any
	computedAt time.Time
	ttl        time.Duration
}

// Store はプロセス内で共有されるキャッシュ。
// 同時ミス時の重複計算（スタンピード）は抑止しない。
type Store struct {
	mu       sync.RWMutex
	entries  map[string]entry
	now      func() time.Time
	observer Observer
}

// Option はStoreの生成オプション。
type Option func(*Store)

// WithClock は現在時刻の取得関数を差し替える（テスト用）。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithObserver はヒット・ミスの通知先を設定する。
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// New は空のStoreを生成する。
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookup は有効期限内のエントリを返す。
func (s *Store) lookup(key string) (any, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.now().Sub(e.computedAt) >= e.ttl {
		return nil, false
	}
	return e.value, true
}

func (s *Store) store(key string, value any, ttl time.Duration) {
	s.mu.Lock()
	s.entries[key] = entry{value: value, computedAt: s.now(), ttl: ttl}
	s.mu.Unlock()
}

// Len は保持しているエントリ数（期限切れを含む）を返す。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Prune は期限切れのエントリを削除し、削除した件数を返す。
func (s *Store) Prune() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if now.Sub(e.computedAt) >= e.ttl {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// StartPruning はintervalごとにPruneを実行する。ctxがキャンセルされるまでブロックする。
func (s *Store) StartPruning(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Prune()
		case <-ctx.Done():
			return
		}
	}
}

// GetOrCompute はkeyの値が有効期限内であればそれを返し、
// そうでなければproducerで再計算して保存する。
// producerがエラーを返した場合は保存せずにそのエラーを返す。
func GetOrCompute[T any](ctx context.Context, s *Store, key string, ttl time.Duration, producer func(context.Context) (T, error)) (T, error) {
	if v, ok := s.lookup(key); ok {
		if typed, ok := v.(T); ok {
			if s.observer != nil {
				s.observer.RecordCacheHit(key)
			}
			return typed, nil
		}
	}

	if s.observer != nil {
		s.observer.RecordCacheMiss(key)
	}

	v, err := producer(ctx)
	if err != nil {
		return v, err
	}
	if ttl > 0 {
		s.store(key, v, ttl)
	}
	return v, nil
}

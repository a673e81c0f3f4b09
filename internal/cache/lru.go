// Package cache provides a bounded, concurrency-safe memoization cache.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is the small get/put/evict surface used for memoizing pure functions.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Put(key K, value V)
	Evict(key K)
	Len() int
}

// LRU evicts the least recently used entry once Size entries are held.
type LRU[K comparable, V any] struct {
	inner *lru.Cache[K, V]
}

// NewLRU builds an LRU holding at most size entries. Sizes below one are
// raised to one.
func NewLRU[K comparable, V any](size int) (*LRU[K, V], error) {
	if size < 1 {
		size = 1
	}
	inner, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	return &LRU[K, V]{inner: inner}, nil
}

func (c *LRU[K, V]) Get(key K) (V, bool) {
	return c.inner.Get(key)
}

func (c *LRU[K, V]) Put(key K, value V) {
	c.inner.Add(key, value)
}

func (c *LRU[K, V]) Evict(key K) {
	c.inner.Remove(key)
}

func (c *LRU[K, V]) Len() int {
	return c.inner.Len()
}

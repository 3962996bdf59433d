/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cache

import (
	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

const (
	// zeroCost defers to the Cost function in the ristretto configuration.
	zeroCost = 0

	defaultNumCounters = 1e6
	defaultMaxCost     = 1e5
	defaultBufferItems = 64
)

// Cache is a read-through cache keyed by string.
type Cache[T any] struct {
	cache *ristretto.Cache[string, T]
	sfg   singleflight.Group
}

func New[T any]() (*Cache[T], error) {
	return NewWithSize[T](defaultMaxCost)
}

func NewWithSize[T any](maxCost int64) (*Cache[T], error) {
	rc, err := ristretto.NewCache[string, T](&ristretto.Config[string, T]{
		NumCounters: defaultNumCounters,
		MaxCost:     maxCost,
		BufferItems: defaultBufferItems,
		Cost: func(value T) int64 {
			return 1
		},
	})
	if err != nil {
		return nil, err
	}
	return &Cache[T]{cache: rc}, nil
}

func (c *Cache[T]) Get(key string) (T, bool) {
	return c.cache.Get(key)
}

func (c *Cache[T]) Add(key string, value T) {
	c.cache.Set(key, value, zeroCost)
	c.cache.Wait()
}

func (c *Cache[T]) Delete(key string) {
	c.cache.Del(key)
	c.cache.Wait()
}

func (c *Cache[T]) Clear() {
	c.cache.Clear()
	c.cache.Wait()
}

// GetOrLoad returns the cached value or loads it, collapsing concurrent
// loads of the same key into one call. The boolean reports a cache hit.
func (c *Cache[T]) GetOrLoad(key string, loader func() (T, error)) (T, bool, error) {
	var zero T

	if value, found := c.Get(key); found {
		return value, true, nil
	}

	res, err, _ := c.sfg.Do(key, func() (interface{}, error) {
		newValue, loadErr := loader()
		if loadErr != nil {
			return nil, loadErr
		}
		c.Add(key, newValue)
		return newValue, nil
	})
	if err != nil {
		return zero, false, err
	}
	return res.(T), false, nil
}

package cache

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// LookupCache is a read-through cache keyed by string. Eviction follows ristretto's
// admission policy, so a Put is not guaranteed to be retained.
type LookupCache[ValueType interface{}] interface {
	Get(key string) (ValueType, error)
	Put(key string, value ValueType, cost int64) error
	Clear()
}

type LookupCacheImpl[ValueType interface{}] struct {
	cache *ristretto.Cache
}

func NewLookupCacheImpl[ValueType interface{}](cache *ristretto.Cache) *LookupCacheImpl[ValueType] {
	return &LookupCacheImpl[ValueType]{
		cache: cache,
	}
}

// NewRistrettoCache sizes a ristretto cache for roughly maxCost units of cost.
func NewRistrettoCache(maxCost int64) (*ristretto.Cache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}
	return cache, nil
}

func (lc *LookupCacheImpl[ValueType]) Get(key string) (ValueType, error) {
	var zero ValueType
	value, found := lc.cache.Get(key)
	if !found {
		return zero, ErrKeyNotFound
	}
	typedValue, ok := value.(ValueType)
	if !ok {
		return zero, fmt.Errorf("value not of expected type %T returned from cache when getting", value)
	}
	return typedValue, nil
}

func (lc *LookupCacheImpl[ValueType]) Put(key string, value ValueType, cost int64) error {
	set := lc.cache.Set(key, value, cost)
	if !set {
		return ErrSetFailed
	}
	return nil
}

// Clear drops every entry. Pending buffered writes are flushed first so that none of them
// survive the clear.
func (lc *LookupCacheImpl[ValueType]) Clear() {
	lc.cache.Wait()
	lc.cache.Clear()
}

// Wait blocks until buffered writes are applied.
func (lc *LookupCacheImpl[ValueType]) Wait() {
	lc.cache.Wait()
}

var (
	ErrKeyNotFound = errors.New("key not found within the cache")
	ErrSetFailed   = errors.New("failed to set value in cache")
)

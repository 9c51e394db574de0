package google

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestInvalidateRowCache(t *testing.T) {
	c := &Client{cacheValidDuration: 10 * time.Minute}

	c.mu.Lock()
	c.cachedRowCount = 42
	c.rowIndex = map[string]int{"led-1": 2}
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()

	c.InvalidateRowCache()

	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Now().Before(c.cacheExpiresAt) {
		t.Error("cache should be expired after invalidation")
	}
	if c.rowIndex != nil {
		t.Error("row index should be dropped after invalidation")
	}
}

func TestValidCacheSkipsRead(t *testing.T) {
	// svc is nil: any read would panic
	c := &Client{cacheValidDuration: time.Minute}
	c.mu.Lock()
	c.rowIndex = map[string]int{"led-1": 2}
	c.cachedRowCount = 2
	c.cacheExpiresAt = time.Now().Add(time.Minute)
	err := c.loadIndexLocked(context.Background())
	c.mu.Unlock()
	if err != nil {
		t.Fatalf("loadIndexLocked: %v", err)
	}
}

func TestRowCacheExpiration(t *testing.T) {
	c := &Client{cacheValidDuration: 50 * time.Millisecond}

	c.mu.Lock()
	if time.Now().Before(c.cacheExpiresAt) {
		t.Error("cache should start expired")
	}
	c.cachedRowCount = 10
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()

	time.Sleep(80 * time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Now().Before(c.cacheExpiresAt) {
		t.Error("cache should be expired after TTL")
	}
}

func TestCacheMutexProtection(t *testing.T) {
	c := &Client{cacheValidDuration: 2 * time.Minute}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c.mu.Lock()
			c.cachedRowCount = i
			c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
			c.mu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c.SetRowCacheTTL(time.Duration(i) * time.Second)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			c.InvalidateRowCache()
		}
	}()
	wg.Wait()
}

package storage

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Object is one fetched object.
type Object struct {
	Key  string
	Data []byte
	ETag string
}

// BatchResult contains the outcome of a batch fetch.
type BatchResult struct {
	Objects map[string]Object
	Errors  map[string]error
}

// BatchGetter fetches several objects in parallel with bounded concurrency.
type BatchGetter struct {
	storage     ObjectStorage
	concurrency int
}

// NewBatchGetter creates a new batch getter. A concurrency below one is
// treated as one.
func NewBatchGetter(storage ObjectStorage, concurrency int) *BatchGetter {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchGetter{storage: storage, concurrency: concurrency}
}

// Get fetches every key. Per-key failures (including ErrObjectNotFound) are
// reported in Errors; the returned error is non-nil only when ctx ends.
func (b *BatchGetter) Get(ctx context.Context, keys []string) (*BatchResult, error) {
	result := &BatchResult{
		Objects: make(map[string]Object, len(keys)),
		Errors:  make(map[string]error),
	}
	if len(keys) == 0 {
		return result, nil
	}

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, key := range keys {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return result, fmt.Errorf("semaphore acquire failed: %w", err)
		}

		wg.Add(1)
		go func(key string) {
			defer sem.Release(1)
			defer wg.Done()

			data, etag, err := b.storage.Get(ctx, key)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[key] = err
				return
			}
			result.Objects[key] = Object{Key: key, Data: data, ETag: etag}
		}(key)
	}

	wg.Wait()
	return result, nil
}

package arena

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Warmup runs count goroutines, at most concurrency at a time, each of
// which allocates one block through Alloc and frees it again. It exists
// to pay the OS reserve cost up front (e.g. at process start, before
// latency-sensitive allocations begin) rather than on an allocator's
// critical path.
//
// Because Alloc fills regions that already have backing memory before
// it reserves a new one, Warmup reserves a fresh region only when no
// populated region has a free block: on an empty table it reserves
// region 0 only, and on a table whose populated regions have room it
// reserves nothing. It does not reserve count distinct regions. It
// returns an error only if ctx is canceled while a goroutine is still
// waiting for a concurrency slot.
func (t *Table) Warmup(ctx context.Context, count int, concurrency int) error {
	if count <= 0 {
		return nil
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, concurrency)

	for i := 0; i < count; i++ {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			// Claiming a single (uncommitted) block in an unbacked region
			// makes it reserve its full backing span; release it
			// immediately so the region comes back to Warmup's caller empty.
			ptr, id := t.Alloc(BlockSize, false)
			if ptr != nil {
				t.Free(ptr, BlockSize, id)
			}

			return nil
		})
	}

	return g.Wait()
}

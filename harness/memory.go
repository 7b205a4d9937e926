package harness

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// DefaultSampleInterval is how often the child's memory is polled.
const DefaultSampleInterval = 50 * time.Millisecond

// maxTreeDepth bounds the descendant walk.
const maxTreeDepth = 8

// memorySampler polls the resident set size of a process and all of its
// descendants and remembers the largest total seen.
type memorySampler struct {
	peak    atomic.Uint64
	cancel  context.CancelFunc
	stopped chan struct{}
}

func startMemorySampler(pid int, interval time.Duration) *memorySampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &memorySampler{
		cancel:  cancel,
		stopped: make(chan struct{}),
	}

	go s.loop(ctx, int32(pid), interval)

	return s
}

func (s *memorySampler) loop(ctx context.Context, pid int32, interval time.Duration) {
	defer close(s.stopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var proc *process.Process

	for {
		if proc == nil {
			proc, _ = process.NewProcessWithContext(ctx, pid)
		}

		if proc != nil {
			s.observe(treeRSS(ctx, proc, 0))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *memorySampler) observe(rss uint64) {
	for {
		cur := s.peak.Load()
		if rss <= cur || s.peak.CompareAndSwap(cur, rss) {
			return
		}
	}
}

// Stop ends sampling and returns the peak in bytes.
func (s *memorySampler) Stop() uint64 {
	s.cancel()
	<-s.stopped

	return s.peak.Load()
}

// treeRSS sums the RSS of proc and its descendants. Processes that exit
// mid-walk count as zero.
func treeRSS(ctx context.Context, proc *process.Process, depth int) uint64 {
	var total uint64

	if info, err := proc.MemoryInfoWithContext(ctx); err == nil && info != nil {
		total = info.RSS
	}

	if depth >= maxTreeDepth {
		return total
	}

	children, err := proc.ChildrenWithContext(ctx)
	if err != nil {
		return total
	}

	for _, child := range children {
		total += treeRSS(ctx, child, depth+1)
	}

	return total
}

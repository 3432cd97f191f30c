package gojahost

import (
	"context"
	"runtime/metrics"
	"time"

	"go.uber.org/zap"
)

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// heapBytes samples live heap object bytes for the whole process
func heapBytes() uint64 {
	sample := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}

// watch interrupts the VM when ctx is done or, for bounded isolates, when
// heap growth passes the ceiling. The heap is shared by every isolate, so
// growth only counts while this isolate is the only one open on its host.
// The returned stop func waits for the watcher to exit.
func (i *Isolate) watch(ctx context.Context) (stop func()) {
	quit := make(chan struct{})
	exited := make(chan struct{})

	var (
		ticker   *time.Ticker
		tick     <-chan time.Time
		baseline uint64
	)
	if i.maxHeap > 0 {
		ticker = time.NewTicker(i.host.config.HeapPollInterval)
		tick = ticker.C
		baseline = heapBytes()
	}

	go func() {
		defer close(exited)
		if ticker != nil {
			defer ticker.Stop()
		}

		for {
			select {
			case <-quit:
				return
			case <-ctx.Done():
				i.vm.Interrupt(ctx.Err())
				return
			case <-tick:
				current := heapBytes()
				if i.host.Active() > 1 {
					baseline = current
					continue
				}
				if current > baseline && int64(current-baseline) > i.maxHeap {
					i.logger.Warn("Heap ceiling exceeded, interrupting script",
						zap.Uint64("heap_growth_bytes", current-baseline),
					)
					i.vm.Interrupt(ErrHeapExceeded)
					return
				}
			}
		}
	}()

	return func() {
		close(quit)
		<-exited
	}
}

package common

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/types"
)

// BaseMetrics provides common fields used across different metrics types
type BaseMetrics struct {
	TotalOperations int64
	SuccessfulOps   int64
	FailedOps       int64
	LastOperation   time.Time
	Mu              sync.RWMutex
}

// UpdateBaseMetrics updates common metrics fields
func (bm *BaseMetrics) UpdateBaseMetrics(success bool) {
	bm.Mu.Lock()
	defer bm.Mu.Unlock()

	bm.TotalOperations++
	if success {
		bm.SuccessfulOps++
	} else {
		bm.FailedOps++
	}
	bm.LastOperation = time.Now()
}

// GetBaseMetrics returns the common metrics as a map
func (bm *BaseMetrics) GetBaseMetrics() map[string]interface{} {
	bm.Mu.RLock()
	defer bm.Mu.RUnlock()

	return map[string]interface{}{
		"total_operations": bm.TotalOperations,
		"successful_ops":   bm.SuccessfulOps,
		"failed_ops":       bm.FailedOps,
		"last_operation":   bm.LastOperation,
	}
}

// FileOperationMetrics tracks performance for file operations
type FileOperationMetrics struct {
	BaseMetrics
	totalBytes atomic.Int64
}

// UpdateMetrics records one finished operation
func (fom *FileOperationMetrics) UpdateMetrics(success bool, bytesTransferred int64) {
	fom.UpdateBaseMetrics(success)
	if success && bytesTransferred > 0 {
		fom.totalBytes.Add(bytesTransferred)
	}
}

// GetMetrics returns file operation metrics as a map
func (fom *FileOperationMetrics) GetMetrics() map[string]interface{} {
	metrics := fom.GetBaseMetrics()
	metrics["total_bytes_transferred"] = fom.totalBytes.Load()
	return metrics
}

// ProgressTracker holds the counters of one run. The worker is the only
// writer; readers get a snapshot that may mix fields from adjacent updates.
type ProgressTracker struct {
	totalCount atomic.Int64
	totalSize  atomic.Int64
	doneCount  atomic.Int64
	doneSize   atomic.Int64
}

// NewProgressTracker seeds the totals.
func NewProgressTracker(totalCount, totalSize int64) *ProgressTracker {
	pt := &ProgressTracker{}
	pt.totalCount.Store(totalCount)
	pt.totalSize.Store(totalSize)
	return pt
}

// Advance adds finished items. Negative sizes count as zero.
func (pt *ProgressTracker) Advance(count, size int64) {
	if count > 0 {
		pt.doneCount.Add(count)
	}
	if size > 0 {
		pt.doneSize.Add(size)
	}
}

// Snapshot returns the current counters.
func (pt *ProgressTracker) Snapshot() types.Progress {
	return types.Progress{
		TotalCount: pt.totalCount.Load(),
		TotalSize:  pt.totalSize.Load(),
		DoneCount:  pt.doneCount.Load(),
		DoneSize:   pt.doneSize.Load(),
	}
}

package types

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one item produced by a directory scan
type Entry struct {
	RelPath string `json:"relpath"`
	IsDir   bool   `json:"is_dir"`
	Name    string `json:"name"`
	Ext     string `json:"ext,omitempty"`  // lowercased with leading dot, files only
	Size    int64  `json:"size,omitempty"` // -1 when the size could not be read
}

// ScanSummary aggregates a scan for previews
type ScanSummary struct {
	TotalCount int64            `json:"total_count"`
	TotalSize  int64            `json:"total_size"`
	DirCount   int              `json:"dir_count"`
	DirSizes   map[string]int64 `json:"dir_sizes"`
	FileCounts map[string]int   `json:"file_counts"` // direct children per directory
}

// Progress is a snapshot of the counters of a flatten run
type Progress struct {
	TotalCount int64 `json:"total_count"`
	TotalSize  int64 `json:"total_size"`
	DoneCount  int64 `json:"done_count"`
	DoneSize   int64 `json:"done_size"`
}

// RemainingCount returns the files still to be processed
func (p Progress) RemainingCount() int64 {
	if r := p.TotalCount - p.DoneCount; r > 0 {
		return r
	}
	return 0
}

// RemainingSize returns the bytes still to be processed
func (p Progress) RemainingSize() int64 {
	if r := p.TotalSize - p.DoneSize; r > 0 {
		return r
	}
	return 0
}

// EventType defines the kinds of events a run emits
type EventType string

const (
	EventLog      EventType = "log"
	EventProgress EventType = "progress"
	EventDone     EventType = "done"
)

// LogLevel is the severity of a log event
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Event is emitted by a running pipeline to its caller
type Event struct {
	Type      EventType      `json:"type"`
	RunID     uuid.UUID      `json:"run_id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level,omitempty"`
	Message   string         `json:"message,omitempty"`
	Progress  *Progress      `json:"progress,omitempty"`
	Flatten   *FlattenResult `json:"flatten,omitempty"`
	Restore   *RestoreResult `json:"restore,omitempty"`
	Err       error          `json:"-"`
}

// EmitFunc receives events from a pipeline
type EmitFunc func(Event)

// FlattenResult is the terminal summary of a flatten run
type FlattenResult struct {
	RunID        uuid.UUID     `json:"run_id"`
	SourcePath   string        `json:"source_path"`
	TargetPath   string        `json:"target_path"`
	Processed    int           `json:"processed"`
	Zipped       int           `json:"zipped"`
	Errors       int           `json:"errors"`
	Skipped      int           `json:"skipped"`
	Irreversible int           `json:"irreversible"`
	Renamed      int           `json:"renamed"`
	ManifestPath string        `json:"manifest_path,omitempty"`
	Duration     time.Duration `json:"duration"`
	Canceled     bool          `json:"canceled,omitempty"`
}

// RestoreResult is the terminal summary of a restore run
type RestoreResult struct {
	RunID      uuid.UUID     `json:"run_id"`
	SourcePath string        `json:"source_path"`
	TargetPath string        `json:"target_path"`
	Restored   int           `json:"restored"`
	Unresolved int           `json:"unresolved"`
	Errors     int           `json:"errors"`
	Duration   time.Duration `json:"duration"`
	Canceled   bool          `json:"canceled,omitempty"`
}

// RestorePreviewItem shows where a flat file would go under each method
type RestorePreviewItem struct {
	FlatName     string `json:"flat_name"`
	ManifestPath string `json:"manifest_path,omitempty"`
	GuessPath    string `json:"guess_path,omitempty"`
	DecodedPath  string `json:"decoded_path,omitempty"`
	Archive      bool   `json:"archive,omitempty"`
}

// ScanReport is the outcome of a read-only scan of a source directory
type ScanReport struct {
	Root        string      `json:"root"`
	Entries     []Entry     `json:"entries"`
	Recommended []string    `json:"recommended_zip_targets,omitempty"`
	Summary     ScanSummary `json:"summary"`
}

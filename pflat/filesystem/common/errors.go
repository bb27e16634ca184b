package common

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Common error types used across filesystem packages
var (
	ErrPathEmpty      = errors.New("path cannot be empty")
	ErrPathTooLong    = errors.New("path too long (max 4096 characters)")
	ErrPathInvalid    = errors.New("path contains invalid characters")
	ErrSourceNotExist = errors.New("source does not exist")
	ErrDestNotExist   = errors.New("destination does not exist")
	ErrNotDirectory   = errors.New("path is not a directory")
	ErrPathEscapes    = errors.New("path escapes the destination root")
	ErrRunnerBusy     = errors.New("a run is already in progress")
	ErrUnresolved     = errors.New("flat name not found in manifest")
)

// ValidationError reports a run parameter that failed validation before any I/O.
type ValidationError struct {
	Field string
	Path  string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ItemKind classifies a per-item failure.
type ItemKind string

const (
	KindCopy       ItemKind = "copy"
	KindArchive    ItemKind = "archive"
	KindExtract    ItemKind = "extract"
	KindResolve    ItemKind = "resolve"
	KindUnresolved ItemKind = "unresolved"
	KindPersist    ItemKind = "persist"
	KindRemove     ItemKind = "remove"
)

// ItemError is a failure on one item of a run. The run keeps going.
type ItemError struct {
	Kind ItemKind
	Src  string
	Dst  string
	Err  error
}

func (e *ItemError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Src != "" {
		b.WriteString(" ")
		b.WriteString(e.Src)
	}
	if e.Dst != "" {
		b.WriteString(" -> ")
		b.WriteString(e.Dst)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ItemError) Unwrap() error { return e.Err }

// NewItemError builds an ItemError.
func NewItemError(kind ItemKind, src, dst string, err error) *ItemError {
	return &ItemError{Kind: kind, Src: src, Dst: dst, Err: err}
}

// ValidateDirectoryExists validates that path exists and is a directory.
// missing is the sentinel wrapped when the path does not exist.
func ValidateDirectoryExists(field, path string, missing error) error {
	if strings.TrimSpace(path) == "" {
		return &ValidationError{Field: field, Err: ErrPathEmpty}
	}
	if strings.Contains(path, "\x00") {
		return &ValidationError{Field: field, Path: path, Err: ErrPathInvalid}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ValidationError{Field: field, Path: path, Err: missing}
		}
		return &ValidationError{Field: field, Path: path, Err: err}
	}
	if !info.IsDir() {
		return &ValidationError{Field: field, Path: path, Err: ErrNotDirectory}
	}
	return nil
}

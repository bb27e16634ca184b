// Package filemap persists the original-path to flat-name records of a run.
package filemap

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Header is the first row of a tabular file map.
var Header = []string{"original_path", "flattened_name"}

var (
	ErrBadHeader     = errors.New("file map header mismatch")
	ErrBadRow        = errors.New("file map row has the wrong number of fields")
	ErrUnknownFormat = errors.New("unknown file map format")
)

// Record links one produced destination entry to its source relpath.
type Record struct {
	OriginalPath  string `json:"original_path"`
	FlattenedName string `json:"flattened_name"`
}

// Format is the on-disk layout of a file map
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// CompanionName returns the structured map written next to manifest:
// the same stem with a .json extension. A .json manifest is its own
// companion.
func CompanionName(manifest string) string {
	ext := filepath.Ext(manifest)
	if strings.EqualFold(ext, ".json") {
		return manifest
	}
	return strings.TrimSuffix(manifest, ext) + ".json"
}

// Save writes records to path in the format implied by its extension.
func Save(path string, records []Record) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatJSON:
		return SaveJSON(path, records)
	default:
		return SaveCSV(path, records)
	}
}

// Load reads records from path in the format implied by its extension.
func Load(path string) ([]Record, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatJSON:
		return LoadJSON(path)
	default:
		return LoadCSV(path)
	}
}

// SaveCSV writes the tabular file map.
func SaveCSV(path string, records []Record) error {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

// WriteCSV encodes records with a header row.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write file map header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write([]string{r.OriginalPath, r.FlattenedName}); err != nil {
			return fmt.Errorf("failed to write file map row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// LoadCSV reads the tabular file map.
func LoadCSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV decodes a tabular file map. A leading UTF-8 BOM is tolerated.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err == io.EOF {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file map header: %w", err)
	}
	if len(head) > 0 {
		head[0] = strings.TrimPrefix(head[0], "\ufeff")
	}
	if len(head) != len(Header) || head[0] != Header[0] || head[1] != Header[1] {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, head)
	}

	records := make([]Record, 0)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read file map: %w", err)
		}
		if len(row) != len(Header) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d", ErrBadRow, line)
		}
		records = append(records, Record{OriginalPath: row[0], FlattenedName: row[1]})
	}
	return records, nil
}

// SaveJSON writes the structured file map.
func SaveJSON(path string, records []Record) error {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, records); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

// WriteJSON encodes records as an indented array.
func WriteJSON(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode file map: %w", err)
	}
	return nil
}

// LoadJSON reads the structured file map.
func LoadJSON(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadJSON(f)
}

// ReadJSON decodes a structured file map.
func ReadJSON(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode file map: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Index maps flattened names to original paths. Later duplicates win.
func Index(records []Record) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		out[r.FlattenedName] = r.OriginalPath
	}
	return out
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", tmpName, path, err)
	}
	return nil
}

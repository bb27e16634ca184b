package options

import (
	"fmt"
	"strings"

	internal "github.com/ZanzyTHEbar/path-flattener/pflat"
	"github.com/ZanzyTHEbar/path-flattener/pflat/codec"
)

// NamingMode selects how flat names are derived from relative paths
type NamingMode string

const (
	NamingEncoded  NamingMode = "encoded"  // reversible codec names
	NamingBasename NamingMode = "basename" // bare file names, deduplicated
)

// ParseNamingMode maps a config value to a NamingMode. Blank means encoded.
func ParseNamingMode(s string) (NamingMode, error) {
	switch NamingMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", NamingEncoded:
		return NamingEncoded, nil
	case NamingBasename:
		return NamingBasename, nil
	default:
		return "", fmt.Errorf("unknown naming mode: %q", s)
	}
}

// RestoreMethod selects how a flat name is mapped back to a path
type RestoreMethod string

const (
	MethodManifest RestoreMethod = "manifest" // exact lookup in the file map
	MethodGuess    RestoreMethod = "guess"    // legacy underscore/percent scheme
	MethodDecode   RestoreMethod = "decode"   // codec inverse, no file map needed
)

// ParseRestoreMethod maps a config value to a RestoreMethod. Blank means manifest.
func ParseRestoreMethod(s string) (RestoreMethod, error) {
	switch RestoreMethod(strings.ToLower(strings.TrimSpace(s))) {
	case "", MethodManifest, "filemap":
		return MethodManifest, nil
	case MethodGuess:
		return MethodGuess, nil
	case MethodDecode, "codec":
		return MethodDecode, nil
	default:
		return "", fmt.Errorf("unknown restore method: %q", s)
	}
}

// CopyOptions configures a single file copy
type CopyOptions struct {
	PreservePerms bool // Preserve file permissions
	PreserveTimes bool // Preserve modification times
}

// DefaultCopyOptions returns sensible defaults for copy operations
func DefaultCopyOptions() CopyOptions {
	return CopyOptions{
		PreservePerms: true,
		PreserveTimes: true,
	}
}

// FlattenOptions configures a flatten run
type FlattenOptions struct {
	SourceDir         string       // Tree to flatten
	DestDir           string       // Flat output directory, must exist
	ZipTargets        []string     // Relative directories archived as a whole
	ExcludeTargets    []string     // Relative paths skipped with everything below them
	ExcludeExtensions []string     // File extensions skipped, dot optional
	ExcludePatterns   []string     // File name substrings skipped by the scan
	IgnoreFile        string       // Gitignore-style file read from SourceDir
	Codec             codec.Config // Tokens of the path codec
	Naming            NamingMode   // How flat names are derived
	ManifestName      string       // File map written into DestDir
	WriteJSONManifest bool         // Also write a JSON file map next to the CSV
	PreservePerms     bool         // Preserve file permissions
	PreserveTimes     bool         // Preserve modification times
	RemoveSource      bool         // Remove source after copy (acts like move)
}

// RestoreOptions configures a restore run
type RestoreOptions struct {
	SourceDir    string        // Flat directory produced by a flatten run
	DestDir      string        // Root of the rebuilt tree, must exist
	Method       RestoreMethod // manifest, guess or decode
	Unzip        bool          // Extract archives instead of copying them
	ManifestName string        // File map read from SourceDir
	Codec        codec.Config  // Tokens of the path codec
}

// CopyOptions returns the per-file copy settings of the run.
func (o FlattenOptions) CopyOptions() CopyOptions {
	return CopyOptions{PreservePerms: o.PreservePerms, PreserveTimes: o.PreserveTimes}
}

// DefaultFlattenOptions returns sensible defaults for flatten runs
func DefaultFlattenOptions() FlattenOptions {
	return FlattenOptions{
		ExcludeExtensions: append([]string(nil), internal.DefaultExcludeExtensions...),
		ExcludePatterns:   append([]string(nil), internal.DefaultExcludePatterns...),
		IgnoreFile:        internal.DefaultIgnoreFile,
		Codec:             codec.DefaultConfig(),
		Naming:            NamingEncoded,
		ManifestName:      internal.DefaultManifestName,
		PreservePerms:     true,
		PreserveTimes:     true,
	}
}

// DefaultRestoreOptions returns sensible defaults for restore runs
func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{
		Method:       MethodManifest,
		Unzip:        true,
		ManifestName: internal.DefaultManifestName,
		Codec:        codec.DefaultConfig(),
	}
}

// ScanOptions configures a preview scan
type ScanOptions struct {
	ExcludePatterns []string // File name substrings skipped
	IgnoreFile      string   // Gitignore-style file read from the root
	ZipExtensions   []string // Extensions that make a directory a zip candidate
}

// DefaultScanOptions returns sensible defaults for scans
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		ExcludePatterns: append([]string(nil), internal.DefaultExcludePatterns...),
		IgnoreFile:      internal.DefaultIgnoreFile,
		ZipExtensions:   append([]string(nil), internal.DefaultZipExtensions...),
	}
}

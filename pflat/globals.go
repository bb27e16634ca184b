package internal

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// DefaultAppName is used for config directories and env prefixes
	DefaultAppName        = "pflat"
	DefaultAppCMDShortCut = "pflat"
	DefaultConfigPath     = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultGlobalConfig   = filepath.Join(DefaultConfigPath, "config.yaml")
	DefaultEnvPrefix      = "PFLAT"

	// Manifest defaults
	DefaultManifestName     = "filemap.csv"
	DefaultJSONManifestName = "filemap.json"
	DefaultIgnoreFile       = ".pflatignore"

	// DefaultExcludePatterns are OS artifacts that never make it into a scan
	DefaultExcludePatterns = []string{
		"Thumbs.db", ".DS_Store", ".tmp", ".swp", "~$", "desktop.ini",
	}

	// DefaultZipExtensions flag a directory for whole-subtree archiving
	DefaultZipExtensions = []string{".ico", ".pdf", ".asw"}

	// DefaultExcludeExtensions are skipped by the flatten pipeline
	DefaultExcludeExtensions = []string{".tmp", ".swp"}
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// NewLogger builds a logger for the given level and output format.
// Unknown levels fall back to info; format "console" writes human readable lines.
func NewLogger(w io.Writer, level, format string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

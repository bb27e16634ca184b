package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	internal "github.com/ZanzyTHEbar/path-flattener/pflat"
	"github.com/ZanzyTHEbar/path-flattener/pflat/codec"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/options"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Codec    CodecConfig    `mapstructure:"codec"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Flatten  FlattenConfig  `mapstructure:"flatten"`
	Manifest ManifestConfig `mapstructure:"manifest"`
	Restore  RestoreConfig  `mapstructure:"restore"`
	Log      LogConfig      `mapstructure:"log"`
}

// CodecConfig stores the flat name tokens.
type CodecConfig struct {
	PathSep    string `mapstructure:"pathSep"`
	PathSepEsc string `mapstructure:"pathSepEsc"`
	EscSeq     string `mapstructure:"escSeq"`
}

// ScanConfig stores scan filters and zip recommendations.
type ScanConfig struct {
	ExcludePatterns []string `mapstructure:"excludePatterns"`
	ZipExtensions   []string `mapstructure:"zipExtensions"`
	IgnoreFile      string   `mapstructure:"ignoreFile"`
}

// FlattenConfig stores flatten behaviour.
type FlattenConfig struct {
	ExcludeExtensions []string `mapstructure:"excludeExtensions"`
	Naming            string   `mapstructure:"naming"`
	WriteJSON         bool     `mapstructure:"writeJSON"`
	PreservePerms     bool     `mapstructure:"preservePerms"`
	PreserveTimes     bool     `mapstructure:"preserveTimes"`
}

// ManifestConfig stores the file map name.
type ManifestConfig struct {
	Name string `mapstructure:"name"`
}

// RestoreConfig stores restore behaviour.
type RestoreConfig struct {
	Method string `mapstructure:"method"`
	Unzip  bool   `mapstructure:"unzip"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NewViper returns a viper instance with every default set and environment
// overrides enabled: codec.pathSep is read from PFLAT_CODEC_PATHSEP.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("codec.pathSep", codec.DefaultPathSep)
	v.SetDefault("codec.pathSepEsc", codec.DefaultPathSepEsc)
	v.SetDefault("codec.escSeq", codec.DefaultEscSeq)

	v.SetDefault("scan.excludePatterns", internal.DefaultExcludePatterns)
	v.SetDefault("scan.zipExtensions", internal.DefaultZipExtensions)
	v.SetDefault("scan.ignoreFile", internal.DefaultIgnoreFile)

	v.SetDefault("flatten.excludeExtensions", internal.DefaultExcludeExtensions)
	v.SetDefault("flatten.naming", string(options.NamingEncoded))
	v.SetDefault("flatten.writeJSON", false)
	v.SetDefault("flatten.preservePerms", true)
	v.SetDefault("flatten.preserveTimes", true)

	v.SetDefault("manifest.name", internal.DefaultManifestName)

	v.SetDefault("restore.method", string(options.MethodManifest))
	v.SetDefault("restore.unzip", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// LoadConfig reads configuration from file or environment variables.
// An empty configPath searches ./config.yaml and the user config directory;
// a missing file there is not an error.
func LoadConfig(configPath string) (*Config, error) {
	return Load(NewViper(), configPath)
}

// Load reads the configuration into v, which may already carry bound flags.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

// LoadDotEnv loads environment variables from the given .env files, or
// ./.env when none are given. Missing files are ignored; variables already
// set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ParseLines splits newline-separated input into trimmed, non-empty lines.
func ParseLines(s string) []string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// CodecConfig returns the codec tokens.
func (c *Config) CodecConfig() codec.Config {
	return codec.Config{
		PathSep:    c.Codec.PathSep,
		PathSepEsc: c.Codec.PathSepEsc,
		EscSeq:     c.Codec.EscSeq,
	}
}

// ScanOptions returns the scan options for this configuration.
func (c *Config) ScanOptions() options.ScanOptions {
	return options.ScanOptions{
		ExcludePatterns: c.Scan.ExcludePatterns,
		IgnoreFile:      c.Scan.IgnoreFile,
		ZipExtensions:   c.Scan.ZipExtensions,
	}
}

// FlattenOptions returns flatten options for src and dst. Zip and exclude
// targets are per run and left empty.
func (c *Config) FlattenOptions(src, dst string) options.FlattenOptions {
	return options.FlattenOptions{
		SourceDir:         src,
		DestDir:           dst,
		ExcludeExtensions: c.Flatten.ExcludeExtensions,
		ExcludePatterns:   c.Scan.ExcludePatterns,
		IgnoreFile:        c.Scan.IgnoreFile,
		Codec:             c.CodecConfig(),
		Naming:            options.NamingMode(c.Flatten.Naming),
		ManifestName:      c.Manifest.Name,
		WriteJSONManifest: c.Flatten.WriteJSON,
		PreservePerms:     c.Flatten.PreservePerms,
		PreserveTimes:     c.Flatten.PreserveTimes,
	}
}

// RestoreOptions returns restore options for src and dst.
func (c *Config) RestoreOptions(src, dst string) options.RestoreOptions {
	return options.RestoreOptions{
		SourceDir:    src,
		DestDir:      dst,
		Method:       options.RestoreMethod(c.Restore.Method),
		Unzip:        c.Restore.Unzip,
		ManifestName: c.Manifest.Name,
		Codec:        c.CodecConfig(),
	}
}

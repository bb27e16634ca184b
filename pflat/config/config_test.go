package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	internal "github.com/ZanzyTHEbar/path-flattener/pflat"
	"github.com/ZanzyTHEbar/path-flattener/pflat/codec"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/options"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	suite.tempDir = suite.T().TempDir()
	require.NoError(suite.T(), os.Chdir(suite.tempDir))
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		_ = os.Chdir(suite.origDir)
	}
}

func (suite *ConfigTestSuite) writeFile(name, content string) string {
	path := filepath.Join(suite.tempDir, name)
	require.NoError(suite.T(), os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), codec.DefaultConfig(), cfg.CodecConfig())
	assert.Equal(suite.T(), internal.DefaultExcludePatterns, cfg.Scan.ExcludePatterns)
	assert.Equal(suite.T(), internal.DefaultZipExtensions, cfg.Scan.ZipExtensions)
	assert.Equal(suite.T(), internal.DefaultIgnoreFile, cfg.Scan.IgnoreFile)
	assert.Equal(suite.T(), internal.DefaultExcludeExtensions, cfg.Flatten.ExcludeExtensions)
	assert.Equal(suite.T(), "encoded", cfg.Flatten.Naming)
	assert.False(suite.T(), cfg.Flatten.WriteJSON)
	assert.True(suite.T(), cfg.Flatten.PreservePerms)
	assert.True(suite.T(), cfg.Flatten.PreserveTimes)
	assert.Equal(suite.T(), internal.DefaultManifestName, cfg.Manifest.Name)
	assert.Equal(suite.T(), "manifest", cfg.Restore.Method)
	assert.True(suite.T(), cfg.Restore.Unzip)
	assert.Equal(suite.T(), "info", cfg.Log.Level)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configFile := suite.writeFile("custom.yaml", `
codec:
  pathSep: "--"
  pathSepEsc: "---"
  escSeq: "-DASH-"
scan:
  zipExtensions: [".psd"]
flatten:
  naming: basename
  writeJSON: true
manifest:
  name: map.csv
restore:
  method: guess
  unzip: false
log:
  level: debug
  format: json
`)

	cfg, err := LoadConfig(configFile)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), codec.Config{PathSep: "--", PathSepEsc: "---", EscSeq: "-DASH-"}, cfg.CodecConfig())
	assert.Equal(suite.T(), []string{".psd"}, cfg.Scan.ZipExtensions)
	assert.Equal(suite.T(), internal.DefaultExcludePatterns, cfg.Scan.ExcludePatterns)
	assert.Equal(suite.T(), "basename", cfg.Flatten.Naming)
	assert.True(suite.T(), cfg.Flatten.WriteJSON)
	assert.Equal(suite.T(), "map.csv", cfg.Manifest.Name)
	assert.Equal(suite.T(), "guess", cfg.Restore.Method)
	assert.False(suite.T(), cfg.Restore.Unzip)
	assert.Equal(suite.T(), "json", cfg.Log.Format)
}

func (suite *ConfigTestSuite) TestLoadConfigFromWorkingDirectory() {
	suite.writeFile("config.yaml", "manifest:\n  name: local.csv\n")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "local.csv", cfg.Manifest.Name)
}

func (suite *ConfigTestSuite) TestEnvironmentOverrides() {
	suite.T().Setenv("PFLAT_RESTORE_METHOD", "decode")
	suite.T().Setenv("PFLAT_FLATTEN_WRITEJSON", "true")
	suite.T().Setenv("PFLAT_SCAN_ZIPEXTENSIONS", ".a,.b")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "decode", cfg.Restore.Method)
	assert.True(suite.T(), cfg.Flatten.WriteJSON)
	assert.Equal(suite.T(), []string{".a", ".b"}, cfg.Scan.ZipExtensions)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidFile() {
	cfg, err := LoadConfig(filepath.Join(suite.tempDir, "missing.yaml"))
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigMalformedFile() {
	configFile := suite.writeFile("malformed.yaml", `
scan:
  zipExtensions: [unclosed bracket
`)

	cfg, err := LoadConfig(configFile)
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadDotEnv() {
	suite.T().Setenv("PFLAT_LOG_LEVEL", "warn")
	suite.writeFile(".env", "PFLAT_LOG_FORMAT=json\nPFLAT_LOG_LEVEL=debug\n")
	suite.T().Cleanup(func() { os.Unsetenv("PFLAT_LOG_FORMAT") })

	require.NoError(suite.T(), LoadDotEnv())

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "json", cfg.Log.Format)
	assert.Equal(suite.T(), "warn", cfg.Log.Level)
}

func (suite *ConfigTestSuite) TestLoadDotEnvMissingFile() {
	assert.NoError(suite.T(), LoadDotEnv(filepath.Join(suite.tempDir, "nope.env")))
}

func (suite *ConfigTestSuite) TestOptionsFromConfig() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	fo := cfg.FlattenOptions("src", "dst")
	assert.Equal(suite.T(), "src", fo.SourceDir)
	assert.Equal(suite.T(), "dst", fo.DestDir)
	assert.Equal(suite.T(), options.NamingEncoded, fo.Naming)
	assert.Equal(suite.T(), internal.DefaultManifestName, fo.ManifestName)
	assert.Equal(suite.T(), codec.DefaultConfig(), fo.Codec)
	assert.Equal(suite.T(), options.CopyOptions{PreservePerms: true, PreserveTimes: true}, fo.CopyOptions())

	ro := cfg.RestoreOptions("flat", "out")
	assert.Equal(suite.T(), options.MethodManifest, ro.Method)
	assert.True(suite.T(), ro.Unzip)

	so := cfg.ScanOptions()
	assert.Equal(suite.T(), internal.DefaultZipExtensions, so.ZipExtensions)
}

func TestParseLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", []string{}},
		{"single", ".pdf", []string{".pdf"}},
		{"blank lines and spaces", "\n .pdf \n\n.ico\n", []string{".pdf", ".ico"}},
		{"crlf", "Thumbs.db\r\n.DS_Store\r\n", []string{"Thumbs.db", ".DS_Store"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLines(tt.in))
		})
	}
}

// BenchmarkLoadConfig benchmarks config loading performance
func BenchmarkLoadConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := LoadConfig(""); err != nil {
			b.Fatal(err)
		}
	}
}

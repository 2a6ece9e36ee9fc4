// Package config loads bpm4b configuration from command-line flags,
// environment variables, a .env file and an optional TOML file.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/bpm4b/bpm4b/internal/chapters"
)

// DefaultConfigFile is read from the working directory when no --config is given.
const DefaultConfigFile = "bpm4b.toml"

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Server  ServerConfig
	Convert ConvertConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host               string
	Port               int
	ReadTimeout        time.Duration // default: 5m, uploads can be large
	WriteTimeout       time.Duration // default: 0 (disabled), conversions stream back late
	IdleTimeout        time.Duration // default: 60s
	CORSAllowedOrigins []string
	RateLimitPerMinute int // conversions per client IP; 0 disables limiting
	RateLimitBurst     int
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ConvertConfig holds encoder and scratch-space configuration.
type ConvertConfig struct {
	// FFmpegPath overrides PATH lookup of the ffmpeg binary.
	FFmpegPath string
	Codec      string
	Bitrate    string
	// Timeout bounds a single encoder run. 0 disables the limit.
	Timeout       time.Duration
	ScratchPath   string
	ScratchMaxAge time.Duration
	ChapterPolicy chapters.Policy
	// RequireMP3 rejects uploads whose content is not MPEG audio.
	RequireMP3 bool
}

// Overrides carries command-line flag values. Empty strings and nil
// pointers mean "not set" and fall through to the next source.
type Overrides struct {
	Environment   string
	LogLevel      string
	Host          string
	Port          string
	FFmpegPath    string
	ScratchPath   string
	ChapterPolicy string
	Timeout       string
}

// Options selects the configuration sources.
type Options struct {
	// ConfigFile is a TOML file. Empty means DefaultConfigFile if it exists.
	ConfigFile string
	// EnvFile is a .env file. Missing files are ignored.
	EnvFile   string
	Overrides Overrides
}

// fileConfig mirrors the TOML layout.
type fileConfig struct {
	App struct {
		Environment string `toml:"environment"`
	} `toml:"app"`
	Logger struct {
		Level string `toml:"level"`
	} `toml:"logger"`
	Server struct {
		Host               string   `toml:"host"`
		Port               *int     `toml:"port"`
		ReadTimeout        string   `toml:"read_timeout"`
		WriteTimeout       string   `toml:"write_timeout"`
		IdleTimeout        string   `toml:"idle_timeout"`
		CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
		RateLimitPerMinute *int     `toml:"rate_limit_per_minute"`
		RateLimitBurst     *int     `toml:"rate_limit_burst"`
	} `toml:"server"`
	Convert struct {
		FFmpegPath    string `toml:"ffmpeg_path"`
		Codec         string `toml:"codec"`
		Bitrate       string `toml:"bitrate"`
		Timeout       string `toml:"timeout"`
		ScratchPath   string `toml:"scratch_path"`
		ScratchMaxAge string `toml:"scratch_max_age"`
		ChapterPolicy string `toml:"chapter_policy"`
		RequireMP3    *bool  `toml:"require_mp3"`
	} `toml:"convert"`
}

// Load builds the configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. TOML config file.
// 5. Default values (lowest priority).
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := loadEnvFile(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	file, err := loadConfigFile(opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	o := opts.Overrides
	fs := file.Server
	fc := file.Convert

	port, err := getIntConfigValue(o.Port, "SERVER_PORT", intString(fs.Port), 5000)
	if err != nil {
		return nil, err
	}
	perMinute, err := getIntConfigValue("", "RATE_LIMIT_PER_MINUTE", intString(fs.RateLimitPerMinute), 10)
	if err != nil {
		return nil, err
	}
	burst, err := getIntConfigValue("", "RATE_LIMIT_BURST", intString(fs.RateLimitBurst), 5)
	if err != nil {
		return nil, err
	}
	requireMP3, err := getBoolConfigValue("", "REQUIRE_MP3", boolString(fc.RequireMP3), true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(o.Environment, "ENV", file.App.Environment, "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(o.LogLevel, "LOG_LEVEL", file.Logger.Level, "info"),
		},
		Server: ServerConfig{
			Host:               getConfigValue(o.Host, "SERVER_HOST", fs.Host, "0.0.0.0"),
			Port:               port,
			CORSAllowedOrigins: splitList(getConfigValue("", "CORS_ALLOWED_ORIGINS", strings.Join(fs.CORSAllowedOrigins, ","), "*")),
			RateLimitPerMinute: perMinute,
			RateLimitBurst:     burst,
		},
		Convert: ConvertConfig{
			FFmpegPath:  getConfigValue(o.FFmpegPath, "FFMPEG_PATH", fc.FFmpegPath, ""),
			Codec:       getConfigValue("", "CONVERT_CODEC", fc.Codec, "aac"),
			Bitrate:     getConfigValue("", "CONVERT_BITRATE", fc.Bitrate, "64k"),
			ScratchPath: getConfigValue(o.ScratchPath, "SCRATCH_PATH", fc.ScratchPath, ""),
			RequireMP3:  requireMP3,
		},
	}

	durations := []struct {
		dst                       *time.Duration
		flagValue, envKey, fileV  string
		defaultValue, description string
	}{
		{&cfg.Server.ReadTimeout, "", "SERVER_READ_TIMEOUT", fs.ReadTimeout, "5m", "read timeout"},
		{&cfg.Server.WriteTimeout, "", "SERVER_WRITE_TIMEOUT", fs.WriteTimeout, "0s", "write timeout"},
		{&cfg.Server.IdleTimeout, "", "SERVER_IDLE_TIMEOUT", fs.IdleTimeout, "60s", "idle timeout"},
		{&cfg.Convert.Timeout, o.Timeout, "CONVERT_TIMEOUT", fc.Timeout, "30m", "convert timeout"},
		{&cfg.Convert.ScratchMaxAge, "", "SCRATCH_MAX_AGE", fc.ScratchMaxAge, "6h", "scratch max age"},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.fileV, d.defaultValue)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.description, raw, err)
		}
		*d.dst = parsed
	}

	policyName := getConfigValue(o.ChapterPolicy, "CHAPTER_POLICY", fc.ChapterPolicy, string(chapters.PolicyPassthrough))
	policy, err := chapters.ParsePolicy(policyName)
	if err != nil {
		return nil, err
	}
	cfg.Convert.ChapterPolicy = policy

	if err := cfg.expandScratchPath(); err != nil {
		return nil, fmt.Errorf("invalid scratch path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.RateLimitPerMinute < 0 || c.Server.RateLimitBurst < 0 {
		return errors.New("rate limit values cannot be negative")
	}
	if c.Server.RateLimitPerMinute > 0 && c.Server.RateLimitBurst == 0 {
		return errors.New("rate limit burst must be at least 1 when rate limiting is enabled")
	}

	if c.Convert.Codec == "" || c.Convert.Bitrate == "" {
		return errors.New("codec and bitrate cannot be empty")
	}
	if c.Convert.Timeout < 0 {
		return errors.New("convert timeout cannot be negative")
	}
	if c.Convert.ScratchPath == "" {
		return errors.New("scratch path cannot be empty after expansion")
	}
	if c.Convert.ScratchMaxAge <= 0 {
		return fmt.Errorf("scratch max age must be positive, got %s", c.Convert.ScratchMaxAge)
	}

	return nil
}

// IsProduction reports whether the app runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func loadConfigFile(path string) (fileConfig, error) {
	var cfg fileConfig

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	f, err := os.Open(path) //#nosec G304 -- config path comes from the operator
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandScratchPath defaults to {tmp}/bpm4b.
func (c *Config) expandScratchPath() error {
	expanded, err := expandPath(c.Convert.ScratchPath, filepath.Join(os.TempDir(), "bpm4b"))
	if err != nil {
		return err
	}
	c.Convert.ScratchPath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var,
// config file, or default.
func getConfigValue(flagValue, envKey, fileValue, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	if fileValue != "" {
		return fileValue
	}
	return defaultValue
}

// getBoolConfigValue accepts true/false, 1/0 and yes/no (case-insensitive).
func getBoolConfigValue(flagValue, envKey, fileValue string, defaultValue bool) (bool, error) {
	strValue := strings.ToLower(getConfigValue(flagValue, envKey, fileValue, ""))
	switch strValue {
	case "":
		return defaultValue, nil
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean for %s: %q", envKey, strValue)
	}
}

func getIntConfigValue(flagValue, envKey, fileValue string, defaultValue int) (int, error) {
	strValue := getConfigValue(flagValue, envKey, fileValue, "")
	if strValue == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(strValue))
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %q", envKey, strValue)
	}
	return n, nil
}

func intString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func boolString(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Real environment variables win over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}

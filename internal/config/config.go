// Package config provides configuration management for the reelsmith agent.
// Configuration is loaded from environment variables (optionally seeded from
// a .env file) with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort     = 8797
	DefaultLogLevel = "info"
	DefaultDataDir  = ".reelsmith"

	// Environment variable names
	EnvPort              = "REELSMITH_PORT"
	EnvLogLevel          = "REELSMITH_LOG_LEVEL"
	EnvDataDir           = "REELSMITH_DATA_DIR"
	EnvHeadless          = "REELSMITH_HEADLESS"
	EnvProfile           = "REELSMITH_PROFILE"
	EnvFFmpeg            = "REELSMITH_FFMPEG"
	EnvFFprobe           = "REELSMITH_FFPROBE"
	EnvKeepIntermediates = "REELSMITH_KEEP_INTERMEDIATES"

	// Collaborator credentials
	EnvPexelsAPIKey  = "PEXELS_API_KEY"
	EnvPexelsBaseURL = "PEXELS_BASE_URL"
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"

	// Database filename
	DBFilename = "reelsmith.db"

	DefaultFFmpeg        = "ffmpeg"
	DefaultFFprobe       = "ffprobe"
	DefaultPexelsBaseURL = "https://api.pexels.com"

	DefaultDoctorTimeout = 30       // seconds
	DefaultRenderTimeout = 60 * 60  // one hour per render
	DotEnvFilename       = ".env"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	RendersDir() string
	WorkDir() string
	ClipsDir() string
	Headless() bool
	ProfilePath() string
	FFmpegPath() string
	FFprobePath() string
	KeepIntermediates() bool
	PexelsAPIKey() string
	PexelsBaseURL() string
	OpenAIAPIKey() string
	DoctorTimeout() time.Duration
	RenderTimeout() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	headless bool
	profile  string

	ffmpeg            string
	ffprobe           string
	keepIntermediates bool

	pexelsAPIKey  string
	pexelsBaseURL string
	openAIAPIKey  string
}

// New creates a new EnvConfig with defaults and environment variable overrides.
// A .env file in the working directory is loaded first; variables already set
// in the process environment take precedence over it.
func New() (*EnvConfig, error) {
	if err := LoadDotEnv(DotEnvFilename); err != nil {
		return nil, err
	}

	cfg := &EnvConfig{
		port:          DefaultPort,
		logLevel:      DefaultLogLevel,
		dataDir:       defaultDataDir(),
		ffmpeg:        DefaultFFmpeg,
		ffprobe:       DefaultFFprobe,
		pexelsBaseURL: DefaultPexelsBaseURL,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	headless, err := envBool(EnvHeadless)
	if err != nil {
		return nil, err
	}
	cfg.headless = headless

	keep, err := envBool(EnvKeepIntermediates)
	if err != nil {
		return nil, err
	}
	cfg.keepIntermediates = keep

	cfg.profile = os.Getenv(EnvProfile)

	if v := os.Getenv(EnvFFmpeg); v != "" {
		cfg.ffmpeg = v
	}
	if v := os.Getenv(EnvFFprobe); v != "" {
		cfg.ffprobe = v
	}

	cfg.pexelsAPIKey = os.Getenv(EnvPexelsAPIKey)
	if v := os.Getenv(EnvPexelsBaseURL); v != "" {
		cfg.pexelsBaseURL = v
	}
	cfg.openAIAPIKey = os.Getenv(EnvOpenAIAPIKey)

	return cfg, nil
}

// LoadDotEnv loads key=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// RendersDir is where finished videos and their EDLs are written.
func (c *EnvConfig) RendersDir() string {
	return filepath.Join(c.dataDir, "renders")
}

// WorkDir is the parent of the per-render temporary directories.
func (c *EnvConfig) WorkDir() string {
	return filepath.Join(c.dataDir, "work")
}

// ClipsDir is the default download target for fetched stock clips.
func (c *EnvConfig) ClipsDir() string {
	return filepath.Join(c.dataDir, "clips")
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) ProfilePath() string {
	return c.profile
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpeg
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobe
}

func (c *EnvConfig) KeepIntermediates() bool {
	return c.keepIntermediates
}

func (c *EnvConfig) PexelsAPIKey() string {
	return c.pexelsAPIKey
}

func (c *EnvConfig) PexelsBaseURL() string {
	return c.pexelsBaseURL
}

func (c *EnvConfig) OpenAIAPIKey() string {
	return c.openAIAPIKey
}

func (c *EnvConfig) DoctorTimeout() time.Duration {
	return time.Duration(DefaultDoctorTimeout) * time.Second
}

func (c *EnvConfig) RenderTimeout() time.Duration {
	return time.Duration(DefaultRenderTimeout) * time.Second
}

func envBool(name string) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return b, nil
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

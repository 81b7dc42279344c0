// Package config provides configuration management for the StoryReel agent.
// Configuration is loaded from environment variables (optionally seeded from a
// .env file) with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort      = 8788
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	DefaultDataDir   = ".storyreel"

	// Environment variable names
	EnvPort      = "STORYREEL_PORT"
	EnvLogLevel  = "STORYREEL_LOG_LEVEL"
	EnvLogFormat = "STORYREEL_LOG_FORMAT"
	EnvDataDir   = "STORYREEL_DATA_DIR"
	EnvHeadless  = "STORYREEL_HEADLESS"
	EnvRunOnce   = "STORYREEL_RUN_ONCE"
	EnvInterval  = "STORYREEL_RUN_INTERVAL"
	EnvSchedule  = "STORYREEL_SCHEDULE"

	// Source environment variable names
	EnvCommunities     = "STORYREEL_COMMUNITIES"
	EnvSort            = "STORYREEL_SORT"
	EnvTimeWindow      = "STORYREEL_TIME_WINDOW"
	EnvFetchLimit      = "STORYREEL_FETCH_LIMIT"
	EnvRedditBaseURL   = "STORYREEL_REDDIT_BASE_URL"
	EnvRedditUserAgent = "STORYREEL_REDDIT_USER_AGENT"

	// Policy environment variable names
	EnvMaxBodyWords     = "STORYREEL_MAX_BODY_WORDS"
	EnvLongTextWords    = "STORYREEL_LONG_TEXT_WORDS"
	EnvSegmentMinWords  = "STORYREEL_SEGMENT_MIN_WORDS"
	EnvMaxClipSeconds   = "STORYREEL_MAX_CLIP_SECONDS"
	EnvMinTailSeconds   = "STORYREEL_MIN_TAIL_SECONDS"
	EnvHashtags         = "STORYREEL_HASHTAGS"
	EnvBackgroundPath   = "STORYREEL_BACKGROUND_PATH"
	EnvFFmpegPath       = "STORYREEL_FFMPEG_PATH"
	EnvFFprobePath      = "STORYREEL_FFPROBE_PATH"
	EnvTitleCachePath   = "STORYREEL_TITLE_CACHE_PATH"
	EnvArtifactsDir     = "STORYREEL_ARTIFACTS_DIR"
	EnvNarrationTimeout = "STORYREEL_NARRATION_TIMEOUT"

	// Collaborator environment variable names
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOpenAIModel   = "STORYREEL_OPENAI_MODEL"
	EnvOpenAIBaseURL = "STORYREEL_OPENAI_BASE_URL"
	EnvTTSKey        = "STORYREEL_TTS_API_KEY"
	EnvTTSVoice      = "STORYREEL_TTS_VOICE"
	EnvTTSBaseURL    = "STORYREEL_TTS_BASE_URL"
	EnvRendererURL   = "STORYREEL_RENDERER_URL"
	EnvPublishURL    = "STORYREEL_PUBLISH_URL"
	EnvPublishToken  = "STORYREEL_PUBLISH_TOKEN"

	// Database filename
	DBFilename = "storyreel.db"

	// Policy defaults
	DefaultMaxBodyWords    = 600
	DefaultLongTextWords   = 400
	DefaultSegmentMinWords = 150
	DefaultMaxClipSeconds  = 180
	DefaultMinTailSeconds  = 30
	DefaultHashtags        = "#shorts #reddit #redditstories"

	DefaultCommunities   = "AmItheAsshole,tifu"
	DefaultSort          = "top"
	DefaultTimeWindow    = "day"
	DefaultFetchLimit    = 25
	DefaultRedditBaseURL = "https://www.reddit.com"
	DefaultUserAgent     = "storyreel-agent/0.1"

	DefaultOpenAIModel      = "gpt-4o-mini"
	DefaultTTSBaseURL       = "https://api.elevenlabs.io"
	DefaultTTSVoice         = "21m00Tcm4TlvDq8ikWAM"
	DefaultRunInterval      = 6 * time.Hour
	DefaultNarrationTimeout = 5 * time.Minute
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFormat() string
	DataDir() string
	DBPath() string
	ArtifactsDir() string
	TitleCachePath() string
	Headless() bool
	RunOnce() bool
	RunInterval() time.Duration
	Schedule() string

	Communities() []string
	Sort() string
	TimeWindow() string
	FetchLimit() int
	RedditBaseURL() string
	RedditUserAgent() string

	MaxBodyWords() int
	LongTextWords() int
	SegmentMinWords() int
	MaxClipSeconds() float64
	MinTailSeconds() float64
	Hashtags() string
	BackgroundPath() string
	FFmpegPath() string
	FFprobePath() string
	NarrationTimeout() time.Duration

	OpenAIKey() string
	OpenAIModel() string
	OpenAIBaseURL() string
	TTSKey() string
	TTSVoice() string
	TTSBaseURL() string
	RendererURL() string
	PublishURL() string
	PublishToken() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port        int
	logLevel    string
	logFormat   string
	dataDir     string
	headless    bool
	runOnce     bool
	runInterval time.Duration
	schedule    string

	communities     []string
	sort            string
	timeWindow      string
	fetchLimit      int
	redditBaseURL   string
	redditUserAgent string

	maxBodyWords     int
	longTextWords    int
	segmentMinWords  int
	maxClipSeconds   float64
	minTailSeconds   float64
	hashtags         string
	backgroundPath   string
	ffmpegPath       string
	ffprobePath      string
	titleCachePath   string
	artifactsDir     string
	narrationTimeout time.Duration

	openAIKey     string
	openAIModel   string
	openAIBaseURL string
	ttsKey        string
	ttsVoice      string
	ttsBaseURL    string
	rendererURL   string
	publishURL    string
	publishToken  string
}

// Load seeds the process environment from the given dotenv files (".env" when
// none are given). Variables already set in the environment win. A missing
// file is reported but callers usually ignore it.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:             DefaultPort,
		logLevel:         DefaultLogLevel,
		logFormat:        DefaultLogFormat,
		dataDir:          defaultDataDir(),
		headless:         true,
		runInterval:      DefaultRunInterval,
		communities:      splitList(DefaultCommunities),
		sort:             DefaultSort,
		timeWindow:       DefaultTimeWindow,
		fetchLimit:       DefaultFetchLimit,
		redditBaseURL:    DefaultRedditBaseURL,
		redditUserAgent:  DefaultUserAgent,
		maxBodyWords:     DefaultMaxBodyWords,
		longTextWords:    DefaultLongTextWords,
		segmentMinWords:  DefaultSegmentMinWords,
		maxClipSeconds:   DefaultMaxClipSeconds,
		minTailSeconds:   DefaultMinTailSeconds,
		hashtags:         DefaultHashtags,
		ffmpegPath:       "ffmpeg",
		ffprobePath:      "ffprobe",
		narrationTimeout: DefaultNarrationTimeout,
		openAIModel:      DefaultOpenAIModel,
		ttsVoice:         DefaultTTSVoice,
		ttsBaseURL:       DefaultTTSBaseURL,
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
	if lf := os.Getenv(EnvLogFormat); lf != "" {
		cfg.logFormat = lf
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	var err error
	if cfg.headless, err = envBool(EnvHeadless, cfg.headless); err != nil {
		return nil, err
	}
	if cfg.runOnce, err = envBool(EnvRunOnce, false); err != nil {
		return nil, err
	}
	if cfg.runInterval, err = envDuration(EnvInterval, cfg.runInterval); err != nil {
		return nil, err
	}
	cfg.schedule = strings.TrimSpace(os.Getenv(EnvSchedule))
	if cfg.narrationTimeout, err = envDuration(EnvNarrationTimeout, cfg.narrationTimeout); err != nil {
		return nil, err
	}

	if c := os.Getenv(EnvCommunities); c != "" {
		cfg.communities = splitList(c)
	}
	if s := os.Getenv(EnvSort); s != "" {
		cfg.sort = s
	}
	if w := os.Getenv(EnvTimeWindow); w != "" {
		cfg.timeWindow = w
	}
	if u := os.Getenv(EnvRedditBaseURL); u != "" {
		cfg.redditBaseURL = strings.TrimRight(u, "/")
	}
	if ua := os.Getenv(EnvRedditUserAgent); ua != "" {
		cfg.redditUserAgent = ua
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{EnvFetchLimit, &cfg.fetchLimit},
		{EnvMaxBodyWords, &cfg.maxBodyWords},
		{EnvLongTextWords, &cfg.longTextWords},
		{EnvSegmentMinWords, &cfg.segmentMinWords},
	}
	for _, in := range ints {
		if *in.dst, err = envPositiveInt(in.name, *in.dst); err != nil {
			return nil, err
		}
	}

	if cfg.maxClipSeconds, err = envFloat(EnvMaxClipSeconds, cfg.maxClipSeconds); err != nil {
		return nil, err
	}
	if cfg.minTailSeconds, err = envFloat(EnvMinTailSeconds, cfg.minTailSeconds); err != nil {
		return nil, err
	}

	if h, ok := os.LookupEnv(EnvHashtags); ok {
		cfg.hashtags = strings.TrimSpace(h)
	}
	cfg.backgroundPath = os.Getenv(EnvBackgroundPath)
	if f := os.Getenv(EnvFFmpegPath); f != "" {
		cfg.ffmpegPath = f
	}
	if f := os.Getenv(EnvFFprobePath); f != "" {
		cfg.ffprobePath = f
	}
	cfg.titleCachePath = os.Getenv(EnvTitleCachePath)
	cfg.artifactsDir = os.Getenv(EnvArtifactsDir)

	cfg.openAIKey = os.Getenv(EnvOpenAIKey)
	if m := os.Getenv(EnvOpenAIModel); m != "" {
		cfg.openAIModel = m
	}
	cfg.openAIBaseURL = os.Getenv(EnvOpenAIBaseURL)
	cfg.ttsKey = os.Getenv(EnvTTSKey)
	if v := os.Getenv(EnvTTSVoice); v != "" {
		cfg.ttsVoice = v
	}
	if u := os.Getenv(EnvTTSBaseURL); u != "" {
		cfg.ttsBaseURL = strings.TrimRight(u, "/")
	}
	cfg.rendererURL = strings.TrimRight(os.Getenv(EnvRendererURL), "/")
	cfg.publishURL = os.Getenv(EnvPublishURL)
	cfg.publishToken = os.Getenv(EnvPublishToken)

	return cfg, nil
}

// Port returns the HTTP control server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFormat returns the log format (json or text)
func (c *EnvConfig) LogFormat() string {
	return c.logFormat
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ArtifactsDir returns the root of the artifact store
func (c *EnvConfig) ArtifactsDir() string {
	if c.artifactsDir != "" {
		return c.artifactsDir
	}
	return filepath.Join(c.dataDir, "artifacts")
}

// TitleCachePath returns the path of the shortened-title cache file
func (c *EnvConfig) TitleCachePath() string {
	if c.titleCachePath != "" {
		return c.titleCachePath
	}
	return filepath.Join(c.dataDir, "title_cache.json")
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) RunOnce() bool {
	return c.runOnce
}

func (c *EnvConfig) RunInterval() time.Duration {
	return c.runInterval
}

// Schedule is a cron expression that overrides RunInterval when set.
func (c *EnvConfig) Schedule() string {
	return c.schedule
}

func (c *EnvConfig) Communities() []string {
	return c.communities
}

func (c *EnvConfig) Sort() string {
	return c.sort
}

func (c *EnvConfig) TimeWindow() string {
	return c.timeWindow
}

func (c *EnvConfig) FetchLimit() int {
	return c.fetchLimit
}

func (c *EnvConfig) RedditBaseURL() string {
	return c.redditBaseURL
}

func (c *EnvConfig) RedditUserAgent() string {
	return c.redditUserAgent
}

func (c *EnvConfig) MaxBodyWords() int {
	return c.maxBodyWords
}

func (c *EnvConfig) LongTextWords() int {
	return c.longTextWords
}

func (c *EnvConfig) SegmentMinWords() int {
	return c.segmentMinWords
}

func (c *EnvConfig) MaxClipSeconds() float64 {
	return c.maxClipSeconds
}

func (c *EnvConfig) MinTailSeconds() float64 {
	return c.minTailSeconds
}

func (c *EnvConfig) Hashtags() string {
	return c.hashtags
}

// BackgroundPath returns a background video file, or a directory of them
func (c *EnvConfig) BackgroundPath() string {
	if c.backgroundPath != "" {
		return c.backgroundPath
	}
	return filepath.Join(c.dataDir, "backgrounds")
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) NarrationTimeout() time.Duration {
	return c.narrationTimeout
}

func (c *EnvConfig) OpenAIKey() string {
	return c.openAIKey
}

func (c *EnvConfig) OpenAIModel() string {
	return c.openAIModel
}

func (c *EnvConfig) OpenAIBaseURL() string {
	return c.openAIBaseURL
}

func (c *EnvConfig) TTSKey() string {
	return c.ttsKey
}

func (c *EnvConfig) TTSVoice() string {
	return c.ttsVoice
}

func (c *EnvConfig) TTSBaseURL() string {
	return c.ttsBaseURL
}

func (c *EnvConfig) RendererURL() string {
	return c.rendererURL
}

func (c *EnvConfig) PublishURL() string {
	return c.publishURL
}

func (c *EnvConfig) PublishToken() string {
	return c.publishToken
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

func envBool(name string, fallback bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return b, nil
}

func envPositiveInt(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return n, nil
}

func envFloat(name string, fallback float64) (float64, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return f, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

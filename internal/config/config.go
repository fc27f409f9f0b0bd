// Package config loads pipeline configuration from defaults, an optional TOML file, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	apperrors "github.com/fntranslate/livetranslate/internal/errors"
)

type Config struct {
	// Capture
	CaptureIntervalMS int    `toml:"capture_interval_ms"`
	CaptureBackend    string `toml:"capture_backend"` // screenshot | command
	Monitor           int    `toml:"monitor"`
	Region            string `toml:"region"` // "x,y,w,h"; empty means the whole monitor
	CaptureBackoffMS  int    `toml:"capture_backoff_ms"`

	// Languages and OCR
	SourceLang   string  `toml:"source_lang"`
	TargetLang   string  `toml:"target_lang"`
	OCRLang      string  `toml:"ocr_lang"`
	OCRMinConf   float64 `toml:"ocr_min_conf"`
	OCRMode      string  `toml:"ocr_mode"` // regions | frame
	OCRWorkers   int     `toml:"ocr_workers"`
	OCRTimeoutMS int     `toml:"ocr_timeout_ms"`

	// Change detection
	DiffLow       float64 `toml:"diff_low"`
	DiffHigh      float64 `toml:"diff_high"`
	SettleMS      int     `toml:"settle_ms"`
	DriftDistance int     `toml:"drift_distance"`

	// Stabilizer
	StableHistory   int     `toml:"stable_history"`
	StableThreshold int     `toml:"stable_threshold"`
	StableOverlap   float64 `toml:"stable_overlap"`

	// Tracker
	TrackAlpha      float64 `toml:"track_alpha"`
	TrackLockFrames int     `toml:"track_lock_frames"`
	TrackLockMove   float64 `toml:"track_lock_move"`
	TrackMaxMisses  int     `toml:"track_max_misses"`
	TrackDedupe     float64 `toml:"track_dedupe"`
	TrackCover      float64 `toml:"track_cover"`
	TrackDistance   float64 `toml:"track_distance"`
	TrackCarry      bool    `toml:"track_carry"` // feed tracked blocks back as candidates so masked text does not age out
	MaskPad         int     `toml:"mask_pad"`

	// Region extractor
	LayoutKernelW int `toml:"layout_kernel_w"`
	LayoutKernelH int `toml:"layout_kernel_h"`
	LayoutMinArea int `toml:"layout_min_area"`
	LayoutPad     int `toml:"layout_pad"`

	// Translation
	Translator           string  `toml:"translator"` // deepseek | gemini
	DeepSeekAPIKey       string  `toml:"-"`
	DeepSeekURL          string  `toml:"deepseek_url"`
	DeepSeekModel        string  `toml:"deepseek_model"`
	GeminiAPIKey         string  `toml:"-"`
	GeminiModel          string  `toml:"gemini_model"`
	TranslateConcurrency int     `toml:"translate_concurrency"`
	TranslateTimeoutMS   int     `toml:"translate_timeout_ms"`
	TranslateRPS         float64 `toml:"translate_rps"`

	// Cache
	CacheBackend string `toml:"cache_backend"` // sqlite | postgres | redis
	CacheDSN     string `toml:"cache_dsn"`
	CacheLRU     int    `toml:"cache_lru"`
	CacheTTLDays int    `toml:"cache_ttl_days"`

	// Surfaces
	HTTPAddr       string   `toml:"http_addr"`
	GRPCAddr       string   `toml:"grpc_addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
	HistorySize    int      `toml:"history_size"`
	ActivityMS     int      `toml:"activity_debounce_ms"`
	LogLevel       string   `toml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		CaptureIntervalMS: 500,
		CaptureBackend:    "screenshot",
		CaptureBackoffMS:  1000,

		SourceLang:   "en",
		TargetLang:   "zh",
		OCRLang:      "eng",
		OCRMinConf:   60,
		OCRMode:      "regions",
		OCRWorkers:   4,
		OCRTimeoutMS: 5000,

		DiffLow:       5,
		DiffHigh:      15,
		SettleMS:      1000,
		DriftDistance: 10,

		StableHistory:   5,
		StableThreshold: 2,
		StableOverlap:   0.6,

		TrackAlpha:      0.4,
		TrackLockFrames: 5,
		TrackLockMove:   5,
		TrackMaxMisses:  8,
		TrackDedupe:     0.85,
		TrackCover:      0.7,
		TrackDistance:   50,
		TrackCarry:      true,
		MaskPad:         4,

		LayoutKernelW: 15,
		LayoutKernelH: 12,
		LayoutMinArea: 200,
		LayoutPad:     10,

		Translator:           "deepseek",
		DeepSeekURL:          "https://api.deepseek.com",
		DeepSeekModel:        "deepseek-chat",
		GeminiModel:          "gemini-1.5-flash",
		TranslateConcurrency: 2,
		TranslateTimeoutMS:   10000,
		TranslateRPS:         5,

		CacheBackend: "sqlite",
		CacheDSN:     defaultCachePath(),
		CacheLRU:     512,
		CacheTTLDays: 30,

		HTTPAddr:       ":8765",
		GRPCAddr:       ":8766",
		AllowedOrigins: []string{"http://localhost", "tauri://localhost"},
		HistorySize:    200,
		ActivityMS:     200,
		LogLevel:       "info",
	}
}

// Load builds the configuration. Precedence, lowest first: defaults, TOML file named by LT_CONFIG, .env, process environment.
func Load() (*Config, error) {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("LT_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return apperrors.Wrapf(err, apperrors.ConfigInvalid, "decode %s", path)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.CaptureIntervalMS = getEnvInt("LT_CAPTURE_INTERVAL_MS", c.CaptureIntervalMS)
	c.CaptureBackend = getEnv("LT_CAPTURE_BACKEND", c.CaptureBackend)
	c.Monitor = getEnvInt("LT_MONITOR", c.Monitor)
	c.Region = getEnv("LT_REGION", c.Region)
	c.CaptureBackoffMS = getEnvInt("LT_CAPTURE_BACKOFF_MS", c.CaptureBackoffMS)

	c.SourceLang = getEnv("LT_SOURCE_LANG", c.SourceLang)
	c.TargetLang = getEnv("LT_TARGET_LANG", c.TargetLang)
	c.OCRLang = getEnv("LT_OCR_LANG", c.OCRLang)
	c.OCRMinConf = getEnvFloat("LT_OCR_MIN_CONF", c.OCRMinConf)
	c.OCRMode = getEnv("LT_OCR_MODE", c.OCRMode)
	c.OCRWorkers = getEnvInt("LT_OCR_WORKERS", c.OCRWorkers)
	c.OCRTimeoutMS = getEnvInt("LT_OCR_TIMEOUT_MS", c.OCRTimeoutMS)

	c.DiffLow = getEnvFloat("LT_DIFF_LOW", c.DiffLow)
	c.DiffHigh = getEnvFloat("LT_DIFF_HIGH", c.DiffHigh)
	c.SettleMS = getEnvInt("LT_SETTLE_MS", c.SettleMS)
	c.DriftDistance = getEnvInt("LT_DRIFT_DISTANCE", c.DriftDistance)

	c.StableHistory = getEnvInt("LT_STABLE_HISTORY", c.StableHistory)
	c.StableThreshold = getEnvInt("LT_STABLE_THRESHOLD", c.StableThreshold)
	c.StableOverlap = getEnvFloat("LT_STABLE_OVERLAP", c.StableOverlap)

	c.TrackAlpha = getEnvFloat("LT_TRACK_ALPHA", c.TrackAlpha)
	c.TrackLockFrames = getEnvInt("LT_TRACK_LOCK_FRAMES", c.TrackLockFrames)
	c.TrackLockMove = getEnvFloat("LT_TRACK_LOCK_MOVE", c.TrackLockMove)
	c.TrackMaxMisses = getEnvInt("LT_TRACK_MAX_MISSES", c.TrackMaxMisses)
	c.TrackDedupe = getEnvFloat("LT_TRACK_DEDUPE", c.TrackDedupe)
	c.TrackCover = getEnvFloat("LT_TRACK_COVER", c.TrackCover)
	c.TrackDistance = getEnvFloat("LT_TRACK_DIST", c.TrackDistance)
	c.TrackCarry = getEnvBool("LT_TRACK_CARRY", c.TrackCarry)
	c.MaskPad = getEnvInt("LT_MASK_PAD", c.MaskPad)

	c.LayoutKernelW = getEnvInt("LT_LAYOUT_KERNEL_W", c.LayoutKernelW)
	c.LayoutKernelH = getEnvInt("LT_LAYOUT_KERNEL_H", c.LayoutKernelH)
	c.LayoutMinArea = getEnvInt("LT_LAYOUT_MIN_AREA", c.LayoutMinArea)
	c.LayoutPad = getEnvInt("LT_LAYOUT_PAD", c.LayoutPad)

	c.Translator = getEnv("LT_TRANSLATOR", c.Translator)
	c.DeepSeekAPIKey = getEnv("DEEPSEEK_API_KEY", c.DeepSeekAPIKey)
	c.DeepSeekURL = getEnv("DEEPSEEK_API_URL", c.DeepSeekURL)
	c.DeepSeekModel = getEnv("DEEPSEEK_MODEL", c.DeepSeekModel)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.TranslateConcurrency = getEnvInt("LT_TRANSLATE_CONCURRENCY", c.TranslateConcurrency)
	c.TranslateTimeoutMS = getEnvInt("LT_TRANSLATE_TIMEOUT_MS", c.TranslateTimeoutMS)
	c.TranslateRPS = getEnvFloat("LT_TRANSLATE_RPS", c.TranslateRPS)

	c.CacheBackend = getEnv("LT_CACHE_BACKEND", c.CacheBackend)
	c.CacheDSN = getEnv("LT_CACHE_DSN", c.CacheDSN)
	c.CacheLRU = getEnvInt("LT_CACHE_LRU", c.CacheLRU)
	c.CacheTTLDays = getEnvInt("LT_CACHE_TTL_DAYS", c.CacheTTLDays)

	c.HTTPAddr = getEnv("LT_HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getEnv("LT_GRPC_ADDR", c.GRPCAddr)
	c.AllowedOrigins = getEnvList("LT_ALLOWED_ORIGINS", c.AllowedOrigins)
	c.HistorySize = getEnvInt("LT_HISTORY_SIZE", c.HistorySize)
	c.ActivityMS = getEnvInt("LT_ACTIVITY_DEBOUNCE_MS", c.ActivityMS)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate rejects combinations the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.CaptureIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("capture interval must be positive, got %d", c.CaptureIntervalMS))
	}
	if c.DiffLow >= c.DiffHigh {
		errs = append(errs, fmt.Errorf("diff low %.2f must be below diff high %.2f", c.DiffLow, c.DiffHigh))
	}
	if c.StableHistory < 1 {
		errs = append(errs, fmt.Errorf("stable history must be >= 1, got %d", c.StableHistory))
	}
	if c.StableThreshold < 1 || c.StableThreshold > c.StableHistory {
		errs = append(errs, fmt.Errorf("stable threshold %d outside [1,%d]", c.StableThreshold, c.StableHistory))
	}
	if c.TrackAlpha <= 0 || c.TrackAlpha > 1 {
		errs = append(errs, fmt.Errorf("track alpha %.2f outside (0,1]", c.TrackAlpha))
	}
	if c.TranslateConcurrency < 1 {
		errs = append(errs, fmt.Errorf("translate concurrency must be >= 1, got %d", c.TranslateConcurrency))
	}
	if c.OCRWorkers < 1 {
		errs = append(errs, fmt.Errorf("ocr workers must be >= 1, got %d", c.OCRWorkers))
	}
	if c.OCRMode != "regions" && c.OCRMode != "frame" {
		errs = append(errs, fmt.Errorf("unknown ocr mode %q", c.OCRMode))
	}
	if _, err := ParseRegion(c.Region); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return apperrors.Wrap(errors.Join(errs...), apperrors.ConfigInvalid, "invalid configuration")
	}
	return nil
}

// Region is a capture rectangle in screen coordinates.
type Region struct {
	X, Y, W, H int
}

// ParseRegion parses "x,y,w,h". An empty string yields a zero Region (whole monitor).
func ParseRegion(s string) (Region, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Region{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("region %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Region{}, fmt.Errorf("region %q: %w", s, err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return Region{}, fmt.Errorf("region %q: width and height must be positive", s)
	}
	return Region{X: v[0], Y: v[1], W: v[2], H: v[3]}, nil
}

func (c *Config) CaptureInterval() time.Duration  { return ms(c.CaptureIntervalMS) }
func (c *Config) CaptureBackoff() time.Duration   { return ms(c.CaptureBackoffMS) }
func (c *Config) SettleDelay() time.Duration      { return ms(c.SettleMS) }
func (c *Config) OCRTimeout() time.Duration       { return ms(c.OCRTimeoutMS) }
func (c *Config) TranslateTimeout() time.Duration { return ms(c.TranslateTimeoutMS) }
func (c *Config) ActivityWindow() time.Duration   { return ms(c.ActivityMS) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// defaultCachePath follows XDG: $XDG_DATA_HOME/livetranslate/cache.db.
func defaultCachePath() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "livetranslate-cache.db"
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "livetranslate", "cache.db")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}

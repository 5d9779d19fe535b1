// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kyiku/textcaptcha/internal/captcha"
)

// Config holds the application configuration.
type Config struct {
	Port             string
	AllowedOrigin    string
	AWSRegion        string
	S3Bucket         string
	CloudfrontDomain string
	FontPrefix       string
	BedrockModelID   string

	CaptchaWidth         int
	CaptchaHeight        int
	CaptchaFonts         []string
	CaptchaFontSizes     []float64
	CaptchaMaxRotation   float64
	CaptchaNoiseCurves   int
	CaptchaNoiseDots     int
	CaptchaWarpAmplitude float64
	CaptchaWarpPeriod    float64
	CaptchaSeed          int64
	CaptchaTextLength    int
	CaptchaTTL           time.Duration

	RateLimit  int
	RateWindow time.Duration
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	defaults := captcha.DefaultOptions()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		AllowedOrigin:    getEnv("ALLOWED_ORIGIN", "http://localhost:5173"),
		AWSRegion:        getEnv("AWS_REGION", "ap-northeast-1"),
		S3Bucket:         getEnv("S3_BUCKET", ""),
		CloudfrontDomain: getEnv("CLOUDFRONT_DOMAIN", ""),
		FontPrefix:       getEnv("FONT_PREFIX", ""),
		BedrockModelID:   getEnv("BEDROCK_MODEL_ID", ""),
		CaptchaFonts:     getEnvList("CAPTCHA_FONTS", captcha.DefaultFontNames),
	}

	var errs []error
	cfg.CaptchaWidth = getEnvInt("CAPTCHA_WIDTH", defaults.Width, &errs)
	cfg.CaptchaHeight = getEnvInt("CAPTCHA_HEIGHT", defaults.Height, &errs)
	cfg.CaptchaFontSizes = getEnvFloats("CAPTCHA_FONT_SIZES", &errs)
	cfg.CaptchaMaxRotation = getEnvFloat("CAPTCHA_MAX_ROTATION", defaults.MaxRotation, &errs)
	cfg.CaptchaNoiseCurves = getEnvInt("CAPTCHA_NOISE_CURVES", defaults.NoiseCurves, &errs)
	cfg.CaptchaNoiseDots = getEnvInt("CAPTCHA_NOISE_DOTS", defaults.NoiseDots, &errs)
	cfg.CaptchaWarpAmplitude = getEnvFloat("CAPTCHA_WARP_AMPLITUDE", defaults.WarpAmplitude, &errs)
	cfg.CaptchaWarpPeriod = getEnvFloat("CAPTCHA_WARP_PERIOD", defaults.WarpPeriod, &errs)
	cfg.CaptchaSeed = int64(getEnvInt("CAPTCHA_SEED", 0, &errs))
	cfg.CaptchaTextLength = getEnvInt("CAPTCHA_TEXT_LENGTH", 4, &errs)
	cfg.CaptchaTTL = getEnvDuration("CAPTCHA_TTL", 5*time.Minute, &errs)
	cfg.RateLimit = getEnvInt("RATE_LIMIT", 60, &errs)
	cfg.RateWindow = getEnvDuration("RATE_WINDOW", time.Minute, &errs)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate port is a number
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("invalid port: must be a number")
	}

	if c.CaptchaWidth <= 0 || c.CaptchaHeight <= 0 {
		return fmt.Errorf("invalid captcha size: %dx%d", c.CaptchaWidth, c.CaptchaHeight)
	}
	if c.CaptchaTextLength <= 0 {
		return errors.New("invalid captcha text length: must be positive")
	}
	if c.CaptchaTTL <= 0 {
		return errors.New("invalid captcha ttl: must be positive")
	}
	if c.RateLimit <= 0 || c.RateWindow <= 0 {
		return errors.New("invalid rate limit: limit and window must be positive")
	}
	if c.FontPrefix == "" && len(c.CaptchaFonts) == 0 {
		return errors.New("no captcha fonts configured")
	}

	return nil
}

// CaptchaOptions builds engine options from the configuration. Fonts are
// taken from the embedded set; callers loading fonts from S3 replace them.
func (c *Config) CaptchaOptions() (captcha.Options, error) {
	opts := captcha.DefaultOptions()
	opts.Width = c.CaptchaWidth
	opts.Height = c.CaptchaHeight
	opts.FontSizes = c.CaptchaFontSizes
	opts.MaxRotation = c.CaptchaMaxRotation
	opts.NoiseCurves = c.CaptchaNoiseCurves
	opts.NoiseDots = c.CaptchaNoiseDots
	opts.WarpAmplitude = c.CaptchaWarpAmplitude
	opts.WarpPeriod = c.CaptchaWarpPeriod
	opts.Seed = c.CaptchaSeed

	fonts, err := captcha.EmbeddedFonts(c.CaptchaFonts...)
	if err != nil {
		return captcha.Options{}, fmt.Errorf("failed to load captcha fonts: %w", err)
	}
	opts.Fonts = fonts

	return opts, nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64, errs *[]error) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return f
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return d
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnvFloats parses a comma separated list of numbers. Unset means nil, so
// the engine derives sizes from the canvas height.
func getEnvFloats(key string, errs *[]error) []float64 {
	items := getEnvList(key, nil)
	if len(items) == 0 {
		return nil
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, err := strconv.ParseFloat(item, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return nil
		}
		out = append(out, f)
	}
	return out
}

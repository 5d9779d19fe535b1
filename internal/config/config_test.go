package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "ALLOWED_ORIGIN", "AWS_REGION", "S3_BUCKET", "CLOUDFRONT_DOMAIN",
	"FONT_PREFIX", "BEDROCK_MODEL_ID",
	"CAPTCHA_WIDTH", "CAPTCHA_HEIGHT", "CAPTCHA_FONTS", "CAPTCHA_FONT_SIZES",
	"CAPTCHA_MAX_ROTATION", "CAPTCHA_NOISE_CURVES", "CAPTCHA_NOISE_DOTS",
	"CAPTCHA_WARP_AMPLITUDE", "CAPTCHA_WARP_PERIOD", "CAPTCHA_SEED",
	"CAPTCHA_TEXT_LENGTH", "CAPTCHA_TTL", "RATE_LIMIT", "RATE_WINDOW",
}

// clearEnv unsets every key read by LoadConfig and restores it after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	savedEnv := make(map[string]string)
	for _, key := range envKeys {
		savedEnv[key] = os.Getenv(key)
		os.Unsetenv(key)
	}
	t.Cleanup(func() {
		for k, v := range savedEnv {
			if v != "" {
				os.Setenv(k, v)
			} else {
				os.Unsetenv(k)
			}
		}
	})
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name      string
		envVars   map[string]string
		wantPort  string
		wantWidth int
		wantErr   bool
	}{
		{
			name: "すべての環境変数が設定されている",
			envVars: map[string]string{
				"PORT":              "8080",
				"ALLOWED_ORIGIN":    "http://localhost:5173",
				"AWS_REGION":        "ap-northeast-1",
				"S3_BUCKET":         "test-bucket",
				"CLOUDFRONT_DOMAIN": "https://test.cloudfront.net",
				"CAPTCHA_WIDTH":     "200",
				"CAPTCHA_HEIGHT":    "80",
			},
			wantPort:  "8080",
			wantWidth: 200,
		},
		{
			name:      "デフォルト値が使用される",
			envVars:   map[string]string{},
			wantPort:  "8080",
			wantWidth: 160,
		},
		{
			name: "PORTのみカスタム",
			envVars: map[string]string{
				"PORT": "3000",
			},
			wantPort:  "3000",
			wantWidth: 160,
		},
		{
			name: "数値でない幅",
			envVars: map[string]string{
				"CAPTCHA_WIDTH": "wide",
			},
			wantErr: true,
		},
		{
			name: "不正な期間",
			envVars: map[string]string{
				"CAPTCHA_TTL": "5 minutes",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := LoadConfig()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantPort, cfg.Port)
			assert.Equal(t, tt.wantWidth, cfg.CaptchaWidth)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	// デフォルト値の確認
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "ap-northeast-1", cfg.AWSRegion)
	assert.Equal(t, "http://localhost:5173", cfg.AllowedOrigin)
	assert.Equal(t, 60, cfg.CaptchaHeight)
	assert.Equal(t, []string{"goregular", "gobold", "gomonobold"}, cfg.CaptchaFonts)
	assert.Nil(t, cfg.CaptchaFontSizes)
	assert.Equal(t, 4, cfg.CaptchaTextLength)
	assert.Equal(t, 5*time.Minute, cfg.CaptchaTTL)
	assert.Equal(t, 60, cfg.RateLimit)
	assert.Equal(t, time.Minute, cfg.RateWindow)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Lists(t *testing.T) {
	clearEnv(t)
	os.Setenv("CAPTCHA_FONTS", "gomono, goitalic,,")
	os.Setenv("CAPTCHA_FONT_SIZES", "30,36.5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"gomono", "goitalic"}, cfg.CaptchaFonts)
	assert.Equal(t, []float64{30, 36.5}, cfg.CaptchaFontSizes)
}

func TestConfig_Validation(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:              "8080",
			AllowedOrigin:     "http://localhost:5173",
			AWSRegion:         "ap-northeast-1",
			CaptchaWidth:      160,
			CaptchaHeight:     60,
			CaptchaFonts:      []string{"goregular"},
			CaptchaTextLength: 4,
			CaptchaTTL:        time.Minute,
			RateLimit:         10,
			RateWindow:        time.Minute,
		}
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "有効な設定",
			modify:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "不正なポート（文字列）",
			modify:  func(c *Config) { c.Port = "invalid" },
			wantErr: true,
		},
		{
			name:    "空のポート",
			modify:  func(c *Config) { c.Port = "" },
			wantErr: true,
		},
		{
			name:    "高さがゼロ",
			modify:  func(c *Config) { c.CaptchaHeight = 0 },
			wantErr: true,
		},
		{
			name:    "文字数がゼロ",
			modify:  func(c *Config) { c.CaptchaTextLength = 0 },
			wantErr: true,
		},
		{
			name:    "レート制限がゼロ",
			modify:  func(c *Config) { c.RateLimit = 0 },
			wantErr: true,
		},
		{
			name:    "フォントがない",
			modify:  func(c *Config) { c.CaptchaFonts = nil },
			wantErr: true,
		},
		{
			name: "S3からフォントを読む",
			modify: func(c *Config) {
				c.CaptchaFonts = nil
				c.FontPrefix = "fonts/"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_CaptchaOptions(t *testing.T) {
	t.Run("正常系: 設定が反映される", func(t *testing.T) {
		clearEnv(t)
		os.Setenv("CAPTCHA_WIDTH", "220")
		os.Setenv("CAPTCHA_NOISE_DOTS", "5")
		os.Setenv("CAPTCHA_SEED", "42")
		cfg, err := LoadConfig()
		require.NoError(t, err)

		opts, err := cfg.CaptchaOptions()

		require.NoError(t, err)
		assert.Equal(t, 220, opts.Width)
		assert.Equal(t, 60, opts.Height)
		assert.Equal(t, 5, opts.NoiseDots)
		assert.Equal(t, int64(42), opts.Seed)
		assert.Len(t, opts.Fonts, 3)
	})

	t.Run("異常系: 未知のフォント名", func(t *testing.T) {
		cfg := &Config{CaptchaWidth: 160, CaptchaHeight: 60, CaptchaFonts: []string{"nope"}}

		_, err := cfg.CaptchaOptions()

		assert.Error(t, err)
	})
}

package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kyiku/textcaptcha/internal/ai"
	"github.com/kyiku/textcaptcha/internal/captcha"
	"github.com/kyiku/textcaptcha/internal/challenge"
	"github.com/kyiku/textcaptcha/internal/config"
	"github.com/kyiku/textcaptcha/internal/handler"
	appmw "github.com/kyiku/textcaptcha/internal/middleware"
	"github.com/kyiku/textcaptcha/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	captcha.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	e := echo.New()

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			e.Logger.Infof("%s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	origins := splitOrigins(cfg.AllowedOrigin)
	e.Use(appmw.CORSMiddleware(origins...))

	// AWS clients
	var s3Client *storage.S3Client
	var bedrockAdapter *BedrockAdapter
	if cfg.S3Bucket != "" || cfg.BedrockModelID != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			log.Printf("Warning: Failed to load AWS config: %v (some features may not work)", err)
		} else {
			if cfg.S3Bucket != "" {
				s3Client = storage.NewS3Client(&S3Adapter{
					client: s3.NewFromConfig(awsCfg),
					bucket: cfg.S3Bucket,
				}, cfg.S3Bucket, cfg.CloudfrontDomain)
			}
			if cfg.BedrockModelID != "" {
				bedrockAdapter = &BedrockAdapter{client: bedrockruntime.NewFromConfig(awsCfg)}
			}
		}
	}

	// Captcha engine
	opts, err := cfg.CaptchaOptions()
	if err != nil {
		log.Fatalf("Failed to build captcha options: %v", err)
	}
	if cfg.FontPrefix != "" {
		if s3Client == nil {
			log.Fatalf("FONT_PREFIX is set but S3 is not configured")
		}
		fonts, err := s3Client.LoadFonts(cfg.FontPrefix)
		if err != nil {
			log.Fatalf("Failed to load fonts from S3: %v", err)
		}
		opts.Fonts = fonts
	}
	engine, err := captcha.New(opts)
	if err != nil {
		log.Fatalf("Failed to create captcha engine: %v", err)
	}

	// Challenge text
	words := ai.NewWordSource(cfg.CaptchaSeed)
	if bedrockAdapter != nil {
		words = ai.NewBedrockWordSource(bedrockAdapter, cfg.BedrockModelID, cfg.CaptchaSeed)
		words.EnableFallback(true) // Use random text if Bedrock fails
	}

	store := challenge.NewStoreWithExpiry(cfg.CaptchaTTL)
	go cleanupChallenges(store, cfg.CaptchaTTL)

	// Handlers
	healthHandler := handler.NewHealthHandler(store, len(opts.Fonts))
	captchaHandler := handler.NewCaptchaHandler(engine, store, words)
	captchaHandler.SetTextLength(cfg.CaptchaTextLength)
	captchaHandler.SetTTL(cfg.CaptchaTTL)
	if s3Client != nil {
		captchaHandler.SetUploader(s3Client)
	}
	allowOrigin := appmw.OriginMatcher(origins...)
	datasetHandler := handler.NewDatasetHandler(engine, words, cfg.CaptchaTextLength, func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowOrigin(origin)
	})

	limiter := appmw.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	defer limiter.Stop()
	limit := limiter.Middleware()

	// Health check (root level for ALB)
	e.GET("/health", healthHandler.Check)

	// WebSocket endpoint
	e.GET("/ws/dataset", datasetHandler.Stream, limit)

	// API routes
	api := e.Group("/api")
	api.GET("/health", healthHandler.Check)

	// CAPTCHA endpoints
	api.POST("/captcha/challenge", captchaHandler.Challenge, limit)
	api.POST("/captcha/refresh", captchaHandler.Refresh, limit)
	api.GET("/captcha/challenge/:id", captchaHandler.Status)
	api.POST("/captcha/verify", captchaHandler.Verify, limit)
	api.POST("/captcha/annotate", captchaHandler.Annotate, limit)
	api.GET("/captcha/image", captchaHandler.Image, limit)
	api.GET("/captcha/fonts", fontListHandler(opts.Fonts))

	// Log registered endpoints
	log.Println("Registered endpoints:")
	log.Println("  GET  /health")
	log.Println("  GET  /ws/dataset")
	log.Println("  GET  /api/health")
	log.Println("  POST /api/captcha/challenge")
	log.Println("  POST /api/captcha/refresh")
	log.Println("  GET  /api/captcha/challenge/:id")
	log.Println("  POST /api/captcha/verify")
	log.Println("  POST /api/captcha/annotate")
	log.Println("  GET  /api/captcha/image")
	log.Println("  GET  /api/captcha/fonts")

	// Start server
	log.Printf("Starting server on :%s (%d fonts, %dx%d)", cfg.Port, len(opts.Fonts), engine.Width(), engine.Height())
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}

// cleanupChallenges drops expired challenges every ttl.
func cleanupChallenges(store *challenge.Store, ttl time.Duration) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()

	for range ticker.C {
		if n := store.Cleanup(); n > 0 {
			log.Printf("Removed %d expired challenges", n)
		}
	}
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// fontListHandler lists the fonts the engine renders with, and the embedded
// fonts CAPTCHA_FONTS can choose from.
func fontListHandler(fonts []*captcha.Font) echo.HandlerFunc {
	names := make([]string, len(fonts))
	for i, f := range fonts {
		names[i] = f.Name
	}
	available := captcha.EmbeddedFontNames()
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"error":     false,
			"fonts":     names,
			"available": available,
		})
	}
}

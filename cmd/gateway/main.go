package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"

	"github.com/formward/formward/pkg/config"
	"github.com/formward/formward/pkg/detect"
	"github.com/formward/formward/pkg/engine"
	"github.com/formward/formward/pkg/model"
	"github.com/formward/formward/pkg/moderation"
	"github.com/formward/formward/pkg/store"
)

const Version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServer(configPath(os.Args[2:]))
	case "check":
		if len(os.Args) < 3 {
			fmt.Println("Usage: formward check <message text>")
			os.Exit(1)
		}
		runCLICheck(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("formward v%s\n", Version)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("formward v%s - form spam decision gateway\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  formward serve [config.yaml]   Start the HTTP gateway")
	fmt.Println("  formward check <text>          Evaluate a message from the command line")
	fmt.Println("  formward version               Show version")
	fmt.Println("")
	fmt.Println("Environment variables (override file settings):")
	fmt.Println("  FORMWARD_LISTEN_ADDR           Listen address (default :8080)")
	fmt.Println("  FORMWARD_AI_THRESHOLD          Spam threshold in [0,1] (default 0.7)")
	fmt.Println("  FORMWARD_MODERATION_API_KEY    API key for the moderation service")
	fmt.Println("  FORMWARD_REDIS_ADDR            Redis for strikes/rate limits (default in-memory)")
	fmt.Println("  FORMWARD_POSTGRES_DSN          Postgres for the spam log (default in-memory)")
}

func configPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func loadConfig(path string) *config.Config {
	if path == "" {
		cfg := config.NewDefaultConfig()
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return cfg
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// buildEngine wires the detectors and stores according to configuration.
// Every external dependency is optional: without redis the counters are
// in-process, without postgres the log is in-memory, without an API key
// moderation is skipped.
func buildEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*engine.Engine, store.LogStore, error) {
	var counter store.Counter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		counter = store.NewRedisCounter(rdb, "formward")
		logger.Info("counters enabled", "backend", "redis", "addr", cfg.RedisAddr)
	} else {
		counter = store.NewMemoryCounter()
		logger.Info("counters enabled", "backend", "memory")
	}

	var logs store.LogStore
	if cfg.PostgresDSN != "" {
		pg, err := store.NewPostgresLogStore(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres open: %w", err)
		}
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := pg.Init(initCtx); err != nil {
			return nil, nil, fmt.Errorf("postgres init: %w", err)
		}
		logs = pg
		logger.Info("spam log enabled", "backend", "postgres")
	} else {
		logs = store.NewMemoryLogStore(0)
		logger.Info("spam log enabled", "backend", "memory")
	}

	policy := detect.DefaultPolicy()
	policy.ExcludedFields = cfg.ExcludedFields

	var mod engine.Moderator
	if cfg.ModerationEnabled && cfg.ModerationAPIKey != "" {
		mod = moderation.NewClient(
			cfg.ModerationBaseURL,
			cfg.ModerationAPIKey,
			cfg.ModerationModel,
			moderation.WithRateLimiter(moderation.NewRateLimiter(counter, cfg.ModerationCallsPerHour)),
			moderation.WithMaxConcurrent(cfg.ModerationConcurrency),
		)
		logger.Info("moderation enabled", "model", cfg.ModerationModel)
	} else {
		logger.Info("moderation disabled")
	}

	eng := engine.New(cfg, engine.Deps{
		Pattern:  detect.NewPatternDetector(policy),
		Behavior: detect.NewBehaviorDetector(policy, cfg.MinSubmissionTime, cfg.ExpectedLanguage),
		Dup:      detect.NewDuplicateDetector(logs, cfg.DuplicateTimeframe),
		Mod:      mod,
		Strikes:  counter,
		Logs:     logs,
		Logger:   logger,
	})
	return eng, logs, nil
}

type fieldRequest struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type evaluateRequest struct {
	FormID       string         `json:"form_id"`
	SubmitterKey string         `json:"submitter_key"`
	Fields       []fieldRequest `json:"fields"`
	ElapsedMs    *int64         `json:"elapsed_ms,omitempty"`
	UserAgent    string         `json:"user_agent"`
	Referrer     string         `json:"referrer"`
	SiteOrigin   string         `json:"site_origin"`
}

type clearStrikesRequest struct {
	FormID       string `json:"form_id"`
	SubmitterKey string `json:"submitter_key"`
}

func (r *evaluateRequest) submission(excludeHidden bool) *model.Submission {
	fields := make([]model.Field, 0, len(r.Fields))
	for _, f := range r.Fields {
		fields = append(fields, model.Field{
			ID:    f.ID,
			Kind:  model.FieldKind(f.Type),
			Value: f.Value,
		})
	}
	if excludeHidden {
		return model.NewSubmission(fields, model.WithHiddenExcluded())
	}
	return model.NewSubmission(fields)
}

func (r *evaluateRequest) ambient() model.AmbientContext {
	amb := model.AmbientContext{
		UserAgent:  r.UserAgent,
		Referrer:   r.Referrer,
		SiteOrigin: r.SiteOrigin,
	}
	if r.ElapsedMs != nil {
		amb.Elapsed = time.Duration(*r.ElapsedMs) * time.Millisecond
		amb.HasElapsed = true
	}
	return amb
}

func runServer(path string) {
	cfg := loadConfig(path)
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx := context.Background()
	eng, logs, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = logs.Close() }()

	if cfg.LogRetention > 0 {
		go retentionLoop(ctx, logs, cfg.LogRetention, logger)
	}

	app := fiber.New(fiber.Config{
		AppName: "formward",
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": Version})
	})

	app.Post("/evaluate", func(c fiber.Ctx) error {
		var req evaluateRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.FormID == "" || req.SubmitterKey == "" {
			return c.Status(400).JSON(fiber.Map{"error": "form_id and submitter_key are required"})
		}

		sub := req.submission(cfg.ExcludeHiddenFields)
		verdict := eng.Evaluate(c.Context(), sub, req.ambient(), req.FormID, req.SubmitterKey)
		return c.JSON(verdict)
	})

	app.Post("/strikes/clear", func(c fiber.Ctx) error {
		var req clearStrikesRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.FormID == "" || req.SubmitterKey == "" {
			return c.Status(400).JSON(fiber.Map{"error": "form_id and submitter_key are required"})
		}
		if err := eng.ClearStrikes(c.Context(), req.FormID, req.SubmitterKey); err != nil {
			logger.Warn("clear strikes failed", "form_id", req.FormID, "error", err)
			return c.Status(500).JSON(fiber.Map{"error": "could not clear strikes"})
		}
		return c.JSON(fiber.Map{"cleared": true})
	})

	logger.Info("formward gateway starting", "addr", cfg.ListenAddr)
	if err := app.Listen(cfg.ListenAddr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// retentionLoop prunes old spam-log rows once a day.
func retentionLoop(ctx context.Context, logs store.LogStore, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := logs.CleanOlderThan(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Warn("log retention sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("log retention sweep", "removed", n)
			}
		}
	}
}

// runCLICheck evaluates a single message against the content heuristics
// alone: in-memory stores, no moderation, no ambient checks. Handy for
// trying out the pattern rules.
func runCLICheck(text string) {
	cfg := config.NewDefaultConfig()
	cfg.ModerationEnabled = false
	cfg.DuplicateCheckEnabled = false
	logger := newLogger("error")

	eng := engine.New(cfg, engine.Deps{
		Pattern: detect.NewPatternDetector(detect.DefaultPolicy()),
		Strikes: store.NewMemoryCounter(),
		Logs:    store.NewMemoryLogStore(0),
		Logger:  logger,
	})

	sub := model.NewSubmission([]model.Field{
		{ID: "message", Kind: model.KindLongText, Value: text},
	})
	verdict := eng.Evaluate(context.Background(), sub, model.AmbientContext{}, "cli", "cli")

	out, _ := json.MarshalIndent(verdict, "", "  ")
	fmt.Println(string(out))
}

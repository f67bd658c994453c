package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	tele "gopkg.in/telebot.v4"

	corecmd "github.com/m3rciful/carpostbot/core/cmd"
	coreconfig "github.com/m3rciful/carpostbot/core/config"
	"github.com/m3rciful/carpostbot/core/logger"
	coretelegram "github.com/m3rciful/carpostbot/core/telegram"
	"github.com/m3rciful/carpostbot/core/telegram/helpers"
	"github.com/m3rciful/carpostbot/core/telegram/router"
	"github.com/m3rciful/carpostbot/core/telegram/ui"
	"github.com/m3rciful/carpostbot/internal/artifact"
	"github.com/m3rciful/carpostbot/internal/detect"
	"github.com/m3rciful/carpostbot/internal/generate"
	"github.com/m3rciful/carpostbot/internal/pipeline"
	"github.com/m3rciful/carpostbot/internal/publish"
	"github.com/m3rciful/carpostbot/internal/sanitize"
	"github.com/m3rciful/carpostbot/internal/session"
	"github.com/m3rciful/carpostbot/internal/workflow"
)

type carrier struct {
	cfg *coreconfig.Config
}

func (c *carrier) CoreConfig() *coreconfig.Config { return c.cfg }

// fallbacks implements ui.FallbackProvider for updates that match nothing.
type fallbacks struct{}

func (fallbacks) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return helpers.SendText(c, "Pick an action from the keyboard to get started.")
	}
}

func (fallbacks) UnknownPhoto() tele.HandlerFunc {
	return func(c tele.Context) error {
		return helpers.SendText(c, "Start a listing first — tap 🚗 New Listing.")
	}
}

func (fallbacks) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return helpers.SendText(c, "Please send photos as compressed images, not files.")
	}
}

func (fallbacks) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
	}
}

type app struct {
	cfg      *coreconfig.Config
	store    *artifact.Store
	detector *detect.ONNXDetector
	manager  *workflow.Manager
}

func loadConfig(path string) (corecmd.ConfigCarrier, error) {
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(cfg); err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	return &carrier{cfg: cfg}, nil
}

func bootstrap(cc corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg := cc.CoreConfig()

	if err := os.MkdirAll(cfg.Media.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("work dir: %w", err)
	}
	store, err := artifact.NewStore(cfg.Media.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}

	detector, err := detect.NewONNXDetector(detect.Config{
		ModelPath:           cfg.Media.ModelPath,
		ConfidenceThreshold: cfg.Media.ConfidenceThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("plate detector: %w", err)
	}

	sanitizer := sanitize.New(sanitize.Config{
		BlurSigma: cfg.Media.BlurSigma,
		MarkText:  cfg.Media.WatermarkText,
		MarkScale: cfg.Media.WatermarkScale,
		FontPath:  cfg.Media.FontPath,
	})

	gen, err := generate.NewGemini(context.Background(), generate.Config{
		APIKey:  cfg.Generation.APIKey,
		Model:   cfg.Generation.Model,
		Timeout: time.Duration(cfg.Generation.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}

	pipe := pipeline.New(detector, sanitizer, store)
	manager := workflow.New(session.NewRegistry(), gen, pipe, nil, cfg.Media.WorkDir)

	return &app{cfg: cfg, store: store, detector: detector, manager: manager}, nil
}

func (a *app) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	a.manager.Register(reg)

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
	})
	var fb ui.FallbackProvider = fallbacks{}
	routes = append(routes, router.TextRoutes(a.manager, reg, router.TextOptions{
		UnknownText:     fb.UnknownText(),
		UnknownPhoto:    fb.UnknownPhoto(),
		UnknownDocument: fb.UnknownDocument(),
	})...)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{
		NotFound: fb.UnknownCallback(),
	}))

	return coretelegram.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.manager.SetPublisher(publish.New(rt.Bot, a.store, a.cfg.Telegram.ChannelID))
			a.manager.SetDispatcherErrors(rt.Dispatcher.ErrorCount)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			return a.detector.Close()
		},
	}, nil
}

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        loadConfig,
		Bootstrap:         bootstrap,
	})
	if err != nil {
		log.Fatalf("carpostbot: %v", err)
	}
}

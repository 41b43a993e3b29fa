package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Numbzin/Logzito/internal/config"
	"github.com/Numbzin/Logzito/internal/domain"
	"github.com/Numbzin/Logzito/internal/reminder"
	"github.com/Numbzin/Logzito/internal/store"
	"github.com/Numbzin/Logzito/internal/telegram"
)

type App struct {
	cfg      config.Config
	log      *zap.Logger
	bot      *tgbotapi.BotAPI
	httpSrv  *http.Server
	defaults domain.Subscription
	rules    reminder.FailureRules
}

// New validates the parts of the config that need parsing and connects the bot client.
// The store is opened in Run so that a failed start leaves nothing to close.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	at, err := domain.ParseLocalTime(cfg.DefaultReminderTime)
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_REMINDER_TIME: %w", err)
	}
	tz, err := domain.ValidateTZ(cfg.DefaultTZ)
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_TZ: %w", err)
	}
	rules, err := reminder.ParseFailureRules(cfg.ReminderPermanentFailures)
	if err != nil {
		return nil, fmt.Errorf("REMINDER_PERMANENT_FAILURES: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram client: %w", err)
	}
	bot.Debug = false

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           OpsRouter(),
		ReadTimeout:       3 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	return &App{
		cfg:      cfg,
		log:      log,
		bot:      bot,
		httpSrv:  srv,
		defaults: domain.Subscription{LocalTime: at, TZ: tz},
		rules:    rules,
	}, nil
}

// OpsRouter serves liveness and Prometheus metrics.
func OpsRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Run blocks until SIGINT/SIGTERM or ctx cancellation, then shuts down in order:
// updates, dispatcher (after its in-flight pass), HTTP server, store.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting logzito",
		zap.String("bot", a.bot.Self.UserName),
		zap.String("db_driver", a.cfg.DBDriver),
		zap.String("http", a.cfg.HTTPAddr),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := a.openStore(ctx)
	if err != nil {
		a.log.Error("open store failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			a.log.Warn("store close error", zap.Error(err))
		}
	}()
	a.log.Info("store ready", zap.String("driver", a.cfg.DBDriver))

	sender := telegram.NewSender(a.bot, a.cfg.SendRate)
	router := telegram.NewRouter(sender, a.log, repo, telegram.Config{
		Defaults:   a.defaults,
		PendingTTL: a.cfg.PendingTTL,
	}, nil)
	dispatcher := reminder.New(repo, sender, a.log, reminder.Config{
		Tick:        a.cfg.ReminderTick,
		PassTimeout: a.cfg.ReminderPassTimeout,
		Rules:       a.rules,
	})

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	router.Run(ctx, a.bot.GetUpdatesChan(u))

	a.log.Info("shutdown signal received")
	a.bot.StopReceivingUpdates()
	wg.Wait()

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shCtx); err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (store.Repo, error) {
	switch a.cfg.DBDriver {
	case "postgres":
		return store.OpenPostgres(ctx, store.PostgresConfig{
			URL:             a.cfg.DatabaseURL,
			ConnectAttempts: a.cfg.DBConnectAttempts,
		}, a.log.Named("store"))
	case "sqlite", "":
		return store.OpenSQLite(ctx, a.cfg.DBPath)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", a.cfg.DBDriver)
	}
}

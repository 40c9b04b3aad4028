// The predictor binary runs one forecasting cycle and exits: reconcile
// today's pending forecast, fetch history, forecast tomorrow, persist.
// Intended to be invoked daily by an external scheduler; exits non-zero
// on any fatal failure.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kcubez/crypto-predictor/internal/api/binance"
	"github.com/Kcubez/crypto-predictor/internal/api/openai"
	"github.com/Kcubez/crypto-predictor/internal/config"
	"github.com/Kcubez/crypto-predictor/internal/forecast"
	"github.com/Kcubez/crypto-predictor/internal/ledger"
	"github.com/Kcubez/crypto-predictor/internal/notify"
	"github.com/Kcubez/crypto-predictor/internal/orchestrator"
	"github.com/Kcubez/crypto-predictor/internal/throttle"
)

func main() {
	forceRefresh := flag.Bool("force", false, "bypass the memoized forecast cache")
	inMemory := flag.Bool("in-memory", false, "use the in-memory ledger instead of Postgres")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.LogLevel)
	log.Info().Str("symbol", cfg.Symbol).Str("interval", cfg.Interval).Msg("Starting daily forecast run")

	var led ledger.Ledger
	if *inMemory {
		led = ledger.NewMemoryStore(nil)
		log.Warn().Msg("Using in-memory ledger; records will not survive this run")
	} else {
		store, err := ledger.NewPostgresStore(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer store.Close()
		led = store
	}

	market := binance.NewClient(binance.ClientOptions{
		BaseURL:        cfg.BinanceBaseURL,
		RequestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
	})

	engine := forecast.NewEngine(
		openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel),
		forecast.EngineOptions{CandleWindow: cfg.HistoryDays},
	)

	thr := throttle.New(throttle.Options{
		TTL:         time.Duration(cfg.CacheTTLSeconds) * time.Second,
		MinInterval: time.Duration(cfg.MinRequestInterval) * time.Second,
	})

	var notifier orchestrator.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram notifier unavailable, continuing without it")
		} else {
			notifier = tg
		}
	}

	orch := orchestrator.New(market, thr, led, notifier, orchestrator.Options{
		Symbol:      cfg.Symbol,
		Interval:    cfg.Interval,
		HistoryDays: cfg.HistoryDays,
		Actor:       cfg.SystemActor,
		RunTimeout:  time.Duration(cfg.RunTimeoutSeconds) * time.Second,
	})

	if err := orch.Run(context.Background(), engine, *forceRefresh); err != nil {
		log.Error().Err(err).Msg("Run failed")
		os.Exit(1)
	}
	log.Info().Msg("Run finished")
}

// setupLogging configures the logger
func setupLogging(logLevel string) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(output)

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Logger.Level(level)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/vtishina/consult-bot/internal/app"
	googlecal "github.com/vtishina/consult-bot/internal/calendar/google"
	"github.com/vtishina/consult-bot/internal/clock"
	"github.com/vtishina/consult-bot/internal/config"
	"github.com/vtishina/consult-bot/internal/policy"
	"github.com/vtishina/consult-bot/internal/storage/postgres"
	transporthttp "github.com/vtishina/consult-bot/internal/transport/http"
	"github.com/vtishina/consult-bot/internal/transport/telegram"
	"github.com/vtishina/consult-bot/migrations"
)

const (
	startupTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	_ = godotenv.Load()

	cliApp := &cli.App{
		Name:  "consultbot",
		Usage: "Consultation slot booking: Telegram bot, calendar sync, operator API.",
		Commands: []*cli.Command{
			serveCommand(),
			seedCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the bot, the operator HTTP API and the background loops.",
		Action: func(c *cli.Context) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.App.LogLevel)
			slog.SetDefault(logger)

			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			pol := policy.Policy{
				StartHour:    cfg.Schedule.WorkStartHour,
				EndHour:      cfg.Schedule.WorkEndHour,
				SlotDuration: cfg.Schedule.SlotDuration,
				HorizonDays:  cfg.Schedule.HorizonDays,
				Location:     loc,
			}
			if err := pol.Validate(); err != nil {
				return err
			}
			if cfg.Telegram.Token == "" {
				return fmt.Errorf("TELEGRAM_TOKEN is required")
			}
			if cfg.Google.ServiceAccountJSON == "" {
				return fmt.Errorf("GOOGLE_SERVICE_ACCOUNT_JSON is required")
			}

			startupCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
			defer cancel()

			pool, err := connectDB(startupCtx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
			if err != nil {
				return fmt.Errorf("telegram auth: %w", err)
			}

			calAdapter, err := googlecal.NewAdapter(startupCtx, logger,
				[]byte(cfg.Google.ServiceAccountJSON), cfg.Google.CalendarID, cfg.App.Timezone)
			if err != nil {
				return fmt.Errorf("calendar adapter: %w", err)
			}

			clk := clock.NewSystem()
			store := postgres.NewSlotStore(pool)
			notifier := telegram.NewNotifier(botAPI, cfg.Telegram.AdminChatID, loc, logger)

			engine := app.NewReservationEngine(store, calAdapter, clk, logger,
				app.WithNotifier(notifier),
				app.WithHoldTTL(cfg.Reservation.HoldTTL),
				app.WithSyncTimeout(cfg.Reservation.SyncTimeout),
				app.WithEventSummary(cfg.Reservation.EventSummary),
			)
			horizon := app.NewHorizonService(store, pol, clk, logger,
				app.WithRefreshInterval(cfg.Reservation.RefreshInterval))
			sweeper := app.NewSweeper(store, clk, logger,
				app.WithSweepInterval(cfg.Reservation.SweepInterval))
			bot := telegram.NewBot(botAPI, engine, pol, clk, logger)

			mux := http.NewServeMux()
			mux.HandleFunc("/health", transporthttp.HealthHandler)
			mux.Handle("/slots", transporthttp.HandleListSlots(engine, loc, pol.HorizonDays))
			mux.Handle("/slots/", transporthttp.HandleSlotAction(engine))
			mux.Handle("/", transporthttp.NotFoundHandler())

			handler := transporthttp.RequestLogger(
				transporthttp.CORS(parseCSV(cfg.HTTP.CORSOrigins), mux), logger)
			server := &http.Server{
				Addr:    ":" + cfg.HTTP.Port,
				Handler: handler,
			}

			runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go horizon.Run(runCtx)
			go sweeper.Run(runCtx)
			go bot.Run(runCtx)

			srvErr := make(chan error, 1)
			go func() {
				logger.Info("http api listening", "port", cfg.HTTP.Port)
				srvErr <- server.ListenAndServe()
			}()

			select {
			case err := <-srvErr:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", "error", err)
				}
			case <-runCtx.Done():
				logger.Info("shutdown signal received")
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server shutdown error", "error", err)
			}
			logger.Info("stopped")
			return nil
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Seed the slot horizon once and exit.",
		Action: func(c *cli.Context) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.App.LogLevel)

			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			pol := policy.Policy{
				StartHour:    cfg.Schedule.WorkStartHour,
				EndHour:      cfg.Schedule.WorkEndHour,
				SlotDuration: cfg.Schedule.SlotDuration,
				HorizonDays:  cfg.Schedule.HorizonDays,
				Location:     loc,
			}

			ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
			defer cancel()

			pool, err := connectDB(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			horizon := app.NewHorizonService(postgres.NewSlotStore(pool), pol, clock.NewSystem(), logger)
			stats, err := horizon.Refresh(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("seeded horizon: %d slots created, %d expired\n", stats.Created, stats.Expired)
			return nil
		},
	}
}

func connectDB(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return pool, nil
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
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func parseCSV(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

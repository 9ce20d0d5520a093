package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"arena-shooter/internal/api"
	"arena-shooter/internal/chat"
	"arena-shooter/internal/config"
	"arena-shooter/internal/game"
	"arena-shooter/internal/killfeed"
	"arena-shooter/internal/lobby"
	"arena-shooter/internal/logger"
	"arena-shooter/internal/persistence/scoredb"
	"arena-shooter/internal/transport"
)

func main() {
	// Load .env file from parent directory
	envErr := godotenv.Load("../.env")
	if envErr != nil {
		// Try current directory as fallback
		envErr = godotenv.Load(".env")
	}

	logger.Init()
	log := logger.With("main")
	if envErr != nil {
		log.Info("💡 No .env file found, using environment variables only")
	}

	log.Info("🎮 ================================")
	log.Info("🎮  ARENA SHOOTER - HOST SERVER")
	log.Info("🎮 ================================")

	appConfig, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("❌ Invalid configuration")
	}
	simCfg := appConfig.Sim
	serverCfg := appConfig.Server
	limits := appConfig.Limits

	log.WithFields(logrus.Fields{
		"tps":      simCfg.TickRate,
		"arena":    simCfg.ArenaBase,
		"spawn":    simCfg.SpawnInterval,
		"sessions": limits.MaxSessions,
		"enemies":  limits.MaxEnemies,
	}).Info("🛡️ Simulation config")

	// Event log
	events := game.NewEventLog(limits.EventLogPerSec)
	if err := events.Start(appConfig.Storage.EventLogPath); err != nil {
		log.WithError(err).Warn("⚠️ Event log disabled")
		events = nil
	} else if appConfig.Storage.EventLogPath != "" {
		log.WithField("path", appConfig.Storage.EventLogPath).Info("📝 Event log")
	}

	// Cumulative scores
	scores, err := scoredb.Open(appConfig.Storage.ScoreDBPath)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to open score store")
	}
	log.WithField("path", appConfig.Storage.ScoreDBPath).Info("💾 Score store")

	// Kill feed
	boards := game.NewLeaderboards()
	feed := killfeed.New(killfeed.DefaultConfig())
	feed.AddSink(killfeed.LeaderboardSink{Boards: boards}, 0)
	feed.AddSink(killfeed.SinkFunc{Label: "metrics", Fn: func(context.Context, game.KillEvent) error {
		api.RecordKill()
		return nil
	}}, 0)
	if url := os.Getenv("KILLFEED_WEBHOOK_URL"); url != "" {
		minInterval := time.Duration(getEnvInt("KILLFEED_WEBHOOK_INTERVAL_MS", 1000)) * time.Millisecond
		feed.AddSink(killfeed.NewWebhookSink(url), minInterval)
		log.Info("📣 Kill feed webhook enabled")
	}
	feed.Start()

	// Sessions
	hub := transport.NewHub(appConfig.Net.InboxSize)
	manager := lobby.NewManager(appConfig, lobby.Deps{
		Hub:     hub,
		Scores:  scores,
		Events:  events,
		OnKill:  feed.Queue,
		OnFrame: api.RecordTick,
	})
	hub.OnMessage(api.RecordRelayMessage)

	// Override commands
	if len(serverCfg.AdminUsers) == 0 {
		log.Warn("⚠️ ADMIN_USERS not set - override commands disabled")
	}
	commands := chat.NewHandler(manager, chat.NewAdminList(serverCfg.AdminUsers...), chat.RateLimitConfig{
		MaxPerWindow:     limits.CommandsPerMin,
		WindowDuration:   time.Minute,
		CooldownDuration: chat.DefaultRateLimitConfig.CooldownDuration,
	})
	commandLog := logger.With("commands")
	queue := chat.NewCommandQueue(commands, chat.DefaultQueueConfig(), func(cmd chat.ChatCommand, err error) {
		if err != nil {
			commandLog.WithError(err).WithField("user", cmd.Username).Debug("Queued command failed")
		}
	})
	queue.Start()

	admin := api.NewAdminSessions(api.AuthConfig{
		Admins:       serverCfg.AdminUsers,
		Password:     serverCfg.AdminPassword,
		Secret:       serverCfg.SessionSecret,
		SecureCookie: os.Getenv("SECURE_COOKIES") == "true",
	})
	if serverCfg.AdminPassword == "" {
		log.Warn("⚠️ ADMIN_PASSWORD not set - admin login disabled")
	}

	// Start debug server
	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		debugCfg := api.DefaultObservabilityConfig(serverCfg.DebugPort)
		debugCfg.BasicAuthUser = os.Getenv("DEBUG_USER")
		debugCfg.BasicAuthPass = os.Getenv("DEBUG_PASSWORD")
		if err := api.StartDebugServer(debugCfg); err != nil {
			log.WithError(err).Warn("⚠️ Debug server disabled")
		}
	}

	server := api.NewServer(api.ServerConfig{
		Router: api.RouterConfig{
			Sessions:     manager,
			Commands:     commands,
			CommandQueue: queue,
			Admin:        admin,
			Scores:       scores,
			Leaderboards: boards,
			RateLimitConfig: &api.RateLimitConfig{
				RequestsPerSecond: limits.RequestsPerSec,
				Burst:             limits.RequestBurst,
				CleanupInterval:   api.DefaultRateLimitConfig.CleanupInterval,
			},
			Origins: api.NewOriginPolicy(serverCfg.AllowedOrigin),
		},
		Lobby:  manager,
		Events: events,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go manager.RunReaper(ctx, 10*time.Second)

	// Start API server in goroutine
	go func() {
		addr := ":" + strconv.Itoa(serverCfg.Port)
		log.Infof("🌐 API server on http://localhost%s", addr)
		log.Infof("📡 Relay: ws://localhost%s/ws/rooms/{code}", addr)
		if err := server.Start(addr); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Info("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Info("🛑 Shutting down...")
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("⚠️ HTTP shutdown incomplete")
	}

	queue.Stop()
	commands.Close()
	manager.Shutdown()
	feed.Stop()

	if err := scores.Flush(shutdownCtx); err != nil {
		log.WithError(err).Warn("⚠️ Score flush incomplete")
	}
	if err := scores.Close(); err != nil {
		log.WithError(err).Warn("⚠️ Score store close failed")
	}
	if events != nil {
		events.Stop()
	}
	log.Info("👋 Goodbye!")
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

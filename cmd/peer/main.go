// =============================================================================
// ARENA SHOOTER - HEADLESS PEER
// =============================================================================
// A standalone participant that joins a room through the websocket relay and
// plays with a simple bot:
// - Runs its own session (host or peer role) against the relay
// - Moves in a circle and shoots the nearest enemy
// - Revives itself after game over
// - Optionally writes a minimap PNG for debugging
//
// USAGE:
//   1. Start the server: go run ./cmd/server
//   2. Create a host session (or run this with PEER_ROLE=host)
//   3. PEER_ROOM=ABC234 go run ./cmd/peer
// =============================================================================
package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"arena-shooter/internal/config"
	"arena-shooter/internal/game"
	"arena-shooter/internal/logger"
	"arena-shooter/internal/protocol"
	"arena-shooter/internal/render"
	"arena-shooter/internal/transport"
)

func main() {
	// Load environment
	if err := godotenv.Load("../.env"); err != nil {
		_ = godotenv.Load(".env")
	}
	logger.Init()
	log := logger.With("peer")

	appConfig, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("❌ Invalid configuration")
	}

	serverURL := getEnvWithDefault("PEER_SERVER_URL", "ws://localhost:"+strconv.Itoa(appConfig.Server.Port))
	room := os.Getenv("PEER_ROOM")
	username := getEnvWithDefault("PEER_USERNAME", "bot-"+uuid.NewString()[:4])
	minimapPath := os.Getenv("PEER_MINIMAP_PATH")

	role, err := protocol.ParseRole(getEnvWithDefault("PEER_ROLE", "peer"))
	if err != nil || role == protocol.RoleSolo {
		log.Fatal("PEER_ROLE must be host or peer")
	}
	codec, err := protocol.CodecByName(os.Getenv("PEER_CODEC"))
	if err != nil {
		log.WithError(err).Fatal("Invalid PEER_CODEC")
	}
	if room == "" {
		log.Fatal("PEER_ROOM not set")
	}

	log.WithFields(logrus.Fields{
		"server": serverURL,
		"room":   room,
		"user":   username,
		"role":   role.String(),
		"binary": codec.Binary(),
	}).Info("🤖 Headless peer starting")

	client, err := transport.NewWSClient(transport.WSConfig{
		BaseURL:        serverURL,
		Room:           room,
		Username:       username,
		Role:           role,
		Codec:          codec,
		ReconnectDelay: appConfig.Net.ReconnectDelay,
		BufferSize:     appConfig.Net.InboxSize,
	})
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to create relay client")
	}
	client.Start()

	session, err := game.NewSession(game.SessionConfig{
		ID:        uuid.NewString(),
		Username:  username,
		Room:      room,
		Role:      role,
		Sim:       appConfig.Sim,
		Net:       appConfig.Net,
		Limits:    appConfig.Limits,
		Transport: client,
		OnKill: func(ev game.KillEvent) {
			log.WithField("enemy", ev.EnemyID).Debug("🎯 Kill")
		},
	})
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to create session")
	}
	session.Start()

	// Wait for relay connection
	for i := 0; i < 30 && !client.Connected(); i++ {
		time.Sleep(100 * time.Millisecond)
	}
	if !client.Connected() {
		log.Warn("⚠️ Relay not connected yet, will keep retrying")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	b := newBot()
	inputTicker := time.NewTicker(50 * time.Millisecond)
	defer inputTicker.Stop()
	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

	log.Info("✅ Peer running! Press Ctrl+C to stop.")
	for {
		select {
		case <-quit:
			log.Info("🛑 Shutting down...")
			session.Stop()
			client.Close()
			log.Info("👋 Goodbye!")
			return

		case <-session.Done():
			log.Warn("Session ended")
			client.Close()
			return

		case <-inputTicker.C:
			snap := session.Snapshot()
			if snap.State == game.StateGameOver.String() {
				if session.Revive() {
					log.Info("💀 Game over, reviving")
				}
				continue
			}
			session.SubmitInput(b.next(snap))

		case <-statsTicker.C:
			snap := session.Snapshot()
			sent, received, dropped, reconnects := client.Stats()
			log.WithFields(logrus.Fields{
				"score":      snap.Player.Score,
				"enemies":    len(snap.Enemies),
				"remotes":    len(snap.RemotePlayers),
				"connected":  snap.Connected,
				"sent":       sent,
				"received":   received,
				"dropped":    dropped,
				"reconnects": reconnects,
			}).Info("📊 Peer stats")

			if minimapPath != "" {
				if err := writeMinimap(minimapPath, snap); err != nil {
					log.WithError(err).Warn("⚠️ Minimap write failed")
				}
			}
		}
	}
}

func writeMinimap(path string, snap *game.SessionSnapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render.WritePNG(f, snap, render.DefaultSize); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func getEnvWithDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

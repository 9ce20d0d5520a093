// Package config provides centralized configuration management.
// Defaults live here; a YAML tuning file and environment variables override them,
// in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// SIMULATION TUNING
// =============================================================================

// SimConfig holds the combat and spawn constants of a session.
type SimConfig struct {
	TickRate          int     `yaml:"tick_rate"`           // frames per second driven by the session loop
	MaxFrameDelta     float64 `yaml:"max_frame_delta"`     // dt clamp in seconds
	ArenaBase         float64 `yaml:"arena_base"`          // base half-extent of the arena
	ArenaGrowth       float64 `yaml:"arena_growth"`        // multiplier step when the player crosses the edge
	SpawnInterval     float64 `yaml:"spawn_interval"`      // initial seconds between spawns
	SpawnDecay        float64 `yaml:"spawn_decay"`         // interval multiplier per spawn
	SpawnFloor        float64 `yaml:"spawn_floor"`         // minimum interval
	PickupChance      float64 `yaml:"pickup_chance"`       // drop probability on a kill
	ImmunitySeconds   float64 `yaml:"immunity_seconds"`    // spawn and revive protection
	ContactDPS        float64 `yaml:"contact_dps"`         // enemy contact damage per second
	EnemyFireRange    float64 `yaml:"enemy_fire_range"`    // enemies shoot within this distance
	EnemyFireInterval float64 `yaml:"enemy_fire_interval"` // seconds between enemy shots
	GridCellSize      float64 `yaml:"grid_cell_size"`      // broad-phase cell size in world units
}

// DefaultSim returns the default simulation tuning.
func DefaultSim() SimConfig {
	return SimConfig{
		TickRate:          60,
		MaxFrameDelta:     0.033,
		ArenaBase:         20,
		ArenaGrowth:       0.1,
		SpawnInterval:     2.0,
		SpawnDecay:        0.993,
		SpawnFloor:        0.6,
		PickupChance:      0.35,
		ImmunitySeconds:   5,
		ContactDPS:        5,
		EnemyFireRange:    14,
		EnemyFireInterval: 3.5,
		GridCellSize:      4,
	}
}

// SimFromEnv returns simulation tuning with environment variable overrides.
func SimFromEnv(base SimConfig) SimConfig {
	cfg := base

	if tr := getEnvInt("SIM_TICK_RATE", 0); tr > 0 {
		cfg.TickRate = tr
	}
	if ab := getEnvFloat("SIM_ARENA_BASE", 0); ab > 0 {
		cfg.ArenaBase = ab
	}
	if si := getEnvFloat("SIM_SPAWN_INTERVAL", 0); si > 0 {
		cfg.SpawnInterval = si
	}
	if pc := getEnvFloat("SIM_PICKUP_CHANCE", -1); pc >= 0 && pc <= 1 {
		cfg.PickupChance = pc
	}

	return cfg
}

// =============================================================================
// NETWORK CONFIGURATION
// =============================================================================

// NetConfig holds multiplayer broadcast cadences and buffer sizes.
type NetConfig struct {
	PlayerPublishInterval time.Duration `yaml:"player_publish_interval"`
	EnemyPublishInterval  time.Duration `yaml:"enemy_publish_interval"`
	RemotePlayerTimeout   time.Duration `yaml:"remote_player_timeout"`
	InboxSize             int           `yaml:"inbox_size"` // per-member relay buffer
	ReconnectDelay        time.Duration `yaml:"reconnect_delay"`
}

// DefaultNet returns the default network configuration.
func DefaultNet() NetConfig {
	return NetConfig{
		PlayerPublishInterval: 50 * time.Millisecond,
		EnemyPublishInterval:  100 * time.Millisecond,
		RemotePlayerTimeout:   5 * time.Second,
		InboxSize:             256,
		ReconnectDelay:        2 * time.Second,
	}
}

// NetFromEnv returns network configuration with environment variable overrides.
func NetFromEnv(base NetConfig) NetConfig {
	cfg := base

	if ms := getEnvInt("NET_PLAYER_PUBLISH_MS", 0); ms > 0 {
		cfg.PlayerPublishInterval = time.Duration(ms) * time.Millisecond
	}
	if ms := getEnvInt("NET_ENEMY_PUBLISH_MS", 0); ms > 0 {
		cfg.EnemyPublishInterval = time.Duration(ms) * time.Millisecond
	}
	if n := getEnvInt("NET_INBOX_SIZE", 0); n > 0 {
		cfg.InboxSize = n
	}

	return cfg
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// ResourceLimits controls DoS protection and performance limits.
type ResourceLimits struct {
	MaxSessions    int           // Hard cap on concurrent sessions
	MaxEnemies     int           // Enemies per session before the director pauses
	MaxParticles   int           // Particles per session
	MaxBullets     int           // Player bullets per session
	CommandsPerMin int           // Override commands per user per minute
	RequestsPerSec float64       // HTTP requests per IP per second
	RequestBurst   int           // HTTP burst per IP
	ReviveTimeout  time.Duration // game-over sessions are reaped after this
	EventLogPerSec float64       // event log throughput cap
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxSessions:    500,
		MaxEnemies:     400,
		MaxParticles:   600,
		MaxBullets:     300,
		CommandsPerMin: 30,
		RequestsPerSec: 20,
		RequestBurst:   40,
		ReviveTimeout:  2 * time.Minute,
		EventLogPerSec: 500,
	}
}

// LimitsFromEnv returns resource limits with environment variable overrides.
func LimitsFromEnv() ResourceLimits {
	cfg := DefaultLimits()

	if ms := getEnvInt("MAX_SESSIONS", 0); ms > 0 {
		cfg.MaxSessions = ms
	}
	if me := getEnvInt("MAX_ENEMIES", 0); me > 0 {
		cfg.MaxEnemies = me
	}
	if cpm := getEnvInt("COMMANDS_PER_MIN", 0); cpm > 0 {
		cfg.CommandsPerMin = cpm
	}
	if rt := getEnvInt("REVIVE_TIMEOUT_SEC", 0); rt > 0 {
		cfg.ReviveTimeout = time.Duration(rt) * time.Second
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          int
	DebugPort     int
	AdminUsers    []string // usernames allowed to issue override commands
	AdminPassword string
	SessionSecret string
	AllowedOrigin string
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:          3000,
		DebugPort:     6060,
		AllowedOrigin: "*",
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if dp := getEnvInt("DEBUG_PORT", 0); dp > 0 {
		cfg.DebugPort = dp
	}
	if admins := os.Getenv("ADMIN_USERS"); admins != "" {
		for _, name := range strings.Split(admins, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.AdminUsers = append(cfg.AdminUsers, name)
			}
		}
	}
	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if o := os.Getenv("ALLOWED_ORIGIN"); o != "" {
		cfg.AllowedOrigin = o
	}

	return cfg
}

// =============================================================================
// STORAGE CONFIGURATION
// =============================================================================

// StorageConfig holds persistence paths.
type StorageConfig struct {
	ScoreDBPath  string // SQLite file for cumulative scores
	EventLogPath string // zstd JSONL event log; empty disables it
}

// StorageFromEnv returns storage configuration with environment variable overrides.
func StorageFromEnv() StorageConfig {
	cfg := StorageConfig{
		ScoreDBPath: "data/scores.db",
	}
	if p := os.Getenv("SCORE_DB_PATH"); p != "" {
		cfg.ScoreDBPath = p
	}
	cfg.EventLogPath = os.Getenv("EVENT_LOG_PATH")
	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Sim     SimConfig
	Net     NetConfig
	Server  ServerConfig
	Limits  ResourceLimits
	Storage StorageConfig
}

// tuningFile is the YAML overlay shape.
type tuningFile struct {
	Sim SimConfig `yaml:"sim"`
	Net NetConfig `yaml:"net"`
}

// Load returns the complete configuration. When TUNING_PATH is set, the YAML
// file at that path overrides simulation and network defaults before the
// environment is applied.
func Load() (AppConfig, error) {
	sim, net := DefaultSim(), DefaultNet()
	if path := os.Getenv("TUNING_PATH"); path != "" {
		var err error
		sim, net, err = LoadTuning(path, sim, net)
		if err != nil {
			return AppConfig{}, err
		}
	}

	return AppConfig{
		Sim:     SimFromEnv(sim),
		Net:     NetFromEnv(net),
		Server:  ServerFromEnv(),
		Limits:  LimitsFromEnv(),
		Storage: StorageFromEnv(),
	}, nil
}

// LoadTuning overlays the YAML file at path onto the given defaults.
// Keys absent from the file keep their default values.
func LoadTuning(path string, sim SimConfig, net NetConfig) (SimConfig, NetConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sim, net, fmt.Errorf("read tuning: %w", err)
	}
	return ParseTuning(raw, sim, net)
}

// ParseTuning overlays YAML bytes onto the given defaults.
func ParseTuning(raw []byte, sim SimConfig, net NetConfig) (SimConfig, NetConfig, error) {
	tf := tuningFile{Sim: sim, Net: net}
	if err := yaml.Unmarshal(raw, &tf); err != nil {
		return sim, net, fmt.Errorf("parse tuning: %w", err)
	}
	sim, net = tf.Sim, tf.Net
	if sim.TickRate <= 0 {
		return sim, net, fmt.Errorf("parse tuning: tick_rate must be positive")
	}
	if sim.SpawnFloor <= 0 || sim.SpawnFloor > sim.SpawnInterval {
		return sim, net, fmt.Errorf("parse tuning: spawn_floor must be in (0, spawn_interval]")
	}
	return sim, net, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type AppConfig struct {
	VoiceBaseURL string
	VoiceWSURL   string

	GameHostURL   string
	GameHostWSURL string
	// HostTransport selects how markers and speaking indicators reach the
	// host: http, ws or auto.
	HostTransport string

	RedisURL    string
	DatabaseURL string

	SettingsFile string
	StateFile    string
	MessagesDir  string

	PluginInstaller string
	PluginVersion   int
	SupportURL      string
	ModVersion      string

	MaxReconnectAttempts int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		SettingsFile:         filepath.Join("configs", "tessu_bridge", "settings.yaml"),
		StateFile:            filepath.Join("configs", "tessu_bridge", "states", "state.yaml"),
		PluginVersion:        1,
		SupportURL:           "https://github.com/park285/tessu-bridge",
		ModVersion:           "development",
		HostTransport:        "auto",
		MaxReconnectAttempts: 5,
	}

	// Empty voice URLs fall back to voice_client in the settings file.
	cfg.VoiceBaseURL = strings.TrimSpace(os.Getenv("VOICE_BASE_URL"))
	cfg.VoiceWSURL = strings.TrimSpace(os.Getenv("VOICE_WS_URL"))
	cfg.GameHostURL = strings.TrimSpace(os.Getenv("GAME_HOST_URL"))
	cfg.GameHostWSURL = strings.TrimSpace(os.Getenv("GAME_HOST_WS_URL"))
	if v := strings.TrimSpace(os.Getenv("GAME_HOST_TRANSPORT")); v != "" {
		cfg.HostTransport = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("SETTINGS_FILE")); v != "" {
		cfg.SettingsFile = v
	}
	if v := strings.TrimSpace(os.Getenv("STATE_FILE")); v != "" {
		cfg.StateFile = v
	}
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	cfg.PluginInstaller = strings.TrimSpace(os.Getenv("PLUGIN_INSTALLER"))
	if v := strings.TrimSpace(os.Getenv("PLUGIN_VERSION")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PluginVersion = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SUPPORT_URL")); v != "" {
		cfg.SupportURL = v
	}
	if v := strings.TrimSpace(os.Getenv("MOD_VERSION")); v != "" {
		cfg.ModVersion = v
	}
	if v := strings.TrimSpace(os.Getenv("MAX_RECONNECT_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxReconnectAttempts = n
		}
	}

	if cfg.GameHostURL == "" {
		return nil, errors.New("GAME_HOST_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

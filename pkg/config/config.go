package config

import (
	"log"
	"strings"
	"time"

	"github.com/EduMesh/ClassLink/pkg/constants"
	"github.com/EduMesh/ClassLink/pkg/logger"
	"github.com/EduMesh/ClassLink/pkg/utils"
)

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         int           `json:"port"`
	Host         string        `json:"host"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// ProviderConfig holds the managed conferencing provider endpoint.
type ProviderConfig struct {
	BaseURL string `env:"PROVIDER_BASE_URL"`
	APIKey  string `env:"PROVIDER_API_KEY"`
}

var GlobalConfig *Config

// Config System common config
type Config struct {
	Server         ServerConfig
	Log            logger.LogConfig
	Provider       ProviderConfig
	Mode           string   `env:"MODE"`
	Addr           string   `env:"ADDR"`
	ServerName     string   `env:"SERVER_NAME"`
	SessionAPIBase string   `env:"SESSION_API_BASE"`
	PeerBackend    string   `env:"PEER_BACKEND"`
	ICEServers     []string `env:"ICE_SERVERS"`
}

func Load() error {
	mode := utils.GetStringOrDefault("MODE", "development")
	err := utils.LoadEnv(mode)
	if err != nil {
		// a missing .env is fine, every key has a default
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}
	GlobalConfig = &Config{
		Server: ServerConfig{
			Port:         utils.GetIntOrDefault("PORT", 7080),
			Host:         utils.GetStringOrDefault("HOST", ""),
			ReadTimeout:  utils.GetDurationOrDefault("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: utils.GetDurationOrDefault("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  utils.GetDurationOrDefault("IDLE_TIMEOUT", 120*time.Second),
		},
		Log: logger.LogConfig{
			Level:      utils.GetStringOrDefault("LOG_LEVEL", "info"),
			Filename:   utils.GetStringOrDefault("LOG_FILENAME", "./logs/app.log"),
			MaxSize:    utils.GetIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     utils.GetIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: utils.GetIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      utils.GetBoolOrDefault("LOG_DAILY", true),
		},
		Provider: ProviderConfig{
			BaseURL: utils.GetStringOrDefault(constants.ENV_PROVIDER_BASE, ""),
			APIKey:  utils.GetStringOrDefault(constants.ENV_PROVIDER_KEY, ""),
		},
		Mode:           mode,
		Addr:           utils.GetStringOrDefault("ADDR", ":7080"),
		ServerName:     utils.GetStringOrDefault("SERVER_NAME", "ClassLink"),
		SessionAPIBase: utils.GetStringOrDefault(constants.ENV_SESSION_API_BASE, ""),
		PeerBackend:    utils.GetStringOrDefault(constants.ENV_PEER_BACKEND, constants.BackendMesh),
		ICEServers:     splitList(utils.GetStringOrDefault(constants.ENV_ICE_SERVERS, "")),
	}
	return nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

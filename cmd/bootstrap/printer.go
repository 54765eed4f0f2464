package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/EduMesh/ClassLink/pkg/config"
	"github.com/EduMesh/ClassLink/pkg/logger"
)

// LogConfigInfo prints the loaded configuration at startup.
func LogConfigInfo() {
	logger.Info("system config load finished")

	logger.Info("base config",
		zap.String("addr", config.GlobalConfig.Addr),
		zap.String("mode", config.GlobalConfig.Mode),
		zap.String("peer_backend", config.GlobalConfig.PeerBackend),
		zap.String("session_api_base", config.GlobalConfig.SessionAPIBase),
		zap.Strings("ice_servers", config.GlobalConfig.ICEServers),
	)

	logger.Info("log config",
		zap.String("log_level", config.GlobalConfig.Log.Level),
		zap.String("log_filename", config.GlobalConfig.Log.Filename),
		zap.Int("log_max_size", config.GlobalConfig.Log.MaxSize),
		zap.Int("log_max_age", config.GlobalConfig.Log.MaxAge),
		zap.Int("log_max_backups", config.GlobalConfig.Log.MaxBackups),
	)
}

// PrintBannerFromFile reads the banner file and prints it, generating a
// plain one first if the file does not exist.
func PrintBannerFromFile(filename string, defaultText string) error {
	if err := EnsureBannerFile(filename, defaultText); err != nil {
		return fmt.Errorf("failed to ensure banner file: %w", err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")

	colors := []string{
		"\x1b[38;5;165m",
		"\x1b[38;5;189m",
		"\x1b[38;5;207m",
		"\x1b[38;5;219m",
		"\x1b[38;5;225m",
		"\x1b[38;5;231m",
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		color := colors[i%len(colors)]
		fmt.Println(color + line + "\x1b[0m")
	}
	return nil
}

// EnsureBannerFile writes a default banner when none exists yet.
func EnsureBannerFile(filename string, defaultText string) error {
	if _, err := os.Stat(filename); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if defaultText == "" {
		defaultText = "ClassLink"
	}
	border := strings.Repeat("=", len(defaultText)+8)
	banner := strings.Join([]string{
		border,
		"==  " + defaultText + "  ==",
		border,
		"",
	}, "\n")
	return os.WriteFile(filename, []byte(banner), 0o644)
}

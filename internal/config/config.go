package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

type Config struct {
	Server  ServerConfig
	Feishu  FeishuConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port  int
	Token string
}

type FeishuConfig struct {
	BaseURL string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Feishu: FeishuConfig{
			BaseURL: "https://open.feishu.cn/open-apis",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.larkmarks.app).
// On Linux the backend is a JSON file at
// $XDG_CONFIG_HOME/larkmarks/config.json.
//
// Environment variables (LARKMARKS_*) override backend values on all
// platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

const tokenKey = "server.token"

// EnsureAPIToken returns the persisted API token, generating and saving one
// on first use. A token supplied via LARKMARKS_API_TOKEN reaches the server
// through Load instead and leaves the persisted one untouched.
func EnsureAPIToken() (string, error) {
	return ensureAPIToken(newPlatformBackend())
}

func ensureAPIToken(b ConfigBackend) (string, error) {
	v, ok, err := b.GetString(tokenKey)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", tokenKey, err)
	}
	if ok && v != "" {
		return v, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	token := hex.EncodeToString(buf)
	if err := b.SetString(tokenKey, token); err != nil {
		return "", fmt.Errorf("persisting api token: %w", err)
	}
	return token, nil
}

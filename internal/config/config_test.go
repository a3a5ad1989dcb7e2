package config

import (
	"strings"
	"testing"
)

// mapBackend is an in-memory ConfigBackend for tests.
type mapBackend struct {
	data map[string]any
}

func newMapBackend() *mapBackend {
	return &mapBackend{data: make(map[string]any)}
}

func (b *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (b *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (b *mapBackend) SetString(key, val string) error {
	b.data[key] = val
	return nil
}

func (b *mapBackend) SetInt(key string, val int) error {
	b.data[key] = val
	return nil
}

func (b *mapBackend) Delete(key string) error {
	delete(b.data, key)
	return nil
}

func TestDefaults(t *testing.T) {
	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Feishu.BaseURL != "https://open.feishu.cn/open-apis" {
		t.Errorf("Feishu.BaseURL = %q", cfg.Feishu.BaseURL)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

func TestBackendValues(t *testing.T) {
	b := newMapBackend()
	b.data["server.port"] = 5000
	b.data["log.level"] = "debug"
	b.data["feishu.base_url"] = "https://open.larksuite.com/open-apis"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Feishu.BaseURL != "https://open.larksuite.com/open-apis" {
		t.Errorf("Feishu.BaseURL = %q", cfg.Feishu.BaseURL)
	}
}

func TestEnvOverride(t *testing.T) {
	b := newMapBackend()
	b.data["server.port"] = 5000

	t.Setenv("LARKMARKS_SERVER_PORT", "9000")
	t.Setenv("LARKMARKS_API_TOKEN", "env-token")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want env override 9000", cfg.Server.Port)
	}
	if cfg.Server.Token != "env-token" {
		t.Errorf("Server.Token = %q, want env override", cfg.Server.Token)
	}
}

func TestTokenNotReadFromBackendOnLoad(t *testing.T) {
	b := newMapBackend()
	b.data[tokenKey] = "persisted"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Token != "" {
		t.Errorf("Server.Token = %q, want empty; secrets load via EnsureAPIToken", cfg.Server.Token)
	}
}

func TestEnsureAPIToken(t *testing.T) {
	b := newMapBackend()

	token, err := ensureAPIToken(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(token))
	}

	again, err := ensureAPIToken(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != token {
		t.Errorf("second call returned %q, want persisted %q", again, token)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	for _, info := range ShowAll(defaults()) {
		if strings.Contains(info.Key, "token") {
			t.Errorf("secret key %q exposed by ShowAll", info.Key)
		}
	}
}

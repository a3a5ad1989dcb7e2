// Package settings manages the persisted collection of Feishu Bitable
// configurations: which one is active, the legacy single-config mirror kept
// for older call sites, and auxiliary preferences.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kalambet/larkmarks/internal/kv"
)

// ErrNoConfig is returned when no saved configuration resolves as active.
var ErrNoConfig = errors.New("no active Feishu configuration; add one and select it first")

// ErrInvalidImport is returned when an import payload fails validation.
// Nothing is applied in that case.
var ErrInvalidImport = errors.New("invalid settings payload")

// ConfigItem is one saved Bitable connection.
type ConfigItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AppID     string `json:"appId"`
	AppSecret string `json:"appSecret"`
	BaseID    string `json:"baseId"`
	TableID   string `json:"tableId"`
}

// LegacyConfig mirrors the active item's credential and table fields under
// the pre-multi-config key, so call sites from before the multi-config era
// keep reading a valid single configuration.
type LegacyConfig struct {
	AppID     string `json:"appId"`
	AppSecret string `json:"appSecret"`
	BaseID    string `json:"baseId"`
	TableID   string `json:"tableId"`
}

// OtherSettings holds auxiliary preferences.
type OtherSettings struct {
	RecommendCount int `json:"recommendCount"`
}

// ExportData is the serializable snapshot of all persisted settings.
type ExportData struct {
	FeishuConfigs  []ConfigItem  `json:"feishuConfigs"`
	ActiveConfigID string        `json:"activeConfigId"`
	OtherSettings  OtherSettings `json:"otherSettings"`
}

// Persisted key names. These are shared with the browser-extension era of
// the data and must not change.
const (
	keyConfigs  = "feishu-configs"
	keyActiveID = "active-config-id"
	keyLegacy   = "feishu-config"
	keyOther    = "other-settings"
)

const defaultRecommendCount = 12

// Registry owns the settings stores. Construct one at startup and pass it to
// every component that needs configuration.
type Registry struct {
	configs *kv.Store[[]ConfigItem]
	active  *kv.Store[string]
	legacy  *kv.Store[LegacyConfig]
	other   *kv.Store[OtherSettings]
}

// NewRegistry builds the registry on top of area, reading (or seeding) each
// persisted key.
func NewRegistry(ctx context.Context, area kv.Area) *Registry {
	return &Registry{
		configs: kv.NewStore(ctx, area, keyConfigs, []ConfigItem{}, kv.Options{}),
		active:  kv.NewStore(ctx, area, keyActiveID, "", kv.Options{}),
		legacy:  kv.NewStore(ctx, area, keyLegacy, LegacyConfig{}, kv.Options{}),
		other: kv.NewStore(ctx, area, keyOther,
			OtherSettings{RecommendCount: defaultRecommendCount},
			kv.Options{MergeDefaults: true}),
	}
}

// Close stops all stores from watching the area.
func (r *Registry) Close() {
	r.configs.Close()
	r.active.Close()
	r.legacy.Close()
	r.other.Close()
}

// Configs returns the saved configuration collection.
func (r *Registry) Configs() []ConfigItem {
	return r.configs.Get()
}

// Active returns the configuration whose id matches the active id. An empty
// or dangling active id yields ok=false.
func (r *Registry) Active() (ConfigItem, bool) {
	id := r.active.Get()
	if id == "" {
		return ConfigItem{}, false
	}
	for _, c := range r.configs.Get() {
		if c.ID == id {
			return c, true
		}
	}
	return ConfigItem{}, false
}

// RecommendCount returns the configured recommendation list size.
func (r *Registry) RecommendCount() int {
	return r.other.Get().RecommendCount
}

// Add saves a new configuration, assigning an id when none is given. The
// first configuration ever added becomes active.
func (r *Registry) Add(ctx context.Context, item ConfigItem) ConfigItem {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	configs := append(r.configs.Get(), item)
	r.configs.Set(ctx, configs)
	if r.active.Get() == "" {
		r.active.Set(ctx, item.ID)
	}
	r.updateLegacy(ctx)
	return item
}

// Remove deletes the configuration with the given id. When the active
// configuration is removed, the first remaining one becomes active.
func (r *Registry) Remove(ctx context.Context, id string) bool {
	configs := r.configs.Get()
	kept := make([]ConfigItem, 0, len(configs))
	removed := false
	for _, c := range configs {
		if c.ID == id {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	if !removed {
		return false
	}
	r.configs.Set(ctx, kept)
	if r.active.Get() == id {
		next := ""
		if len(kept) > 0 {
			next = kept[0].ID
		}
		r.active.Set(ctx, next)
	}
	r.updateLegacy(ctx)
	return true
}

// SetActive selects the configuration with the given id.
func (r *Registry) SetActive(ctx context.Context, id string) error {
	for _, c := range r.configs.Get() {
		if c.ID == id {
			r.active.Set(ctx, id)
			r.updateLegacy(ctx)
			return nil
		}
	}
	return fmt.Errorf("no configuration with id %q", id)
}

// Export snapshots all persisted settings.
func (r *Registry) Export() ExportData {
	return ExportData{
		FeishuConfigs:  r.configs.Get(),
		ActiveConfigID: r.active.Get(),
		OtherSettings:  r.other.Get(),
	}
}

// importPayload defers field decoding so a malformed section can be rejected
// (configs) or skipped (otherSettings) without touching anything else.
type importPayload struct {
	FeishuConfigs  json.RawMessage `json:"feishuConfigs"`
	ActiveConfigID string          `json:"activeConfigId"`
	OtherSettings  json.RawMessage `json:"otherSettings"`
}

// Import validates raw as an ExportData document and applies it. Validation
// failures reject the whole payload: no persisted state changes. On success
// the collection is replaced, the active id is taken from the payload when
// it still resolves (first item otherwise), auxiliary settings are replaced
// when their shape is valid, and the legacy mirror is re-derived.
func (r *Registry) Import(ctx context.Context, raw []byte) error {
	var payload importPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	var configs []ConfigItem
	if err := json.Unmarshal(payload.FeishuConfigs, &configs); err != nil || configs == nil {
		return fmt.Errorf("%w: feishuConfigs is not a list", ErrInvalidImport)
	}
	for i, c := range configs {
		if c.ID == "" || c.Name == "" || c.AppID == "" || c.AppSecret == "" ||
			c.BaseID == "" || c.TableID == "" {
			return fmt.Errorf("%w: config %d is missing required fields", ErrInvalidImport, i)
		}
	}

	r.configs.Set(ctx, configs)

	activeID := ""
	for _, c := range configs {
		if c.ID == payload.ActiveConfigID {
			activeID = payload.ActiveConfigID
			break
		}
	}
	if activeID == "" && len(configs) > 0 {
		activeID = configs[0].ID
	}
	if activeID != "" {
		r.active.Set(ctx, activeID)
	}

	var other OtherSettings
	if len(payload.OtherSettings) > 0 && json.Unmarshal(payload.OtherSettings, &other) == nil && other.RecommendCount > 0 {
		r.other.Set(ctx, other)
	}

	r.updateLegacy(ctx)
	return nil
}

// updateLegacy re-derives the legacy single-config mirror from the active
// configuration. Idempotent; runs after anything that can change which
// configuration is active.
func (r *Registry) updateLegacy(ctx context.Context) {
	active, ok := r.Active()
	if !ok {
		return
	}
	r.legacy.Set(ctx, LegacyConfig{
		AppID:     active.AppID,
		AppSecret: active.AppSecret,
		BaseID:    active.BaseID,
		TableID:   active.TableID,
	})
}

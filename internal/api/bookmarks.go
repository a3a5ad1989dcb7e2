package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/larkmarks/internal/bitable"
	"github.com/kalambet/larkmarks/internal/settings"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Catalog is the remote table surface the handlers call. *bitable.Client
// satisfies it; tests substitute a fake.
type Catalog interface {
	Save(ctx context.Context, b bitable.Bookmark) error
	ExistsByURL(ctx context.Context, url string) (bool, error)
	Search(ctx context.Context, query string) ([]bitable.Record, error)
	Recommended(ctx context.Context, limit int) ([]bitable.Record, error)
	TestConnection(ctx context.Context) error
}

type Deps struct {
	Settings   *settings.Registry
	Token      string
	NewCatalog func(cfg bitable.Config) Catalog
}

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/bookmarks", handleSaveBookmark(deps))
		r.Get("/bookmarks/check", handleCheckURL(deps))
		r.Get("/bookmarks/recommended", handleRecommended(deps))
		r.Get("/bookmarks/search", handleSearch(deps))

		r.Get("/settings/configs", handleListConfigs(deps))
		r.Post("/settings/configs", handleAddConfig(deps))
		r.Delete("/settings/configs/{id}", handleRemoveConfig(deps))
		r.Put("/settings/active", handleSetActive(deps))
		r.Get("/settings/export", handleExport(deps))
		r.Post("/settings/import", handleImport(deps))
		r.Post("/settings/test", handleTestConnection(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// catalog resolves the active configuration into a client for one request.
func catalog(deps Deps) (Catalog, error) {
	cfg, ok := deps.Settings.Active()
	if !ok {
		return nil, settings.ErrNoConfig
	}
	return deps.NewCatalog(bitableConfig(cfg)), nil
}

func bitableConfig(item settings.ConfigItem) bitable.Config {
	return bitable.Config{
		AppID:     item.AppID,
		AppSecret: item.AppSecret,
		BaseID:    item.BaseID,
		TableID:   item.TableID,
	}
}

func handleSaveBookmark(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var b bitable.Bookmark
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		c, err := catalog(deps)
		if err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		if err := c.Save(r.Context(), b); err != nil {
			catalogError(w, err)
			return
		}
		writeSuccess(w, nil)
	}
}

func handleCheckURL(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url := r.URL.Query().Get("url")
		if url == "" {
			httpError(w, http.StatusBadRequest, "url is required")
			return
		}

		c, err := catalog(deps)
		if err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		exists, err := c.ExistsByURL(r.Context(), url)
		if err != nil {
			catalogError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"exists":  exists,
		})
	}
}

func handleRecommended(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := deps.Settings.RecommendCount()
		if s := r.URL.Query().Get("limit"); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v <= 0 {
				httpError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = v
		}

		c, err := catalog(deps)
		if err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		records, err := c.Recommended(r.Context(), limit)
		if err != nil {
			catalogError(w, err)
			return
		}
		if records == nil {
			records = []bitable.Record{}
		}
		writeSuccess(w, records)
	}
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "q is required")
			return
		}

		c, err := catalog(deps)
		if err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		records, err := c.Search(r.Context(), query)
		if err != nil {
			catalogError(w, err)
			return
		}
		if records == nil {
			records = []bitable.Record{}
		}
		writeSuccess(w, records)
	}
}

// catalogError maps client errors onto HTTP statuses.
func catalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bitable.ErrValidation):
		httpError(w, http.StatusBadRequest, "%v", err)
	case errors.Is(err, bitable.ErrDuplicate):
		httpError(w, http.StatusConflict, "%v", err)
	case errors.Is(err, bitable.ErrAuth):
		httpError(w, http.StatusBadGateway, "%v", err)
	default:
		var reqErr *bitable.RequestError
		if errors.As(err, &reqErr) {
			httpError(w, http.StatusBadGateway, "%v", err)
			return
		}
		httpError(w, http.StatusInternalServerError, "%v", err)
	}
}

func writeSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{"success": true}
	if data != nil {
		payload["data"] = data
	}
	json.NewEncoder(w).Encode(payload)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   fmt.Sprintf(format, args...),
	})
}

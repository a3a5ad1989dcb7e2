package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/larkmarks/internal/settings"
)

func handleListConfigs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, deps.Settings.Configs())
	}
}

func handleAddConfig(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var item settings.ConfigItem
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if item.Name == "" || item.AppID == "" || item.AppSecret == "" || item.BaseID == "" || item.TableID == "" {
			httpError(w, http.StatusBadRequest, "name, appId, appSecret, baseId and tableId are required")
			return
		}

		writeSuccess(w, deps.Settings.Add(r.Context(), item))
	}
}

func handleRemoveConfig(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !deps.Settings.Remove(r.Context(), id) {
			httpError(w, http.StatusNotFound, "configuration %q not found", id)
			return
		}
		writeSuccess(w, nil)
	}
}

func handleSetActive(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if err := deps.Settings.SetActive(r.Context(), req.ID); err != nil {
			httpError(w, http.StatusNotFound, "%v", err)
			return
		}
		writeSuccess(w, nil)
	}
}

func handleExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, deps.Settings.Export())
	}
}

func handleImport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		raw, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "reading request body: %v", err)
			return
		}
		if err := deps.Settings.Import(r.Context(), raw); err != nil {
			if errors.Is(err, settings.ErrInvalidImport) {
				httpError(w, http.StatusBadRequest, "%v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "%v", err)
			return
		}
		writeSuccess(w, nil)
	}
}

func handleTestConnection(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		// A config may be supplied in the body to test before saving it;
		// otherwise the active one is tested.
		var c Catalog
		if r.ContentLength > 0 {
			var item settings.ConfigItem
			if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
				httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
				return
			}
			c = deps.NewCatalog(bitableConfig(item))
		} else {
			var err error
			c, err = catalog(deps)
			if err != nil {
				httpError(w, http.StatusBadRequest, "%v", err)
				return
			}
		}

		if err := c.TestConnection(r.Context()); err != nil {
			catalogError(w, err)
			return
		}
		writeSuccess(w, nil)
	}
}

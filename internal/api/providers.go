package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/allaspectsdev/provswitch/internal/bridge"
	"github.com/allaspectsdev/provswitch/internal/catalog"
	"github.com/allaspectsdev/provswitch/internal/endpoint"
	"github.com/allaspectsdev/provswitch/internal/provider"
	"github.com/allaspectsdev/provswitch/internal/store"
)

type providerRequest struct {
	App        string `json:"app"`
	Name       string `json:"name"`
	TemplateID string `json:"template_id"`
	Blob       string `json:"blob"`
}

// providerDetail is a provider with its projected fields and custom endpoints.
type providerDetail struct {
	*provider.Provider
	Fields    bridge.Fields             `json:"fields"`
	Endpoints []endpoint.CustomEndpoint `json:"endpoints"`
}

// draftProvider resolves a create request into an unsaved provider. A
// template seeds the blob unless the request carries one.
func (s *Server) draftProvider(req providerRequest) (provider.Provider, error) {
	if req.TemplateID != "" {
		tmpl, ok := s.opts.Catalog.Template(req.TemplateID)
		if !ok {
			return provider.Provider{}, badRequest("unknown template %q", req.TemplateID)
		}
		if req.App != "" && provider.App(req.App) != tmpl.App {
			return provider.Provider{}, badRequest("template %q is for app %q", tmpl.ID, tmpl.App)
		}
		p, err := tmpl.NewProvider(req.Name)
		if err != nil {
			return provider.Provider{}, err
		}
		if req.Blob != "" {
			p.Blob = req.Blob
		}
		return p, nil
	}

	app, err := provider.ParseApp(req.App)
	if err != nil {
		return provider.Provider{}, err
	}
	if req.Name == "" {
		return provider.Provider{}, badRequest("name is required")
	}
	return provider.Provider{App: app, Name: req.Name, Format: provider.FormatFor(app), Blob: req.Blob}, nil
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	var app provider.App
	if q := r.URL.Query().Get("app"); q != "" {
		parsed, err := provider.ParseApp(q)
		if err != nil {
			writeError(w, err)
			return
		}
		app = parsed
	}
	list, err := s.opts.Store.ListProviders(r.Context(), app)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []*provider.Provider{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.draftProvider(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.opts.Store.CreateProvider(r.Context(), &p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.opts.Store.GetProvider(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	fields, err := p.Fields()
	if err != nil {
		writeError(w, err)
		return
	}
	eps, err := s.opts.Store.ListEndpoints(ctx, p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if eps == nil {
		eps = []endpoint.CustomEndpoint{}
	}
	writeJSON(w, http.StatusOK, providerDetail{Provider: p, Fields: fields, Endpoints: eps})
}

func (s *Server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Store.DeleteProvider(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleProbeHistory returns recent probe records. Accepts ?limit=N.
func (s *Server) handleProbeHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.opts.Store.GetProvider(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	records, err := s.opts.Store.ListProbeResults(ctx, id, queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []store.ProbeRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider_id": id, "results": records})
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	if s.opts.Switcher == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "live config writing is disabled"})
		return
	}
	res, err := s.opts.Switcher.Switch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleTemplates lists catalog templates. Accepts ?app=claude|codex|gemini.
func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	apps := provider.Apps
	if q := r.URL.Query().Get("app"); q != "" {
		app, err := provider.ParseApp(q)
		if err != nil {
			writeError(w, err)
			return
		}
		apps = []provider.App{app}
	}
	out := []catalog.Template{}
	for _, app := range apps {
		out = append(out, s.opts.Catalog.Templates(app)...)
	}
	writeJSON(w, http.StatusOK, out)
}

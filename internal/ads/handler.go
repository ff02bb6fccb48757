package ads

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"adboard/internal/apperr"
	"adboard/internal/auth"
	"adboard/internal/httpjson"
)

type Handler struct {
	Service *Service
	Logger  *slog.Logger
}

// Routes registers the advertisement endpoints. secured wraps the writes,
// and the reads too when the service checks read rights.
func (h *Handler) Routes(mux *http.ServeMux, secured func(http.Handler) http.Handler) {
	read := func(next http.Handler) http.Handler { return next }
	if !h.Service.PublicReads() {
		read = secured
	}
	mux.Handle("GET /api/v1/ads", read(http.HandlerFunc(h.list)))
	mux.Handle("GET /api/v1/ads/{id}", read(http.HandlerFunc(h.get)))
	mux.Handle("POST /api/v1/ads", secured(http.HandlerFunc(h.create)))
	mux.Handle("PUT /api/v1/ads/{id}", secured(http.HandlerFunc(h.replace)))
	mux.Handle("PATCH /api/v1/ads/{id}", secured(http.HandlerFunc(h.update)))
	mux.Handle("DELETE /api/v1/ads/{id}", secured(http.HandlerFunc(h.delete)))
}

func parseFilter(q url.Values) (Filter, error) {
	f := Filter{Title: q.Get("title")}
	for _, p := range []struct {
		key string
		dst **float64
	}{
		{"min_price", &f.MinPrice},
		{"max_price", &f.MaxPrice},
	} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return f, fmt.Errorf("%w: bad %s %q", apperr.ErrInvalidInput, p.key, raw)
		}
		*p.dst = &v
	}
	if raw := q.Get("author_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return f, fmt.Errorf("%w: bad author_id %q", apperr.ErrInvalidInput, raw)
		}
		f.AuthorID = id
	}
	if raw := q.Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil {
			return f, fmt.Errorf("%w: bad limit %q", apperr.ErrInvalidInput, raw)
		}
		f.Limit = l
	}
	return f, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		httpjson.Error(w, h.Logger, "list advertisements", err)
		return
	}
	caller, _ := auth.UserFromContext(r.Context())
	result, err := h.Service.List(r.Context(), caller, f)
	if err != nil {
		httpjson.Error(w, h.Logger, "list advertisements", err)
		return
	}
	httpjson.Write(w, http.StatusOK, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := auth.PathID(r)
	if err != nil {
		httpjson.Error(w, h.Logger, "get advertisement", err)
		return
	}
	caller, _ := auth.UserFromContext(r.Context())
	ad, err := h.Service.Get(r.Context(), caller, id)
	if err != nil {
		httpjson.Error(w, h.Logger, "get advertisement", err)
		return
	}
	httpjson.Write(w, http.StatusOK, ad)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpjson.Decode(r, &in); err != nil {
		httpjson.Error(w, h.Logger, "create advertisement", err)
		return
	}
	caller, _ := auth.UserFromContext(r.Context())
	ad, err := h.Service.Create(r.Context(), caller, in)
	if err != nil {
		httpjson.Error(w, h.Logger, "create advertisement", err)
		return
	}
	httpjson.Write(w, http.StatusCreated, ad)
}

func (h *Handler) replace(w http.ResponseWriter, r *http.Request) {
	id, err := auth.PathID(r)
	if err != nil {
		httpjson.Error(w, h.Logger, "replace advertisement", err)
		return
	}
	var in Input
	if err := httpjson.Decode(r, &in); err != nil {
		httpjson.Error(w, h.Logger, "replace advertisement", err)
		return
	}
	caller, _ := auth.UserFromContext(r.Context())
	ad, err := h.Service.Replace(r.Context(), caller, id, in)
	if err != nil {
		httpjson.Error(w, h.Logger, "replace advertisement", err)
		return
	}
	httpjson.Write(w, http.StatusOK, ad)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := auth.PathID(r)
	if err != nil {
		httpjson.Error(w, h.Logger, "update advertisement", err)
		return
	}
	var p Patch
	if err := httpjson.Decode(r, &p); err != nil {
		httpjson.Error(w, h.Logger, "update advertisement", err)
		return
	}
	caller, _ := auth.UserFromContext(r.Context())
	ad, err := h.Service.Update(r.Context(), caller, id, p)
	if err != nil {
		httpjson.Error(w, h.Logger, "update advertisement", err)
		return
	}
	httpjson.Write(w, http.StatusOK, ad)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := auth.PathID(r)
	if err != nil {
		httpjson.Error(w, h.Logger, "delete advertisement", err)
		return
	}
	caller, _ := auth.UserFromContext(r.Context())
	if err := h.Service.Delete(r.Context(), caller, id); err != nil {
		httpjson.Error(w, h.Logger, "delete advertisement", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

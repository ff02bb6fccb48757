package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"adboard/internal/apperr"
	"adboard/internal/httpjson"
)

type Handler struct {
	Service *Service
	Logger  *slog.Logger
}

// Routes registers the auth, user, role, and right endpoints. secured wraps
// handlers that need an authenticated caller.
func (h *Handler) Routes(mux *http.ServeMux, secured func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /api/v1/auth/register", h.register)
	mux.HandleFunc("POST /api/v1/auth/login", h.login)
	mux.Handle("POST /api/v1/auth/logout", secured(http.HandlerFunc(h.logout)))
	mux.Handle("GET /api/v1/auth/me", secured(http.HandlerFunc(h.me)))

	mux.Handle("GET /api/v1/users/{id}", secured(http.HandlerFunc(h.getUser)))
	mux.Handle("PATCH /api/v1/users/{id}", secured(http.HandlerFunc(h.updateUser)))
	mux.Handle("DELETE /api/v1/users/{id}", secured(http.HandlerFunc(h.deleteUser)))
	mux.Handle("POST /api/v1/users/{id}/roles", secured(http.HandlerFunc(h.assignRole)))

	mux.Handle("GET /api/v1/roles", secured(http.HandlerFunc(h.listRoles)))
	mux.Handle("POST /api/v1/roles", secured(http.HandlerFunc(h.createRole)))
	mux.Handle("POST /api/v1/roles/{id}/rights", secured(http.HandlerFunc(h.grantRight)))

	mux.Handle("GET /api/v1/rights", secured(http.HandlerFunc(h.listRights)))
	mux.Handle("POST /api/v1/rights", secured(http.HandlerFunc(h.createRight)))
}

type credentials struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := httpjson.Decode(r, &in); err != nil {
		httpjson.Error(w, h.Logger, "register", err)
		return
	}
	u, err := h.Service.Register(r.Context(), in.Name, in.Password)
	if err != nil {
		httpjson.Error(w, h.Logger, "register", err)
		return
	}
	httpjson.Write(w, http.StatusCreated, u)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := httpjson.Decode(r, &in); err != nil {
		httpjson.Error(w, h.Logger, "login", err)
		return
	}
	token, err := h.Service.Login(r.Context(), in.Name, in.Password)
	if err != nil {
		httpjson.Error(w, h.Logger, "login", err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Logout(r.Context(), tokenFromContext(r.Context())); err != nil {
		httpjson.Error(w, h.Logger, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	httpjson.Write(w, http.StatusOK, u)
}

// PathID parses the {id} path segment.
func PathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad id %q", apperr.ErrInvalidInput, r.PathValue("id"))
	}
	return id, nil
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		httpjson.Error(w, h.Logger, "get user", err)
		return
	}
	caller, _ := UserFromContext(r.Context())
	u, err := h.Service.GetUser(r.Context(), caller, id)
	if err != nil {
		httpjson.Error(w, h.Logger, "get user", err)
		return
	}
	httpjson.Write(w, http.StatusOK, u)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		httpjson.Error(w, h.Logger, "update user", err)
		return
	}
	var in struct {
		Password string `json:"password"`
	}
	if err := httpjson.Decode(r, &in); err != nil {
		httpjson.Error(w, h.Logger, "update user", err)
		return
	}
	caller, _ := UserFromContext(r.Context())
	if err := h.Service.ChangePassword(r.Context(), caller, id, in.Password); err != nil {
		httpjson.Error(w, h.Logger, "update user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		httpjson.Error(w, h.Logger, "delete user", err)
		return
	}
	caller, _ := UserFromContext(r.Context())
	if err := h.Service.DeleteUser(r.Context(), caller, id); err != nil {
		httpjson.Error(w, h.Logger, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		httpjson.Error(w, h.Logger, "assign role", err)
		return
	}
	var in struct {
		Role string `json:"role"`
	}
	if err := httpjson.Decode(r, &in); err != nil {
		httpjson.Error(w, h.Logger, "assign role", err)
		return
	}
	caller, _ := UserFromContext(r.Context())
	if err := h.Service.AssignRole(r.Context(), caller, id, in.Role); err != nil {
		httpjson.Error(w, h.Logger, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	caller, _ := UserFromContext(r.Context())
	roles, err := h.Service.ListRoles(r.Context(), caller)
	if err != nil {
		httpjson.Error(w, h.Logger, "list roles", err)
		return
	}
	httpjson.Write(w, http.StatusOK, roles)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := httpjson.Decode(r, &in); err != nil {
		httpjson.Error(w, h.Logger, "create role", err)
		return
	}
	caller, _ := UserFromContext(r.Context())
	role, err := h.Service.CreateRole(r.Context(), caller, in.Name)
	if err != nil {
		httpjson.Error(w, h.Logger, "create role", err)
		return
	}
	httpjson.Write(w, http.StatusCreated, role)
}

func (h *Handler) grantRight(w http.ResponseWriter, r *http.Request) {
	roleID, err := PathID(r)
	if err != nil {
		httpjson.Error(w, h.Logger, "grant right", err)
		return
	}
	var in struct {
		RightID int64 `json:"right_id"`
	}
	if err := httpjson.Decode(r, &in); err != nil {
		httpjson.Error(w, h.Logger, "grant right", err)
		return
	}
	caller, _ := UserFromContext(r.Context())
	if err := h.Service.GrantRight(r.Context(), caller, roleID, in.RightID); err != nil {
		httpjson.Error(w, h.Logger, "grant right", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRights(w http.ResponseWriter, r *http.Request) {
	caller, _ := UserFromContext(r.Context())
	rights, err := h.Service.ListRights(r.Context(), caller)
	if err != nil {
		httpjson.Error(w, h.Logger, "list rights", err)
		return
	}
	httpjson.Write(w, http.StatusOK, rights)
}

func (h *Handler) createRight(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Model   string `json:"model"`
		Write   bool   `json:"write"`
		Read    bool   `json:"read"`
		OnlyOwn *bool  `json:"only_own"`
	}
	if err := httpjson.Decode(r, &in); err != nil {
		httpjson.Error(w, h.Logger, "create right", err)
		return
	}
	onlyOwn := true
	if in.OnlyOwn != nil {
		onlyOwn = *in.OnlyOwn
	}
	caller, _ := UserFromContext(r.Context())
	right, err := h.Service.CreateRight(r.Context(), caller, Right{
		Model:   in.Model,
		Write:   in.Write,
		Read:    in.Read,
		OnlyOwn: onlyOwn,
	})
	if err != nil {
		httpjson.Error(w, h.Logger, "create right", err)
		return
	}
	httpjson.Write(w, http.StatusCreated, right)
}

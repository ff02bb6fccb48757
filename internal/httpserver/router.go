package httpserver

import (
	"net/http"

	"log/slog"

	"adboard/internal/ads"
	"adboard/internal/auth"
	"adboard/internal/httpjson"
)

func NewRouter(
	logger *slog.Logger,
	authHandler *auth.Handler,
	adsHandler *ads.Handler,
	secured func(http.Handler) http.Handler,
) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Users, roles, rights, and tokens
	authHandler.Routes(mux, secured)

	// Advertisements
	adsHandler.Routes(mux, secured)

	return withCORS(withRequestLog(logger, mux))
}

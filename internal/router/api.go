package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/oidc"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/processo"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/user"
)

// APIOptions wires the backend server.
type APIOptions struct {
	Users     *user.Handler
	OIDC      *oidc.Handler
	Processos *processo.Handler
}

// RegisterAPIRoutes builds the backend handler. Processo routes require a
// bearer token issued by the OIDC service.
func RegisterAPIRoutes(opts APIOptions, logger *zap.SugaredLogger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/Auth/authenticate", opts.Users.Authenticate)
	opts.OIDC.Register(mux)
	opts.Processos.Register(mux, "/processos", opts.OIDC.RequireBearer)

	return Chain(mux,
		LoggingMiddleware(logger),
		MetricsMiddleware("api"),
		SecurityHeadersMiddleware(),
	)
}

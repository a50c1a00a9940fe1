// Package router provides HTTP routing configuration using Chi.
package router

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/remiblancher/sigcore/internal/api/handler"
	"github.com/remiblancher/sigcore/internal/api/middleware"
	"github.com/remiblancher/sigcore/internal/api/service"
	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

//go:embed openapi.yaml
var openapiSpec []byte

// defaultMaxBodyBytes applies when Config.MaxBodyBytes is zero.
const defaultMaxBodyBytes = 1 << 20

// Config holds router configuration.
type Config struct {
	Version string

	// Dispatcher resolves verification keys; nil uses the default registry.
	Dispatcher *pkicrypto.Dispatcher

	// Options configure the signature service.
	Options []service.Option

	MaxBodyBytes int64
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = pkicrypto.NewDispatcher(nil)
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CORS)

	// Health endpoints
	healthHandler := handler.NewHealthHandler(cfg.Version, dispatcher.Registry())
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// OpenAPI spec
	r.Get("/api/openapi.yaml", serveOpenAPISpec)

	sigService := service.NewSignatureService(dispatcher, cfg.Options...)
	sigHandler := handler.NewSignatureHandler(sigService)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.MaxBodySize(maxBody))

		r.Get("/hashes", sigHandler.Hashes)

		r.Route("/encode", func(r chi.Router) {
			r.Post("/pkcs1", sigHandler.EncodePKCS1)
			r.Post("/pss", sigHandler.EncodePSS)
		})

		r.Route("/convert", func(r chi.Router) {
			r.Post("/der", sigHandler.ConvertToDER)
			r.Post("/plain", sigHandler.ConvertToPlain)
		})

		r.Post("/verify", sigHandler.Verify)
		r.Post("/cose/verify", sigHandler.VerifyCOSE)
	})

	return r
}

// serveOpenAPISpec serves the OpenAPI specification file.
func serveOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapiSpec)
}

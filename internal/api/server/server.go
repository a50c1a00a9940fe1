package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/net/netutil"

	"github.com/remiblancher/sigcore/internal/api/router"
)

// Server represents the HTTP server.
type Server struct {
	cfg       *Config
	routerCfg *router.Config
	srv       *http.Server
	out       io.Writer
}

// New creates a new Server. routerCfg configures the signature service;
// its body limit defaults to cfg.MaxBodyBytes.
func New(cfg *Config, routerCfg *router.Config) *Server {
	if routerCfg == nil {
		routerCfg = &router.Config{}
	}
	if routerCfg.MaxBodyBytes == 0 {
		routerCfg.MaxBodyBytes = cfg.MaxBodyBytes
	}
	return &Server{
		cfg:       cfg,
		routerCfg: routerCfg,
		out:       os.Stdout,
	}
}

// Start listens on the configured address and blocks until SIGINT/SIGTERM.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address(), err)
	}

	s.printStartupInfo(ln.Addr().String())
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}

	s.srv = &http.Server{
		Handler:      router.New(s.routerCfg),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		if s.cfg.TLSEnabled() {
			errChan <- s.srv.ServeTLS(ln, s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			errChan <- s.srv.Serve(ln)
		}
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Printf("Shutting down: %v", context.Cause(ctx))
		return s.shutdown()
	}
}

// shutdown gracefully stops the server.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	log.Println("Server stopped gracefully")
	return nil
}

// printStartupInfo prints server startup information.
func (s *Server) printStartupInfo(addr string) {
	scheme := "http"
	if s.cfg.TLSEnabled() {
		scheme = "https"
	}

	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "sigcore API Server")
	fmt.Fprintln(s.out, "==================")
	fmt.Fprintf(s.out, "  Version:  %s\n", s.routerCfg.Version)
	fmt.Fprintf(s.out, "  Address:  %s://%s\n", scheme, addr)
	if s.cfg.MaxConnections > 0 {
		fmt.Fprintf(s.out, "  Max conn: %d\n", s.cfg.MaxConnections)
	}
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "Endpoints:")
	fmt.Fprintln(s.out, "  GET  /health              - Health check")
	fmt.Fprintln(s.out, "  GET  /ready               - Readiness check")
	fmt.Fprintln(s.out, "  GET  /api/openapi.yaml    - OpenAPI specification")
	fmt.Fprintln(s.out, "  GET  /api/v1/hashes       - Registered digests")
	fmt.Fprintln(s.out, "  POST /api/v1/encode/*     - EMSA-PKCS1-v1_5 and EMSA-PSS encoding")
	fmt.Fprintln(s.out, "  POST /api/v1/convert/*    - DSA signature format conversion")
	fmt.Fprintln(s.out, "  POST /api/v1/verify       - Signature verification")
	fmt.Fprintln(s.out, "  POST /api/v1/cose/verify  - COSE_Sign1 verification")
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "Use Ctrl+C to stop")
	fmt.Fprintln(s.out)
}

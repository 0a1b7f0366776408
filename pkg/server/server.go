package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultShutdownTimeout = 20 * time.Second

type Server struct {
	*http.Server
	// CleanUpFuncs is a list of functions that will be called when the server has shutdown.
	// They run concurrently and share the shutdown deadline.
	CleanUpFuncs []func(ctx context.Context)
	// CertFile and KeyFile enable TLS when both are set.
	CertFile        string
	KeyFile         string
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

func (s *Server) AddCleanupFunc(f func(ctx context.Context)) {
	s.CleanUpFuncs = append(s.CleanUpFuncs, f)
}

// Start serves until ctx is done, then shuts the server down gracefully and runs the cleanup functions.
// It returns an error when the server fails to serve or the shutdown does not complete in time.
func (s *Server) Start(ctx context.Context) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := s.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	s.Server.BaseContext = func(_ net.Listener) context.Context {
		return ctx
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server started", zap.String("addr", s.Server.Addr), zap.Bool("tls", s.tls()))
		var err error
		if s.tls() {
			err = s.ListenAndServeTLS(s.CertFile, s.KeyFile)
		} else {
			err = s.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var err error
	select {
	case err = <-serveErr:
		if err != nil {
			err = fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if shutdownErr := s.Server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("server shutdown", zap.Error(shutdownErr))
		err = errors.Join(err, fmt.Errorf("shutdown: %w", shutdownErr))
	}

	var wg sync.WaitGroup
	for _, cf := range s.CleanUpFuncs {
		cf := cf
		wg.Add(1)
		go func() {
			defer wg.Done()
			cf(shutdownCtx)
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("server shutdown gracefully")
	case <-shutdownCtx.Done():
		logger.Error("graceful shutdown timed out")
		err = errors.Join(err, shutdownCtx.Err())
	}
	return err
}

func (s *Server) tls() bool {
	return s.CertFile != "" && s.KeyFile != ""
}

// Package httpapi exposes the gateway over HTTP with JSON bodies.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/filegate/internal/logging"
	"github.com/dmitrijs2005/filegate/internal/server/metrics"
	"github.com/dmitrijs2005/filegate/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

// UserAPI is the part of services.UserService the handlers need.
type UserAPI interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.OTPDelivery, error)
	VerifyOTP(ctx context.Context, identity, code string) error
	ResendOTP(ctx context.Context, identity string) (*services.OTPDelivery, error)
	Login(ctx context.Context, identity, password string) (*services.LoginResult, error)
}

// FileAPI is the part of services.FileService the handlers need.
type FileAPI interface {
	Upload(ctx context.Context, identity, filename, contentType string, body io.Reader) (string, error)
	List(ctx context.Context, identity string) ([]string, error)
	Download(ctx context.Context, identity, key string) (string, error)
	Delete(ctx context.Context, identity, key string) error
}

type Server struct {
	address   string
	users     UserAPI
	files     FileAPI
	metrics   *metrics.Metrics
	limiter   *ipLimiter
	logger    logging.Logger
	jwtSecret []byte
}

func NewServer(a string, l logging.Logger, us UserAPI, fs FileAPI, m *metrics.Metrics, secretKey string, ratePerMinute int) *Server {
	return &Server{
		address:   a,
		logger:    l.With("module", "http_server"),
		users:     us,
		files:     fs,
		metrics:   m,
		limiter:   newIPLimiter(ratePerMinute, publicBurst),
		jwtSecret: []byte(secretKey),
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Group(func(pub chi.Router) {
		pub.Use(s.throttle)

		pub.Post("/register", s.register)
		pub.Post("/verify_otp", s.verifyOTP)
		pub.Post("/resend_otp", s.resendOTP)
		pub.Post("/login", s.login)
	})

	r.Group(func(authRouter chi.Router) {
		authRouter.Use(s.authenticate)

		authRouter.Post("/upload", s.upload)
		authRouter.Get("/list", s.list)
		authRouter.Get("/download", s.download)
		authRouter.Delete("/delete", s.delete)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Package server wires the gateway together: configuration, logging,
// Postgres, S3, the OTP channel, Redis, and the HTTP API. It owns
// graceful shutdown and the release of every client it opened.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/dmitrijs2005/filegate/internal/logging"
	"github.com/dmitrijs2005/filegate/internal/server/config"
	"github.com/dmitrijs2005/filegate/internal/server/httpapi"
	"github.com/dmitrijs2005/filegate/internal/server/metrics"
	"github.com/dmitrijs2005/filegate/internal/server/notify"
	"github.com/dmitrijs2005/filegate/internal/server/objects"
	"github.com/dmitrijs2005/filegate/internal/server/otp"
	"github.com/dmitrijs2005/filegate/internal/server/ratelimit"
	"github.com/dmitrijs2005/filegate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filegate/internal/server/services"
)

const (
	breakerMaxFailures = 5
	breakerOpenTimeout = 30 * time.Second
	resendWindow       = time.Hour
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	closers     []io.Closer
	userService *services.UserService
	fileService *services.FileService
	metrics     *metrics.Metrics
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(c.LogBackend, os.Stdout)
	if err != nil {
		return nil, err
	}

	app := &App{config: c, logger: logger, metrics: metrics.New()}
	if err := app.init(ctx); err != nil {
		app.close(ctx)
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db)

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return err
	}

	gateway, err := objects.NewS3Gateway(ctx, c)
	if err != nil {
		return fmt.Errorf("s3 init error: %w", err)
	}

	sender, err := newSender(ctx, c, app.logger)
	if err != nil {
		return fmt.Errorf("otp channel init error: %w", err)
	}

	limiter, err := app.newLimiter(ctx)
	if err != nil {
		return err
	}

	if c.TestMode {
		app.logger.Warn(ctx, "TEST MODE: OTP codes are returned in responses and never dispatched")
	}

	dispatcher := notify.NewDispatcher(c.OTPChannel, sender, c.DispatchTimeout, app.logger)
	engine := otp.NewEngine(db, rm, c)

	app.userService = services.NewUserService(db, rm, engine, dispatcher, limiter, c, app.logger)
	app.fileService = services.NewFileService(gateway, c.PresignedURLExpiry, app.logger)

	return nil
}

// newSender builds the transport of the configured channel behind a
// circuit breaker.
func newSender(ctx context.Context, c *config.Config, l logging.Logger) (notify.Sender, error) {
	var next notify.Sender

	switch c.OTPChannel {
	case config.ChannelSMS:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.SNSRegion))
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		next = notify.NewSMSSender(sns.NewFromConfig(awsCfg))
	case config.ChannelEmail:
		d, err := notify.NewSMTPDialer(c)
		if err != nil {
			return nil, err
		}
		next = notify.NewEmailSender(c.SMTPFrom, d)
	default:
		return nil, fmt.Errorf("unknown otp channel %q", c.OTPChannel)
	}

	return notify.NewBreakerSender("otp-"+c.OTPChannel, next, breakerMaxFailures, breakerOpenTimeout, l), nil
}

// newLimiter returns the Redis resend limiter, or a no-op one when Redis is
// not configured.
func (app *App) newLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	c := app.config
	if c.RedisAddr == "" || c.OTPResendLimitPerHour <= 0 {
		app.logger.Warn(ctx, "OTP resend limiter disabled")
		return ratelimit.Nop{}, nil
	}

	client, err := ratelimit.NewRedisClient(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, client)

	return ratelimit.NewRedisLimiter(client, c.OTPResendLimitPerHour, resendWindow), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.EndpointAddr, app.logger, app.userService, app.fileService,
		app.metrics, app.config.SecretKey, app.config.RateLimitPerMinute)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.close(ctx)
	app.logger.Info(ctx, "App stopped")
}

// close releases clients in reverse order of creation.
func (app *App) close(ctx context.Context) {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Error(ctx, "close", "error", err)
		}
	}
	app.closers = nil

	if s, ok := app.logger.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}

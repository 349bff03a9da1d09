// Package web implements the ops web service.
//
// The identity operations themselves are consumed in-process by the hosting
// application; the web service only exposes the operational surface:
// liveness and readiness probes, prometheus metrics and a token
// introspection endpoint for verifying issued principals.
package web

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/NeverMind-orz/identity-kit/internal/config"
	fiberlogger "github.com/NeverMind-orz/identity-kit/internal/logger/adapter/fiber"
	authmiddleware "github.com/NeverMind-orz/identity-kit/internal/web/middleware/auth"
)

// CheckAliveURI is the liveness probe path; access logging skips it.
const CheckAliveURI = "/healthz"

// Service represents the ops web service.
type Service struct {
	App          *fiber.App
	cfg          *config.Config
	fastShutDown bool
	alive        atomic.Bool
	db           *gorm.DB
}

// Start starts the web service on the given address.
func (s *Service) Start(addr string) error {
	var doneFiber = make(chan bool)

	go func() {
		if err := s.App.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("fiber listen error: %v", err)
		}

		doneFiber <- true
	}()

	<-doneFiber // wait for fiber to stop

	return nil
}

// WaitShutdown waits for a termination signal and stops the http server.
func (s *Service) WaitShutdown() {
	irqSig := make(chan os.Signal, 1)
	signal.Notify(irqSig, syscall.SIGINT, syscall.SIGTERM)

	sig := <-irqSig
	log.Info().Msgf("shutdown request (signal: %v)", sig)

	// Graceful shutdown for reverse proxies: fail the liveness probe first,
	// so the LB removes this pod from its active targets before we stop.
	if !s.fastShutDown {
		log.Info().Msgf(
			"graceful shutdown: return 503 while %d seconds to let LB to remove this pod from active targets",
			s.cfg.Webserver.ShutDownTime,
		)

		s.alive.Store(false)
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	serverShutdown := make(chan struct{})

	go func() {
		log.Info().Msg("stopping http server ...")

		err := s.App.Shutdown()
		if err != nil {
			log.Error().Err(err).Msg("")
		}

		serverShutdown <- struct{}{}
	}()

	<-serverShutdown
	log.Info().Msg("http server was stopped ... good bye...")
}

// New creates the ops web service with the given configuration.
// The verifier backs the token introspection endpoint.
func New(cfg *config.Config, db *gorm.DB, verifier authmiddleware.TokenVerifier) *Service {
	if cfg == nil {
		panic("config cannot be nil")
	}

	if db == nil {
		panic("db cannot be nil")
	}

	app := fiber.New(
		fiber.Config{
			ReadBufferSize: 8192,
			AppName:        "identity-kit",
			CaseSensitive:  true,
			Prefork:        false,
			Immutable:      true,
		},
	)

	app.Use(fiberlogger.New(fiberlogger.Config{
		Config:        cfg.Log,
		CheckAliveURI: CheckAliveURI,
	}))

	service := &Service{
		cfg: cfg,
		App: app,
		db:  db,
	}
	service.alive.Store(true)

	app.Get(CheckAliveURI, service.healthz)
	app.Get("/readyz", service.readyz)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Token introspection: returns the verified principal of the caller.
	app.Get("/whoami", authmiddleware.New(verifier), whoami)

	return service
}

// healthz is the liveness probe. It fails once shutdown has begun.
func (s *Service) healthz(c *fiber.Ctx) error {
	if !s.alive.Load() {
		return c.Status(fiber.StatusServiceUnavailable).SendString("shutting down")
	}

	return c.SendString("OK")
}

// readyz is the readiness probe. It fails when the database is unreachable.
func (s *Service) readyz(c *fiber.Ctx) error {
	if !s.alive.Load() {
		return c.Status(fiber.StatusServiceUnavailable).SendString("shutting down")
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("database unavailable")
	}

	if err := sqlDB.PingContext(c.Context()); err != nil {
		log.Warn().Err(err).Msg("readiness probe failed to ping database")

		return c.Status(fiber.StatusServiceUnavailable).SendString("database unavailable")
	}

	return c.SendString("OK")
}

// whoami returns the verified claims of the presented access token.
func whoami(c *fiber.Ctx) error {
	claims, ok := authmiddleware.Claims(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
	}

	return c.JSON(fiber.Map{
		"userId":    claims.Subject,
		"tenantId":  claims.TenantID,
		"email":     claims.Email,
		"name":      claims.Name,
		"roles":     claims.Roles,
		"sessionId": claims.SessionID,
		"expiresAt": claims.ExpiresAt,
	})
}

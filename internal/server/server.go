// Package server exposes the site's JSON API over echo. Public routes proxy
// content from the backend API, the contact form sends mail, and admin routes
// sit behind the session cookie.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"buildsite/pkg/backend"
	"buildsite/pkg/config"
	"buildsite/pkg/logger"
	"buildsite/pkg/mail"
	"buildsite/pkg/ratelimit"
	"buildsite/pkg/validate"
)

// limiterSweepInterval is how often idle rate limit keys are dropped
const limiterSweepInterval = time.Minute

// Backend is the subset of the backend API client used by the handlers
type Backend interface {
	Login(ctx context.Context, username, password string) (*backend.Session, error)
	ChangePassword(ctx context.Context, token, current, next string) error
	GetContactInfo(ctx context.Context) (*backend.ContactInfo, error)
	UpdateContactInfo(ctx context.Context, token string, info *backend.ContactInfo) (*backend.ContactInfo, error)
	ListOtherPages(ctx context.Context) ([]backend.OtherPage, error)
	GetOtherPage(ctx context.Context, slug string) (*backend.OtherPage, error)
	UpdateOtherPage(ctx context.Context, token, slug string, page *backend.OtherPage) (*backend.OtherPage, error)
	ListProducts(ctx context.Context) ([]backend.Product, error)
	ListPosts(ctx context.Context) ([]backend.Post, error)
	GetPost(ctx context.Context, slug string) (*backend.Post, error)
	GetInfrastructure(ctx context.Context) (*backend.Infrastructure, error)
}

// Server is the HTTP API
type Server struct {
	echo      *echo.Echo
	cfg       *config.Config
	backend   Backend
	mailer    mail.Mailer
	validator *validate.Validator
	logger    logger.Logger

	contactLimiter *ratelimit.KeyedLimiter
	loginLimiter   *ratelimit.KeyedLimiter
}

// New builds the server and registers every route
func New(cfg *config.Config, api Backend, mailer mail.Mailer, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:           e,
		cfg:            cfg,
		backend:        api,
		mailer:         mailer,
		validator:      validate.New(),
		logger:         log.WithField("component", "server"),
		contactLimiter: ratelimit.NewKeyedLimiter(cfg.RateLimit.ContactPerMinute, cfg.RateLimit.ContactBurst),
		loginLimiter:   ratelimit.NewKeyedLimiter(cfg.RateLimit.LoginPerMinute, cfg.RateLimit.LoginBurst),
	}

	e.Validator = s.validator
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(requestID())
	e.Use(requestLogger(s.logger))
	e.Use(sessionGate(cfg.Session.CookieName, cfg.Server.LoginPath))

	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo

	api := e.Group("/api")
	api.GET("/health", s.health)
	api.GET("/home", s.home)
	api.GET("/products", s.products)
	api.GET("/blog", s.posts)
	api.GET("/blog/:slug", s.post)
	api.GET("/infrastructure", s.infrastructure)
	api.GET("/contact-info", s.contactInfo)
	api.GET("/pages", s.pages)
	api.GET("/pages/:slug", s.page)
	api.POST("/contact", s.contact, ratelimit.Middleware(s.contactLimiter, "contact", ratelimit.RealIP, s.logger))

	api.POST("/auth/login", s.login, ratelimit.Middleware(s.loginLimiter, "login", ratelimit.RealIP, s.logger))
	api.POST("/auth/logout", s.logout)

	admin := api.Group("/admin")
	admin.PUT("/contact-info", s.updateContactInfo)
	admin.PUT("/pages/:slug", s.updateOtherPage)
	admin.POST("/password", s.changePassword)

	if s.cfg.Server.StaticDir != "" {
		e.Static("/", s.cfg.Server.StaticDir)
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.echo.Server.ReadTimeout = s.cfg.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.cfg.Server.WriteTimeout

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.LogComponentStart(s.logger, "http", map[string]interface{}{
			"address":     s.cfg.Server.Address,
			"backend_url": s.cfg.Backend.BaseURL,
			"mail_driver": s.cfg.Mail.Driver,
		})
		if err := s.echo.Start(s.cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		s.contactLimiter.Run(gctx, limiterSweepInterval)
		return nil
	})
	g.Go(func() error {
		s.loginLimiter.Run(gctx, limiterSweepInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()

		logger.LogComponentStop(s.logger, "http", "shutdown requested")
		return s.echo.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

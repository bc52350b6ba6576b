// Package server wires the storefront application together: seeded
// stores, access rules, the auth service and the HTTP dispatcher, plus
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pantry/internal/logging"
	"pantry/internal/server/auth"
	"pantry/internal/server/config"
	"pantry/internal/server/query"
	"pantry/internal/server/rest"
	"pantry/internal/server/rules"
	"pantry/internal/server/storage"
)

type App struct {
	config *config.Config
	logger logging.Logger
	api    *rest.API
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout)

	api, err := NewHandler(c, logger)
	if err != nil {
		return nil, err
	}

	return &App{config: c, logger: logger, api: api}, nil
}

// NewHandler assembles the fully wired HTTP entry point. Split out so
// tests can serve the same stack through httptest.
func NewHandler(c *config.Config, logger logging.Logger) (*rest.API, error) {
	public, err := storage.LoadSeedFile(c.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("loading seed data: %w", err)
	}
	protected, err := storage.LoadSeedFile(c.ProtectedSeedFile)
	if err != nil {
		return nil, fmt.Errorf("loading protected seed data: %w", err)
	}

	engine := query.NewEngine(public, protected)

	ruleEngine, err := rules.Load(c.RulesFile, func(collection, id string) (storage.Record, error) {
		return public.Get(collection, id)
	})
	if err != nil {
		return nil, fmt.Errorf("loading access rules: %w", err)
	}

	authService := auth.New(protected, c.IdentityField, []byte(c.SecretKey), logger)
	util := rest.NewUtilFlags()

	tree, err := rest.NewTreeFromDir(c.JSONStoreDir)
	if err != nil {
		return nil, err
	}

	api := rest.NewAPI(logger)
	api.RegisterService("data", rest.NewDataService())
	api.RegisterService("users", rest.NewUserService(authService))
	api.RegisterService("jsonstore", rest.NewJSONStoreService(tree))
	api.RegisterService("util", rest.NewUtilService())

	api.RegisterInitializer(func(rc *rest.RequestContext, r *http.Request) error {
		rc.Storage = public
		rc.Protected = protected
		rc.Query = engine
		return nil
	})
	api.RegisterInitializer(func(rc *rest.RequestContext, r *http.Request) error {
		token := r.Header.Get("X-Authorization")
		if token == "" {
			return nil
		}
		user, err := authService.ResolveUser(r.Context(), token)
		if err != nil {
			return err
		}
		rc.User = user
		return nil
	})
	api.RegisterInitializer(func(rc *rest.RequestContext, r *http.Request) error {
		rc.Util = util
		return nil
	})
	api.RegisterInitializer(func(rc *rest.RequestContext, r *http.Request) error {
		action, known := rules.ActionForMethod(r.Method)
		_, isAdmin := r.Header["X-Admin"]
		rc.CanAccess = func(data, newData storage.Record) error {
			if !known {
				return nil
			}
			return ruleEngine.Check(action, rc.Params["collection"], rc.User, data, newData, isAdmin)
		}
		return nil
	})

	return api, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "addr", app.config.EndpointAddr)

	app.initSignalHandler(cancelFunc)

	srv := &http.Server{Addr: app.config.EndpointAddr, Handler: app.api}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, "server error", "error", err)
			cancelFunc()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "shutdown error", "error", err)
	}
	app.logger.Info(shutdownCtx, "Server stopped")
}

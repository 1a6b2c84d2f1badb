package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/procurement/internal/application/dispatcher"
	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/infrastructure/worker"
	httpapi "github.com/garyjia/procurement/internal/interfaces/http"
	"github.com/garyjia/procurement/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components are initialised in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	db           *database.DB
	txManager    port.TransactionManager
	repositories *RepositoryBundle
	security     *SecurityBundle
	fileStorage  port.FileStorage
	dispatcher   dispatcher.Dispatcher
	services     *ServiceBundle
	workers      *worker.WorkerManager
	server       *httpapi.Server

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// NewContainer creates a new container from configuration.
// It does not initialize components; call Start.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{config: cfg, logger: logger}, nil
}

// Start initializes all components and starts the background workers:
// database, repositories, security, storage, dispatcher, services, HTTP server, workers.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	steps := []struct {
		name string
		fn   func() error
	}{
		{"database", c.initDatabase},
		{"security", c.initSecurity},
		{"storage", c.initStorage},
		{"services", c.initServices},
		{"http server", c.initServer},
		{"workers", c.initWorkers},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			_ = c.teardown()
			c.closed.Store(true)
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Component initialized", zap.String("component", step.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	if c.server != nil {
		if err := c.server.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		}
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// HealthCheck reports "ok" or a failure reason per component.
func (c *Container) HealthCheck(ctx context.Context) map[string]string {
	status := make(map[string]string, 3)

	if c.db == nil {
		status["database"] = "not initialized"
	} else {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := c.db.PingContext(pingCtx); err != nil {
			status["database"] = "ping failed"
		} else {
			status["database"] = "ok"
		}
	}

	switch {
	case c.workers == nil:
		status["workers"] = "not initialized"
	case c.workers.GetWorkerCount() > 0 && !c.workers.IsRunning():
		status["workers"] = "stopped"
	default:
		status["workers"] = "ok"
		for name, st := range c.workers.Stats() {
			if st.LastError != "" {
				status["worker:"+name] = "last pass failed: " + st.LastError
			}
		}
	}

	if c.dispatcher == nil {
		status["dispatcher"] = "not initialized"
	} else {
		status["dispatcher"] = "ok"
	}

	return status
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(c.ctx, &c.config.Database, c.logger.Named("database"))
	if err != nil {
		return err
	}
	c.db = bundle.DB
	c.txManager = bundle.TxManager

	repos, err := ProvideRepositories(c.db, c.logger.Named("repository"))
	if err != nil {
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initSecurity() error {
	security, err := ProvideSecurity(&c.config.Auth, &c.config.Approval, c.repositories.Users, c.logger)
	if err != nil {
		return err
	}
	c.security = security
	return nil
}

func (c *Container) initStorage() error {
	fs, err := ProvideStorage(&c.config.Storage, c.logger.Named("storage"))
	if err != nil {
		return err
	}
	c.fileStorage = fs
	return nil
}

func (c *Container) initServices() error {
	c.dispatcher = ProvideDispatcher(c.logger)

	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.txManager,
		Security:   c.security,
		Storage:    c.fileStorage,
		Dispatcher: c.dispatcher,
		Approval:   &c.config.Approval,
		Logger:     c.logger.Named("service"),
	})
	if err != nil {
		return err
	}
	c.services = services

	if email := c.config.Auth.AdminEmail; email != "" {
		admin, err := services.Users.EnsureAdmin(c.ctx, email, c.config.Auth.AdminPassword)
		if err != nil {
			return fmt.Errorf("ensure administrator: %w", err)
		}
		c.logger.Info("Administrator account ready", zap.String("user_id", admin.ID))
	}
	return nil
}

func (c *Container) initServer() error {
	s := c.config.Server
	c.server = httpapi.NewServer(httpapi.ServerConfig{
		Host:            s.Host,
		Port:            s.Port,
		ReadTimeout:     s.ReadTimeout,
		WriteTimeout:    s.WriteTimeout,
		ShutdownTimeout: s.ShutdownTimeout,
		Mode:            s.Mode,
	}, httpapi.Services{
		Users:     c.services.Users,
		Suppliers: c.services.Suppliers,
		Orders:    c.services.Orders,
		Shipments: c.services.Shipments,
		Reports:   c.services.Reports,
		Tokens:    c.security.Tokens,
		Health:    c,
	}, NewLoggerAdapter(c.logger.Named("http")))
	return nil
}

func (c *Container) initWorkers() error {
	c.workers = ProvideWorkers(&c.config.Worker, c.repositories, c.services, c.logger)
	return c.workers.StartAll(c.ctx)
}

// Server returns the HTTP server.
func (c *Container) Server() *httpapi.Server {
	return c.server
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

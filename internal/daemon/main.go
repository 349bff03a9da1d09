// Package daemon wires the identity subsystem together: database, seed data,
// background dispatcher, transactional outbox publisher and the ops web
// service.
package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/NeverMind-orz/identity-kit/internal/audit"
	"github.com/NeverMind-orz/identity-kit/internal/auth"
	"github.com/NeverMind-orz/identity-kit/internal/blob"
	"github.com/NeverMind-orz/identity-kit/internal/cache"
	"github.com/NeverMind-orz/identity-kit/internal/config"
	"github.com/NeverMind-orz/identity-kit/internal/db/dsn"
	"github.com/NeverMind-orz/identity-kit/internal/db/models"
	"github.com/NeverMind-orz/identity-kit/internal/identity"
	"github.com/NeverMind-orz/identity-kit/internal/jobs"
	"github.com/NeverMind-orz/identity-kit/internal/mail"
	"github.com/NeverMind-orz/identity-kit/internal/outbox"
	"github.com/NeverMind-orz/identity-kit/internal/session"
	"github.com/NeverMind-orz/identity-kit/internal/tokens"
	"github.com/NeverMind-orz/identity-kit/internal/web"
)

// jobsStopTimeout bounds the drain of the background queues on shutdown.
const jobsStopTimeout = 10 * time.Second

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	webService *web.Service
	identity   *identity.Service
	sessions   *session.Service
	dispatcher *jobs.Dispatcher
	publisher  *outbox.Publisher
}

// Identity returns the identity service for in-process hosts.
func (d *Daemon) Identity() *identity.Service {
	return d.identity
}

// Sessions returns the session service for in-process hosts.
func (d *Daemon) Sessions() *session.Service {
	return d.sessions
}

// Start runs the Daemon until a termination signal arrives. The outbox
// publisher drains on its own goroutine; the web service blocks here.
func (d *Daemon) Start() error {
	pubCtx, stopPublisher := context.WithCancel(context.Background())
	defer stopPublisher()

	if d.publisher != nil {
		go d.publisher.Run(pubCtx)
	}

	go d.webService.WaitShutdown()

	err := d.webService.Start(fmt.Sprintf(":%d", d.cfg.Webserver.Port))

	// Web service is down; stop the publisher and drain the job queues.
	stopPublisher()

	stopCtx, cancel := context.WithTimeout(context.Background(), jobsStopTimeout)
	defer cancel()

	if errStop := d.dispatcher.Stop(stopCtx); errStop != nil {
		log.Warn().Err(errStop).Msg("job queues did not drain in time")
	}

	return err
}

// New creates a new Daemon instance with the provided configuration.
func New(cfg *config.Config) *Daemon {
	if cfg == nil {
		log.Fatal().Msg("config is nil")
		return nil
	}

	db := openDatabase(cfg)

	if err := db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.UserRole{},
		&models.Group{},
		&models.UserGroup{},
		&models.GroupRole{},
		&models.UserSession{},
		&models.PasswordHistory{},
		&models.OutboxMessage{},
	); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	seed(cfg, db)

	dispatcher := jobs.New(jobs.DefaultQueueSize, jobs.DefaultWorkers)

	sessions, err := session.New(db, cfg.Session, auth.NewLocalVerifier(db))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session service")
	}

	outboxStore := outbox.NewStore(db)

	var publisher *outbox.Publisher

	if cfg.Broker.Enabled {
		sink, errSink := outbox.NewRabbitSink(cfg.Broker)
		if errSink != nil {
			log.Fatal().Err(errSink).Msg("failed to connect to message broker")
		}

		publisher = outbox.NewPublisher(outboxStore, sink, cfg.Broker)
	}

	identityService := identity.New(db, cfg.Identity, identity.Collaborators{
		Mail:     mail.New(cfg.Mail),
		Jobs:     dispatcher,
		Blobs:    blobStore(cfg),
		Cache:    cacheStore(cfg),
		Audit:    auditClient(cfg, dispatcher),
		Sessions: sessions,
		Outbox:   outboxStore,
		Codes:    tokens.New(),
	})

	return &Daemon{
		cfg:        cfg,
		webService: web.New(cfg, db, sessions),
		identity:   identityService,
		sessions:   sessions,
		dispatcher: dispatcher,
		publisher:  publisher,
	}
}

// openDatabase opens the configured gorm engine.
// sqlite is meant for dev mode and tests; mysql and postgres for production.
func openDatabase(cfg *config.Config) *gorm.DB {
	var dialector gorm.Dialector

	switch cfg.DB.GormEngine {
	case "postgres":
		dialector = gormpostgres.Open(dsn.CreatePostgres(cfg))
	case "sqlite":
		dialector = sqlite.Open(cfg.DB.Name)
	default:
		dialector = gormmysql.Open(dsn.Create(cfg))
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Str("engine", cfg.DB.GormEngine).Msg("failed to connect database")
	}

	return db
}

// cacheStore selects the cache engine from the configuration.
func cacheStore(cfg *config.Config) cache.Store {
	if cfg.Cache.Engine == cache.EngineRedis {
		store, err := cache.NewRedis(context.Background(), cfg.Cache)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis cache")
		}

		return store
	}

	return cache.NewMemory()
}

// blobStore returns the profile image store, or nil when no path is
// configured. A nil store disables image uploads.
func blobStore(cfg *config.Config) identity.BlobStore {
	if cfg.Blob.Path == "" {
		return nil
	}

	store, err := blob.NewStore(cfg.Blob)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create blob store")
	}

	return store
}

// auditClient builds the audit trail client. The log sink is always on;
// the datadog sink joins when configured.
func auditClient(cfg *config.Config, dispatcher *jobs.Dispatcher) *audit.Client {
	sinks := []audit.Sink{&audit.LogSink{}}

	if cfg.Log.DataDog.Enabled {
		sinks = append(sinks, audit.NewDataDogSink(cfg.Log.DataDog))
	}

	return audit.NewClient(dispatcher, sinks...)
}

package config

import (
	"github.com/NeverMind-orz/identity-kit/internal/auth"
	"github.com/NeverMind-orz/identity-kit/internal/blob"
	"github.com/NeverMind-orz/identity-kit/internal/cache"
	"github.com/NeverMind-orz/identity-kit/internal/identity"
	"github.com/NeverMind-orz/identity-kit/internal/logger"
	"github.com/NeverMind-orz/identity-kit/internal/mail"
	"github.com/NeverMind-orz/identity-kit/internal/outbox"
	"github.com/NeverMind-orz/identity-kit/internal/session"
)

// Config overall data structure.
// Each subsystem owns its settings struct; this aggregates them the way the
// etc/main.toml file lays them out.
type Config struct {
	DevMode   bool // enable dev mode for development
	DB        DB
	Log       logger.Log
	Title     string
	Webserver Webserver
	Identity  identity.Config
	Session   session.Config
	Mail      mail.Config
	Broker    outbox.BrokerConfig
	Cache     cache.Config
	Blob      blob.Config
	OIDC      auth.OIDCConfig
	LDAP      auth.LDAPConfig
}

// Webserver implement webserver settings.
type Webserver struct {
	Domain       string // domain name for the webserver
	Port         int    // listening port for the webserver
	ShutDownTime int    // wait time for shutdown
	URL          string // base url for the webserver
}

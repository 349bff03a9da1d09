package config

// DB holds the database configuration settings.
// GormEngine selects the driver: "mysql" (default), "postgres", or "sqlite"
// for dev mode, where Name is the database file path.
type DB struct {
	Extras     string // extra DSN parameters, e.g. "parseTime=true"
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	GormEngine string
}

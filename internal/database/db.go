package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Params identifies the MySQL database.
type Params struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

// DSN builds the driver DSN.  parseTime=true maps DATE/DATETIME to
// time.Time and loc=UTC keeps instants consistent.
func (p Params) DSN() string {
	return p.config().FormatDSN()
}

// MigrationURL is the DSN in the form golang-migrate's mysql driver
// expects; multiStatements lets one file hold several statements.
func (p Params) MigrationURL() string {
	cfg := p.config()
	cfg.MultiStatements = true
	return "mysql://" + cfg.FormatDSN()
}

func (p Params) config() *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Pass
	cfg.Net = "tcp"
	cfg.Addr = p.Host + ":" + p.Port
	cfg.DBName = p.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg
}

// Open connects to MySQL and verifies the connection.
func Open(p Params) (*sql.DB, error) {
	db, err := sql.Open("mysql", p.DSN())
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

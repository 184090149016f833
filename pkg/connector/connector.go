// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package connector opens connections to the clinical-data warehouse.
//
// A ConnectionDetails value is a descriptor, not an open connection; phases
// that manage their own connection lifecycle receive the descriptor and call
// Open themselves.
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Warehouse platform drivers.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/pingcap/errors"
	plog "github.com/pingcap/log"
	"go.uber.org/zap"
)

// Supported warehouse platforms.
const (
	PlatformMySQL      = "mysql"
	PlatformPostgreSQL = "postgresql"
)

const (
	maxOpenConns = 16
	maxIdleConns = 4
	connLifetime = 5 * time.Minute
	pingTimeout  = 10 * time.Second
)

// ConnectionDetails identifies a target warehouse.
type ConnectionDetails struct {
	Platform string `toml:"platform"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

// Validate checks the descriptor is complete enough to attempt a connection.
func (d *ConnectionDetails) Validate() error {
	switch strings.ToLower(strings.TrimSpace(d.Platform)) {
	case PlatformMySQL, PlatformPostgreSQL:
	case "":
		return errors.New("connection platform is required")
	default:
		return errors.Errorf("unsupported warehouse platform: %s", d.Platform)
	}
	if strings.TrimSpace(d.Host) == "" {
		return errors.New("connection host is required")
	}
	if strings.TrimSpace(d.Database) == "" {
		return errors.New("connection database is required")
	}
	return nil
}

// DSN builds the driver data source name for the descriptor.
func (d *ConnectionDetails) DSN() (driver, dsn string, err error) {
	switch strings.ToLower(strings.TrimSpace(d.Platform)) {
	case PlatformMySQL:
		return "mysql", fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&multiStatements=true",
			d.User, d.Password, d.Host, d.portOr(3306), d.Database), nil
	case PlatformPostgreSQL:
		return "postgres", fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			d.Host, d.portOr(5432), d.User, d.Password, d.Database), nil
	default:
		return "", "", errors.Errorf("unsupported warehouse platform: %s", d.Platform)
	}
}

func (d *ConnectionDetails) portOr(def int) int {
	if d.Port > 0 {
		return d.Port
	}
	return def
}

// Redacted returns a loggable form of the descriptor without the password.
func (d *ConnectionDetails) Redacted() string {
	return fmt.Sprintf("%s://%s@%s:%d/%s",
		strings.ToLower(d.Platform), d.User, d.Host, d.Port, d.Database)
}

// Handle is an open warehouse connection. The owner must call Close exactly
// once; the cohort construction phase does this before it returns.
type Handle struct {
	DB       *sql.DB
	Platform string
}

// Close releases the underlying pool.
func (h *Handle) Close() error {
	if h == nil || h.DB == nil {
		return nil
	}
	if err := h.DB.Close(); err != nil {
		plog.Error("close warehouse connection failed", zap.Error(err))
		return errors.Trace(err)
	}
	return nil
}

// Provider opens and closes warehouse connections. The handle returned by
// Open must be released through Close exactly once.
type Provider interface {
	Open(ctx context.Context, details ConnectionDetails) (*Handle, error)
	Close(handle *Handle) error
}

// SQLProvider is the database/sql backed Provider used outside of tests.
type SQLProvider struct{}

// Open dials the warehouse and verifies the connection with a bounded ping.
func (SQLProvider) Open(ctx context.Context, details ConnectionDetails) (*Handle, error) {
	driver, dsn, err := details.DSN()
	if err != nil {
		return nil, err
	}

	plog.Info("open warehouse connection",
		zap.String("platform", details.Platform),
		zap.String("target", details.Redacted()))

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Annotate(err, "open warehouse connection failed")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Annotate(err, "ping warehouse failed")
	}

	return &Handle{DB: db, Platform: strings.ToLower(details.Platform)}, nil
}

// Close releases the handle.
func (SQLProvider) Close(handle *Handle) error {
	return handle.Close()
}

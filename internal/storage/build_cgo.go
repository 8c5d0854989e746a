//go:build sqlite_cgo

package storage

// Compiled with the sqlite_cgo tag: the cgo SQLite driver.
//
//	CGO_ENABLED=1 go build -tags sqlite_cgo ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

// connParams are applied by the driver to every new connection
const connParams = "_foreign_keys=1&_busy_timeout=5000"

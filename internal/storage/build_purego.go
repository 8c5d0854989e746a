//go:build !sqlite_cgo

package storage

// Default build: the pure Go SQLite driver, no C compiler required.
//
//	CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)

// connParams are applied by the driver to every new connection
const connParams = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

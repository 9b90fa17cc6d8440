// Package store selects the MessageStore implementation from config.
package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/store/memory"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/store/postgres"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/store/sqlite"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/core"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the store for driver. dsn is a file path for sqlite and a
// connection URL for postgres.
func Open(ctx context.Context, driver, dsn string) (core.MessageStore, error) {
	log.Info().Str("module", "store").Str("driver", driver).Msg("opening message store")
	switch driver {
	case DriverMemory, "":
		return memory.New(), nil
	case DriverSQLite:
		return sqlite.Open(ctx, dsn)
	case DriverPostgres:
		return postgres.Open(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/machado-saude/sector-priority/internal/store"
)

// defaultSQLitePath is used when store.database_url is empty for the sqlite driver.
const defaultSQLitePath = "sector-priority.db"

// initStore opens and migrates the configured run store. The "none" driver
// returns a nil store: runs are computed but not recorded.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "none":
		return nil, nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// requireStore is initStore for commands that only read run history.
func requireStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("run history needs a store: set store.driver to sqlite or postgres")
	}
	return st, nil
}

package jwks

import (
	"fmt"
	"io"

	"github.com/sing3demons/jwks-server/internal/config"
	"github.com/sing3demons/jwks-server/internal/database"
)

// OpenKeyRepository opens the configured backend. The returned closer releases
// the underlying database handle.
func OpenKeyRepository(cfg config.StoreConfig, opts ...RepositoryOption) (IKeyRepository, io.Closer, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		db, err := database.NewDatabase(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		repo, err := NewMongoKeyRepository(db, opts...)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, db, nil

	case config.DriverSQLite, "":
		path := cfg.Path
		if path == "" {
			path = config.DefaultDBPath
		}
		db, err := database.NewSQLiteDatabase(path)
		if err != nil {
			return nil, nil, err
		}
		repo, err := NewKeyRepository(db, opts...)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, db, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

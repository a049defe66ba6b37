package jwks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sing3demons/jwks-server/internal/database"
	"github.com/sing3demons/jwks-server/pkg/logAction"
	"github.com/sing3demons/jwks-server/pkg/logger"
	"github.com/sing3demons/jwks-server/pkg/mlog"
	"github.com/sing3demons/jwks-server/pkg/query"
	"gorm.io/gorm"
)

// IKeyRepository is the durable store of signing keys. FetchOne returns (nil, nil)
// when no key in the requested validity class exists.
type IKeyRepository interface {
	Insert(ctx context.Context, key []byte, exp int64) (int64, error)
	FetchOne(ctx context.Context, wantExpired bool) (*KeyRecord, error)
	FetchAllValid(ctx context.Context) ([]KeyRecord, error)
	FetchAll(ctx context.Context) ([]KeyRecord, error)
	CountByValidity(ctx context.Context) (ValidityCounts, error)
}

type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	now func() time.Time
}

// WithClock replaces time.Now as the source of "now" for validity comparisons.
func WithClock(now func() time.Time) RepositoryOption {
	return func(o *repositoryOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func buildRepositoryOptions(opts []RepositoryOption) repositoryOptions {
	o := repositoryOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

const (
	sqlCreateKeysTable = `CREATE TABLE IF NOT EXISTS keys(
    kid INTEGER PRIMARY KEY AUTOINCREMENT,
    key BLOB NOT NULL,
    exp INTEGER NOT NULL
)`
	sqlCreateExpIndex = `CREATE INDEX IF NOT EXISTS idx_keys_exp ON keys(exp)`

	sqlInsertKey     = `INSERT INTO keys (key, exp) VALUES (?, ?)`
	sqlSelectValid   = `SELECT kid, key, exp FROM keys WHERE exp > ? ORDER BY exp ASC, kid ASC LIMIT 1`
	sqlSelectExpired = `SELECT kid, key, exp FROM keys WHERE exp <= ? ORDER BY exp DESC, kid DESC LIMIT 1`
	sqlSelectAll     = `SELECT kid, key, exp FROM keys WHERE exp > ? ORDER BY kid ASC`
	sqlSelectEvery   = `SELECT kid, key, exp FROM keys ORDER BY kid ASC`
	sqlCountValidity = `SELECT
    COALESCE(SUM(CASE WHEN exp > ? THEN 1 ELSE 0 END), 0) AS valid,
    COALESCE(SUM(CASE WHEN exp <= ? THEN 1 ELSE 0 END), 0) AS expired
FROM keys`
)

type KeyRepository struct {
	db  *gorm.DB
	now func() time.Time

	// SQLite allows one writer; inserts are serialized in-process as well.
	writeMu sync.Mutex
}

// NewKeyRepository creates the keys table when it is absent. Existing rows are kept.
func NewKeyRepository(db *database.SQLite, opts ...RepositoryOption) (*KeyRepository, error) {
	o := buildRepositoryOptions(opts)
	repo := &KeyRepository{db: db.DB(), now: o.now}

	if err := repo.db.Exec(sqlCreateKeysTable).Error; err != nil {
		return nil, fmt.Errorf("failed to create keys table: %w", err)
	}
	if err := repo.db.Exec(sqlCreateExpIndex).Error; err != nil {
		return nil, fmt.Errorf("failed to create keys index: %w", err)
	}
	return repo, nil
}

func (r *KeyRepository) Insert(ctx context.Context, key []byte, exp int64) (int64, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	log := mlog.L(ctx)
	start := time.Now()
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: "sqlite",
	}).Debug(logAction.DB_REQUEST(logAction.DB_CREATE, query.GenerateSQLQuery(sqlInsertKey, key, exp)), map[string]any{
		"exp": exp,
	})

	record := KeyRecord{Key: key, Exp: exp}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&record).Error
	})
	err = database.HandleGormError(err)

	r.logResponse(log, logAction.DB_CREATE, start, err, map[string]any{"kid": record.Kid, "exp": exp})
	if err != nil {
		return 0, err
	}
	return record.Kid, nil
}

func (r *KeyRepository) FetchOne(ctx context.Context, wantExpired bool) (*KeyRecord, error) {
	stmt := sqlSelectValid
	if wantExpired {
		stmt = sqlSelectExpired
	}
	now := r.now().Unix()

	log := mlog.L(ctx)
	start := time.Now()
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: "sqlite",
	}).Debug(logAction.DB_REQUEST(logAction.DB_READ, query.GenerateSQLQuery(stmt, now)), map[string]any{
		"expired": wantExpired,
	})

	var records []KeyRecord
	err := database.HandleGormError(r.db.WithContext(ctx).Raw(stmt, now).Scan(&records).Error)

	var result map[string]any
	if err == nil {
		result = map[string]any{"count": len(records)}
		if len(records) > 0 {
			result["kid"] = records[0].Kid
			result["exp"] = records[0].Exp
		}
	}
	r.logResponse(log, logAction.DB_READ, start, err, result)

	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (r *KeyRepository) FetchAllValid(ctx context.Context) ([]KeyRecord, error) {
	now := r.now().Unix()

	log := mlog.L(ctx)
	start := time.Now()
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: "sqlite",
	}).Debug(logAction.DB_REQUEST(logAction.DB_READ, query.GenerateSQLQuery(sqlSelectAll, now)), nil)

	records := []KeyRecord{}
	err := database.HandleGormError(r.db.WithContext(ctx).Raw(sqlSelectAll, now).Scan(&records).Error)

	kids := make([]int64, 0, len(records))
	for _, rec := range records {
		kids = append(kids, rec.Kid)
	}
	r.logResponse(log, logAction.DB_READ, start, err, map[string]any{"kids": kids})

	if err != nil {
		return nil, err
	}
	return records, nil
}

// FetchAll returns every record, expired ones included, ordered by kid.
func (r *KeyRepository) FetchAll(ctx context.Context) ([]KeyRecord, error) {
	log := mlog.L(ctx)
	start := time.Now()
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: "sqlite",
	}).Debug(logAction.DB_REQUEST(logAction.DB_READ, sqlSelectEvery), nil)

	records := []KeyRecord{}
	err := database.HandleGormError(r.db.WithContext(ctx).Raw(sqlSelectEvery).Scan(&records).Error)

	r.logResponse(log, logAction.DB_READ, start, err, map[string]any{"count": len(records)})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *KeyRepository) CountByValidity(ctx context.Context) (ValidityCounts, error) {
	now := r.now().Unix()

	log := mlog.L(ctx)
	start := time.Now()
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: "sqlite",
	}).Debug(logAction.DB_REQUEST(logAction.DB_READ, query.GenerateSQLQuery(sqlCountValidity, now, now)), nil)

	var counts ValidityCounts
	err := database.HandleGormError(r.db.WithContext(ctx).Raw(sqlCountValidity, now, now).Scan(&counts).Error)

	r.logResponse(log, logAction.DB_READ, start, err, map[string]any{"valid": counts.Valid, "expired": counts.Expired})
	return counts, err
}

func (r *KeyRepository) logResponse(log *logger.Logger, op string, start time.Time, err error, data map[string]any) {
	result := map[string]any{"data": data}
	if err != nil {
		result = map[string]any{"error": err.Error()}
	}
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   "sqlite",
		ResponseTime: time.Since(start).Milliseconds(),
	}).Debug(logAction.DB_RESPONSE(op, "sqlite response"), result)
}

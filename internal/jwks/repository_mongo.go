package jwks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sing3demons/jwks-server/internal/database"
	"github.com/sing3demons/jwks-server/pkg/logAction"
	"github.com/sing3demons/jwks-server/pkg/logger"
	"github.com/sing3demons/jwks-server/pkg/mlog"
	"github.com/sing3demons/jwks-server/pkg/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	KeyCollection     = "keys"
	CounterCollection = "counters"
	keySequenceID     = "keys"
)

// MongoKeyRepository stores keys as documents; kid comes from an atomic counter
// document so ids stay monotonic across processes.
type MongoKeyRepository struct {
	keys     *mongo.Collection
	counters *mongo.Collection
	now      func() time.Time
	writeMu  sync.Mutex
}

func NewMongoKeyRepository(db *database.Database, opts ...RepositoryOption) (*MongoKeyRepository, error) {
	o := buildRepositoryOptions(opts)
	repo := &MongoKeyRepository{
		keys:     db.GetCollection(KeyCollection),
		counters: db.GetCollection(CounterCollection),
		now:      o.now,
	}

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "kid", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_kid"),
		},
		{
			Keys:    bson.D{{Key: "exp", Value: 1}},
			Options: options.Index().SetName("idx_exp"),
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if _, err := repo.keys.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create key indexes: %w", err)
	}
	return repo, nil
}

func (r *MongoKeyRepository) nextKid(ctx context.Context, log *logger.Logger) (int64, error) {
	filter := bson.M{"_id": keySequenceID}
	update := bson.M{"$inc": bson.M{"seq": int64(1)}}

	start := time.Now()
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: r.counters.Name(),
	}).Debug(logAction.DB_REQUEST(logAction.DB_UPDATE, query.GenerateFindOneAndUpdateQuery(r.counters.Name(), filter, update)), filter)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter)
	err = database.HandleMongoError(err)

	r.logResponse(log, r.counters.Name(), logAction.DB_UPDATE, start, err, map[string]any{"seq": counter.Seq})
	return counter.Seq, err
}

func (r *MongoKeyRepository) Insert(ctx context.Context, key []byte, exp int64) (int64, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	log := mlog.L(ctx)
	kid, err := r.nextKid(ctx, log)
	if err != nil {
		return 0, err
	}

	record := KeyRecord{Kid: kid, Key: key, Exp: exp}
	start := time.Now()
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: r.keys.Name(),
	}).Debug(logAction.DB_REQUEST(logAction.DB_CREATE, query.GenerateInsertQuery(r.keys.Name(), bson.M{"kid": kid, "exp": exp})), map[string]any{
		"kid": kid,
		"exp": exp,
	})

	_, err = r.keys.InsertOne(ctx, record)
	err = database.HandleMongoError(err)

	r.logResponse(log, r.keys.Name(), logAction.DB_CREATE, start, err, map[string]any{"kid": kid})
	if err != nil {
		return 0, err
	}
	return kid, nil
}

func (r *MongoKeyRepository) FetchOne(ctx context.Context, wantExpired bool) (*KeyRecord, error) {
	now := r.now().Unix()
	filter := bson.M{"exp": bson.M{"$gt": now}}
	sort := bson.D{{Key: "exp", Value: 1}, {Key: "kid", Value: 1}}
	if wantExpired {
		filter = bson.M{"exp": bson.M{"$lte": now}}
		sort = bson.D{{Key: "exp", Value: -1}, {Key: "kid", Value: -1}}
	}

	log := mlog.L(ctx)
	start := time.Now()
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: r.keys.Name(),
	}).Debug(logAction.DB_REQUEST(logAction.DB_READ, query.GenerateSortedFindQuery(r.keys.Name(), filter, sort.Map(), 1)), filter)

	var record KeyRecord
	err := r.keys.FindOne(ctx, filter, options.FindOne().SetSort(sort)).Decode(&record)
	err = database.HandleMongoError(err)

	if errors.Is(err, database.ErrNotFound) {
		r.logResponse(log, r.keys.Name(), logAction.DB_READ, start, nil, map[string]any{"count": 0})
		return nil, nil
	}
	r.logResponse(log, r.keys.Name(), logAction.DB_READ, start, err, map[string]any{"kid": record.Kid, "exp": record.Exp})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *MongoKeyRepository) FetchAllValid(ctx context.Context) ([]KeyRecord, error) {
	return r.find(ctx, bson.M{"exp": bson.M{"$gt": r.now().Unix()}})
}

// FetchAll returns every record, expired ones included, ordered by kid.
func (r *MongoKeyRepository) FetchAll(ctx context.Context) ([]KeyRecord, error) {
	return r.find(ctx, bson.M{})
}

func (r *MongoKeyRepository) find(ctx context.Context, filter bson.M) ([]KeyRecord, error) {
	sort := bson.D{{Key: "kid", Value: 1}}

	log := mlog.L(ctx)
	start := time.Now()
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: r.keys.Name(),
	}).Debug(logAction.DB_REQUEST(logAction.DB_READ, query.GenerateSortedFindQuery(r.keys.Name(), filter, sort.Map(), 0)), filter)

	cursor, err := r.keys.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		err = database.HandleMongoError(err)
		r.logResponse(log, r.keys.Name(), logAction.DB_READ, start, err, nil)
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []KeyRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		err = database.HandleMongoError(err)
		r.logResponse(log, r.keys.Name(), logAction.DB_READ, start, err, nil)
		return nil, err
	}

	kids := make([]int64, 0, len(records))
	for _, rec := range records {
		kids = append(kids, rec.Kid)
	}
	r.logResponse(log, r.keys.Name(), logAction.DB_READ, start, nil, map[string]any{"kids": kids})
	return records, nil
}

// CountByValidity runs two counts against the same sampled now.
func (r *MongoKeyRepository) CountByValidity(ctx context.Context) (ValidityCounts, error) {
	now := r.now().Unix()
	validFilter := bson.M{"exp": bson.M{"$gt": now}}
	expiredFilter := bson.M{"exp": bson.M{"$lte": now}}

	log := mlog.L(ctx)
	start := time.Now()
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: r.keys.Name(),
	}).Debug(logAction.DB_REQUEST(logAction.DB_READ, query.GenerateCountQuery(r.keys.Name(), validFilter)), nil)

	var counts ValidityCounts
	valid, err := r.keys.CountDocuments(ctx, validFilter)
	if err == nil {
		counts.Valid = valid
		var expired int64
		expired, err = r.keys.CountDocuments(ctx, expiredFilter)
		counts.Expired = expired
	}
	err = database.HandleMongoError(err)

	r.logResponse(log, r.keys.Name(), logAction.DB_READ, start, err, map[string]any{"valid": counts.Valid, "expired": counts.Expired})
	return counts, err
}

func (r *MongoKeyRepository) logResponse(log *logger.Logger, dependency, op string, start time.Time, err error, data map[string]any) {
	result := map[string]any{"data": data}
	if err != nil {
		result = map[string]any{"error": err.Error()}
	}
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   dependency,
		ResponseTime: time.Since(start).Milliseconds(),
	}).Debug(logAction.DB_RESPONSE(op, "mongo response"), result)
}

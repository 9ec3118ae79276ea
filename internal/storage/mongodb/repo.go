// Package mongodb implements storage.Store on MongoDB. Every table is a
// collection named after the flattened table reference; nested and repeated
// fields are stored as native subdocuments and arrays. Table schemas live in
// the tableload_schemas collection of the same database.
//
// Commit runs inside a multi-document transaction and therefore needs a
// replica set or sharded cluster.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"tableload/internal/ddl"
	"tableload/internal/record"
	"tableload/internal/schema"
	"tableload/internal/storage"
	"tableload/internal/storage/sqlstore"
)

// DefaultDatabase is used when Config.Database is empty.
const DefaultDatabase = "tableload"

// Config holds MongoDB repository configuration.
type Config struct {
	URI       string
	Database  string
	BatchSize int
}

// Repository is a MongoDB-backed storage.Store.
type Repository struct {
	client *mongo.Client
	db     *mongo.Database
	cfg    Config
}

var _ storage.Store = (*Repository)(nil)

// NewRepository connects to MongoDB and returns a Repository plus a Close
// function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if cfg.URI == "" {
		return nil, nil, errors.New("mongodb: uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = storage.DefaultBatchSize
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongodb: ping: %w", err)
	}
	r := &Repository{client: client, db: client.Database(cfg.Database), cfg: cfg}
	return r, func() { _ = client.Disconnect(context.Background()) }, nil
}

func (r *Repository) meta() *mongo.Collection { return r.db.Collection(ddl.MetaTable) }

func (r *Repository) collection(t storage.Table) *mongo.Collection {
	return r.db.Collection(sqlstore.FlatName(t))
}

func (r *Repository) lookupSchema(ctx context.Context, t storage.Table) (schema.Schema, bool, error) {
	var doc schemaDoc
	err := r.meta().FindOne(ctx, bson.D{{Key: "_id", Value: t.String()}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return schema.Schema{}, false, nil
	}
	if err != nil {
		return schema.Schema{}, false, fmt.Errorf("mongodb: read schema of %s: %w", t, err)
	}
	sch, err := schema.ParseJSON([]byte(doc.Schema))
	if err != nil {
		return schema.Schema{}, false, fmt.Errorf("mongodb: stored schema of %s: %w", t, err)
	}
	return sch, true, nil
}

// Describe reports the stored schema and document count of t.
func (r *Repository) Describe(ctx context.Context, t storage.Table) (storage.TableInfo, error) {
	sch, ok, err := r.lookupSchema(ctx, t)
	if err != nil || !ok {
		return storage.TableInfo{}, err
	}
	n, err := r.collection(t).CountDocuments(ctx, bson.D{})
	if err != nil {
		return storage.TableInfo{}, fmt.Errorf("mongodb: count %s: %w", t, err)
	}
	return storage.TableInfo{Exists: true, Schema: sch, Rows: n}, nil
}

// Create records the schema of t and creates its collection. The unique
// _id of the schema document makes a second Create fail.
func (r *Repository) Create(ctx context.Context, t storage.Table, sch schema.Schema) error {
	if sch.IsZero() {
		return fmt.Errorf("mongodb: create %s: schema has no fields", t)
	}
	raw, err := sch.MarshalJSON()
	if err != nil {
		return fmt.Errorf("mongodb: encode schema: %w", err)
	}
	doc := schemaDoc{ID: t.String(), Schema: string(raw), Fingerprint: strconv.FormatUint(sch.Fingerprint(), 16)}
	if _, err := r.meta().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("mongodb: create %s: table already exists", t)
		}
		return fmt.Errorf("mongodb: record schema of %s: %w", t, err)
	}
	if err := r.db.CreateCollection(ctx, sqlstore.FlatName(t)); err != nil {
		var ce mongo.CommandError
		// NamespaceExists: a leftover collection from a dropped schema record.
		if !errors.As(err, &ce) || ce.Code != 48 {
			_, _ = r.meta().DeleteOne(ctx, bson.D{{Key: "_id", Value: t.String()}})
			return fmt.Errorf("mongodb: create %s: %w", t, err)
		}
	}
	log.Printf("mongodb: created table=%s collection=%s fields=%d", t, sqlstore.FlatName(t), sch.Len())
	return nil
}

// Commit writes recs inside one transaction.
func (r *Repository) Commit(ctx context.Context, t storage.Table, sch schema.Schema, recs []record.Record, mode storage.Mode) (int64, error) {
	if err := storage.CheckRequired(sch, recs); err != nil {
		return 0, fmt.Errorf("mongodb: %s: %w", t, err)
	}
	fields := sch.Fields()
	docs := make([]any, len(recs))
	for i, rec := range recs {
		docs[i] = toDocument(fields, rec)
	}

	sess, err := r.client.StartSession()
	if err != nil {
		return 0, fmt.Errorf("mongodb: start session: %w", err)
	}
	defer sess.EndSession(context.Background())

	coll := r.collection(t)
	res, err := sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		if _, ok, err := r.lookupSchema(ctx, t); err != nil {
			return int64(0), err
		} else if !ok {
			return int64(0), fmt.Errorf("mongodb: %s: %w", t, storage.ErrNotFound)
		}
		switch mode {
		case storage.RequireEmpty:
			n, err := coll.CountDocuments(ctx, bson.D{})
			if err != nil {
				return int64(0), fmt.Errorf("mongodb: count %s: %w", t, err)
			}
			if n > 0 {
				return int64(0), fmt.Errorf("mongodb: %s has %d rows: %w", t, n, storage.ErrNotEmpty)
			}
		case storage.Truncate:
			if _, err := coll.DeleteMany(ctx, bson.D{}); err != nil {
				return int64(0), fmt.Errorf("mongodb: truncate %s: %w", t, err)
			}
		}
		return insertBatches(ctx, t.String(), coll, docs, r.cfg.BatchSize)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func insertBatches(ctx context.Context, job string, coll *mongo.Collection, docs []any, batchSize int) (int64, error) {
	rows := make([][]any, len(docs))
	for i, d := range docs {
		rows[i] = []any{d}
	}
	return storage.LoadBatches(ctx, job, []string{"document"}, rows, batchSize,
		func(ctx context.Context, _ []string, batch [][]any) (int64, error) {
			page := make([]any, len(batch))
			for i, row := range batch {
				page[i] = row[0]
			}
			res, err := coll.InsertMany(ctx, page)
			if err != nil {
				return 0, fmt.Errorf("mongodb: insert: %w", err)
			}
			return int64(len(res.InsertedIDs)), nil
		})
}

// Close disconnects the client.
func (r *Repository) Close() error {
	return r.client.Disconnect(context.Background())
}

// Package objstore implements storage.Store on S3-compatible object storage
// through minio-go. Each table is a prefix holding newline-delimited JSON
// batch objects plus a _manifest.json that lists the visible objects and the
// table schema:
//
//	<prefix>/<project>/<dataset>/<table>/_manifest.json
//	<prefix>/<project>/<dataset>/<table>/data/<uuid>.ndjson
//
// A commit uploads its batches first and then replaces the manifest, so
// readers see either the old object list or the new one. Commits to one table
// are serialized within a process only; concurrent writers in separate
// processes are not coordinated.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"tableload/internal/record"
	"tableload/internal/schema"
	"tableload/internal/storage"
)

// Config holds object storage configuration.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	UseSSL    bool
	BatchSize int
}

// ParseDSN reads a Config from s3://access:secret@host:port/bucket/prefix.
// The query accepts ssl=true and region=<name>.
func ParseDSN(dsn string) (Config, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return Config{}, fmt.Errorf("objstore dsn: %w", err)
	}
	if u.Scheme != "s3" {
		return Config{}, fmt.Errorf("objstore dsn: scheme %q, want s3", u.Scheme)
	}
	cfg := Config{Endpoint: u.Host, Region: u.Query().Get("region")}
	if u.User != nil {
		cfg.AccessKey = u.User.Username()
		cfg.SecretKey, _ = u.User.Password()
	}
	cfg.UseSSL, _ = strconv.ParseBool(u.Query().Get("ssl"))
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	cfg.Bucket = parts[0]
	if len(parts) == 2 {
		cfg.Prefix = parts[1]
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return Config{}, errors.New("objstore dsn: endpoint and bucket are required")
	}
	return cfg, nil
}

// Store is an object-storage storage.Store.
type Store struct {
	b         bucket
	prefix    string
	batchSize int

	mu    sync.Mutex
	locks map[storage.Table]*sync.Mutex
}

var _ storage.Store = (*Store)(nil)

func newStore(b bucket, prefix string, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = storage.DefaultBatchSize
	}
	return &Store{b: b, prefix: strings.Trim(prefix, "/"), batchSize: batchSize, locks: make(map[storage.Table]*sync.Mutex)}
}

// NewRepository connects to the endpoint, creates the bucket if it is
// missing and returns a Store plus a Close function.
func NewRepository(ctx context.Context, cfg Config) (*Store, func(), error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("objstore: client: %w", err)
	}
	ok, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, nil, fmt.Errorf("objstore: bucket %s: %w", cfg.Bucket, err)
	}
	if !ok {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, nil, fmt.Errorf("objstore: make bucket %s: %w", cfg.Bucket, err)
		}
		log.Printf("objstore: created bucket=%s", cfg.Bucket)
	}
	st := newStore(&minioBucket{client: client, name: cfg.Bucket}, cfg.Prefix, cfg.BatchSize)
	return st, func() {}, nil
}

func (s *Store) tableLock(t storage.Table) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[t]
	if !ok {
		l = &sync.Mutex{}
		s.locks[t] = l
	}
	return l
}

func (s *Store) dir(t storage.Table) string {
	project := t.Project
	if project == "" {
		project = "_"
	}
	return path.Join(s.prefix, project, t.Dataset, t.Name)
}

func (s *Store) readManifest(ctx context.Context, t storage.Table) (*manifest, error) {
	b, err := s.b.Get(ctx, path.Join(s.dir(t), manifestName))
	if errors.Is(err, errNoSuchKey) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("objstore: %s: %w", t, err)
	}
	m, err := decodeManifest(b)
	if err != nil {
		return nil, fmt.Errorf("objstore: %s: manifest: %w", t, err)
	}
	return m, nil
}

func (s *Store) writeManifest(ctx context.Context, t storage.Table, m *manifest) error {
	b, err := m.encode()
	if err != nil {
		return fmt.Errorf("objstore: %s: manifest: %w", t, err)
	}
	if err := s.b.Put(ctx, path.Join(s.dir(t), manifestName), b, "application/json"); err != nil {
		return fmt.Errorf("objstore: %s: %w", t, err)
	}
	return nil
}

// Describe reads the manifest of t.
func (s *Store) Describe(ctx context.Context, t storage.Table) (storage.TableInfo, error) {
	m, err := s.readManifest(ctx, t)
	if err != nil || m == nil {
		return storage.TableInfo{}, err
	}
	return storage.TableInfo{Exists: true, Schema: m.Schema, Rows: m.rows()}, nil
}

// Create writes an empty manifest for t.
func (s *Store) Create(ctx context.Context, t storage.Table, sch schema.Schema) error {
	if sch.IsZero() {
		return fmt.Errorf("objstore: create %s: schema has no fields", t)
	}
	l := s.tableLock(t)
	l.Lock()
	defer l.Unlock()

	m, err := s.readManifest(ctx, t)
	if err != nil {
		return err
	}
	if m != nil {
		return fmt.Errorf("objstore: create %s: table already exists", t)
	}
	m = &manifest{Table: t.String(), Schema: sch, Fingerprint: strconv.FormatUint(sch.Fingerprint(), 16)}
	if err := s.writeManifest(ctx, t, m); err != nil {
		return err
	}
	log.Printf("objstore: created table=%s dir=%s", t, s.dir(t))
	return nil
}

// Commit uploads recs as NDJSON objects and then publishes them by
// replacing the manifest. Uploaded objects are removed again when the
// commit fails before publishing; objects dropped by a truncate are removed
// after it succeeds. When the manifest PUT reports an error, the manifest is
// read back: if it already lists the new objects the commit stands.
func (s *Store) Commit(ctx context.Context, t storage.Table, sch schema.Schema, recs []record.Record, mode storage.Mode) (int64, error) {
	if err := storage.CheckRequired(sch, recs); err != nil {
		return 0, fmt.Errorf("objstore: %s: %w", t, err)
	}
	l := s.tableLock(t)
	l.Lock()
	defer l.Unlock()

	m, err := s.readManifest(ctx, t)
	if err != nil {
		return 0, err
	}
	if m == nil {
		return 0, fmt.Errorf("objstore: %s: %w", t, storage.ErrNotFound)
	}
	if mode == storage.RequireEmpty {
		if n := m.rows(); n > 0 {
			return 0, fmt.Errorf("objstore: %s has %d rows: %w", t, n, storage.ErrNotEmpty)
		}
	}

	var uploaded []dataObject
	cleanup := func(objs []dataObject) {
		for _, o := range objs {
			if err := s.b.Remove(context.Background(), o.Key); err != nil {
				log.Printf("objstore: cleanup table=%s key=%s err=%v", t, o.Key, err)
			}
		}
	}

	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = []any{r}
	}
	written, err := storage.LoadBatches(ctx, t.String(), []string{"record"}, rows, s.batchSize,
		func(ctx context.Context, _ []string, batch [][]any) (int64, error) {
			page := make([]record.Record, len(batch))
			for i, row := range batch {
				page[i] = row[0].(record.Record)
			}
			data, err := record.EncodeBatch(sch, page)
			if err != nil {
				return 0, err
			}
			key := path.Join(s.dir(t), "data", uuid.NewString()+".ndjson")
			if err := s.b.Put(ctx, key, data, "application/x-ndjson"); err != nil {
				return 0, err
			}
			uploaded = append(uploaded, dataObject{Key: key, Rows: int64(len(page))})
			return int64(len(page)), nil
		})
	if err != nil {
		cleanup(uploaded)
		return 0, fmt.Errorf("objstore: %s: %w", t, err)
	}

	next := *m
	var dropped []dataObject
	if mode == storage.Truncate {
		dropped = m.Objects
		next.Objects = uploaded
	} else {
		next.Objects = append(append([]dataObject(nil), m.Objects...), uploaded...)
	}
	if err := s.writeManifest(ctx, t, &next); err != nil {
		// A failed PUT may still have landed. Uploads are removed only when
		// the live manifest is known not to list them.
		live, rerr := s.readManifest(context.WithoutCancel(ctx), t)
		switch {
		case rerr != nil:
			log.Printf("objstore: manifest state unknown table=%s err=%v; keeping %d uploads", t, rerr, len(uploaded))
		case live != nil && sameObjects(live.Objects, next.Objects):
			log.Printf("objstore: manifest published despite error table=%s err=%v", t, err)
			cleanup(dropped)
			return written, nil
		default:
			cleanup(uploaded)
		}
		return 0, err
	}
	cleanup(dropped)
	return written, nil
}

func sameObjects(a, b []dataObject) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Rows reads back every visible record of t in commit order.
func (s *Store) Rows(ctx context.Context, t storage.Table) ([]record.Record, error) {
	m, err := s.readManifest(ctx, t)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("objstore: %s: %w", t, storage.ErrNotFound)
	}
	var out []record.Record
	for _, o := range m.Objects {
		b, err := s.b.Get(ctx, o.Key)
		if err != nil {
			return nil, fmt.Errorf("objstore: %s: %w", t, err)
		}
		recs, err := record.DecodeBatch(m.Schema, b)
		if err != nil {
			return nil, fmt.Errorf("objstore: %s: %s: %w", t, o.Key, err)
		}
		out = append(out, recs...)
	}
	return out, nil
}

// Close is a no-op; the minio client holds no persistent connections.
func (s *Store) Close() error { return nil }

package objstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"tableload/internal/storage"
	"tableload/internal/storage/storetest"
)

// memBucket is an in-memory bucket.
type memBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut func(key string) error
	// afterPut runs once the object is stored; its error is still returned.
	afterPut func(key string) error
}

func newMemBucket() *memBucket { return &memBucket{objects: make(map[string][]byte)} }

func (b *memBucket) Put(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPut != nil {
		if err := b.failPut(key); err != nil {
			return err
		}
	}
	b.objects[key] = append([]byte(nil), data...)
	if b.afterPut != nil {
		return b.afterPut(key)
	}
	return nil
}

func (b *memBucket) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.objects[key]
	if !ok {
		return nil, errNoSuchKey
	}
	return append([]byte(nil), d...), nil
}

func (b *memBucket) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *memBucket) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objects))
	for k := range b.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return newStore(newMemBucket(), "warehouse", 2)
	})
}

func TestCommit_LayoutAndReadBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newMemBucket()
	st := newStore(b, "/warehouse/", 2)
	tbl := storage.Table{Dataset: "ds", Name: "people"}
	s := storetest.People(t)
	if err := st.Create(ctx, tbl, s); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Commit(ctx, tbl, s, storetest.Persons(1, 5), storage.Append); err != nil {
		t.Fatal(err)
	}

	keys := b.keys()
	// 5 rows in batches of 2 -> 3 data objects plus the manifest.
	if len(keys) != 4 {
		t.Fatalf("objects = %v, want 4", keys)
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, "warehouse/_/ds/people/") {
			t.Fatalf("key %q outside table dir", k)
		}
	}

	got, err := st.Rows(ctx, tbl)
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	want := storetest.Persons(1, 5)
	if len(got) != len(want) {
		t.Fatalf("Rows() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !want[i].Equal(got[i]) {
			t.Fatalf("row %d = %v, want %v", i, got[i].Native(), want[i].Native())
		}
	}
}

func TestCommit_TruncateRemovesOldObjects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newMemBucket()
	st := newStore(b, "", 10)
	tbl := storage.Table{Dataset: "ds", Name: "people"}
	s := storetest.People(t)
	if err := st.Create(ctx, tbl, s); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := st.Commit(ctx, tbl, s, storetest.Persons(1, 3), storage.Truncate); err != nil {
			t.Fatal(err)
		}
	}
	if keys := b.keys(); len(keys) != 2 {
		t.Fatalf("objects after repeated truncate = %v, want manifest plus one batch", keys)
	}
}

func TestCommit_FailedUploadPublishesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newMemBucket()
	st := newStore(b, "", 1)
	tbl := storage.Table{Dataset: "ds", Name: "people"}
	s := storetest.People(t)
	if err := st.Create(ctx, tbl, s); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Commit(ctx, tbl, s, storetest.Persons(1, 2), storage.Append); err != nil {
		t.Fatal(err)
	}
	before := b.keys()

	puts := 0
	b.failPut = func(key string) error {
		if strings.HasSuffix(key, ".ndjson") {
			puts++
			if puts == 2 {
				return errors.New("disk full")
			}
		}
		return nil
	}
	if _, err := st.Commit(ctx, tbl, s, storetest.Persons(3, 5), storage.Truncate); err == nil {
		t.Fatalf("Commit() error = nil, want upload failure")
	}
	if after := b.keys(); strings.Join(after, ",") != strings.Join(before, ",") {
		t.Fatalf("objects after failed commit = %v, want %v", after, before)
	}
	info, _ := st.Describe(ctx, tbl)
	if info.Rows != 2 {
		t.Fatalf("Rows = %d, want 2", info.Rows)
	}
}

func TestCommit_ManifestPutError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		landed   bool
		wantErr  bool
		wantRows int64
	}{
		{name: "manifest stored then error", landed: true, wantRows: 3},
		{name: "manifest rejected", landed: false, wantErr: true, wantRows: 2},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			b := newMemBucket()
			st := newStore(b, "", 2)
			tbl := storage.Table{Dataset: "ds", Name: "people"}
			s := storetest.People(t)
			if err := st.Create(ctx, tbl, s); err != nil {
				t.Fatal(err)
			}
			if _, err := st.Commit(ctx, tbl, s, storetest.Persons(1, 2), storage.Append); err != nil {
				t.Fatal(err)
			}

			isManifest := func(key string) bool { return strings.HasSuffix(key, manifestName) }
			if tt.landed {
				b.afterPut = func(key string) error {
					if isManifest(key) {
						return context.DeadlineExceeded
					}
					return nil
				}
			} else {
				b.failPut = func(key string) error {
					if isManifest(key) {
						return errors.New("precondition failed")
					}
					return nil
				}
			}

			_, err := st.Commit(ctx, tbl, s, storetest.Persons(3, 5), storage.Truncate)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Commit() error = %v, wantErr %t", err, tt.wantErr)
			}
			b.afterPut, b.failPut = nil, nil

			info, err := st.Describe(ctx, tbl)
			if err != nil {
				t.Fatal(err)
			}
			rows, err := st.Rows(ctx, tbl)
			if err != nil {
				t.Fatalf("Rows() error = %v; table unreadable after manifest error", err)
			}
			if info.Rows != tt.wantRows || int64(len(rows)) != tt.wantRows {
				t.Fatalf("Describe rows = %d, readable rows = %d, want %d", info.Rows, len(rows), tt.wantRows)
			}
			data := 0
			for _, k := range b.keys() {
				if strings.HasSuffix(k, ".ndjson") {
					data++
				}
			}
			// batch size 2: the first commit made one object, the second two.
			if want := map[bool]int{true: 2, false: 1}[tt.landed]; data != want {
				t.Fatalf("data objects = %d, want %d (%v)", data, want, b.keys())
			}
		})
	}
}

func TestParseDSN(t *testing.T) {
	t.Parallel()

	cfg, err := ParseDSN("s3://ak:sk@localhost:9000/lake/raw/people?ssl=true&region=eu-west-1")
	if err != nil {
		t.Fatalf("ParseDSN() error = %v", err)
	}
	want := Config{Endpoint: "localhost:9000", AccessKey: "ak", SecretKey: "sk", Bucket: "lake", Prefix: "raw/people", Region: "eu-west-1", UseSSL: true}
	if cfg != want {
		t.Fatalf("ParseDSN() = %+v, want %+v", cfg, want)
	}

	for _, bad := range []string{"http://host/bucket", "s3://host", "s3:///bucket"} {
		if _, err := ParseDSN(bad); err == nil {
			t.Errorf("ParseDSN(%q) error = nil", bad)
		}
	}
}

func TestAdapterRegistration(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var got Config
	newRepository = func(_ context.Context, cfg Config) (*Store, func(), error) {
		got = cfg
		return newStore(newMemBucket(), cfg.Prefix, cfg.BatchSize), func() {}, nil
	}
	st, err := storage.New(context.Background(), storage.Config{
		Kind:    "s3",
		DSN:     "s3://ak:sk@minio:9000/lake",
		Options: storage.Options{"region": "us-east-1", "batch_size": 7},
	})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	defer st.Close()
	if got.Bucket != "lake" || got.Region != "us-east-1" || got.BatchSize != 7 {
		t.Fatalf("cfg = %+v", got)
	}
}

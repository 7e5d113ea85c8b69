package database

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"romba-go/internal/model"
	"romba-go/internal/romba"
)

func newTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := NewSQLiteIndex(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteIndex() error = %v", err)
	}
	if _, err := idx.db.Exec(Schema); err != nil {
		idx.Close()
		t.Fatalf("applying schema: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func sha(c byte) string { return strings.Repeat(string(c), model.SHA1Length) }

func full(c byte) model.HashSet {
	return model.HashSet{
		CRC32: strings.Repeat(string(c), model.CRC32Length),
		MD5:   strings.Repeat(string(c), model.MD5Length),
		SHA1:  sha(c),
	}
}

func count(t *testing.T, idx *SQLiteIndex, table string) int {
	t.Helper()
	var n int
	if err := idx.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

func TestSQLiteIndex_RecordContentIdempotent(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := idx.RecordContent(ctx, full('a'), "/depot"); err != nil {
			t.Fatalf("RecordContent() #%d error = %v", i, err)
		}
	}
	for _, table := range []string{"crc", "md5", "sha1", "crc_sha1", "md5_sha1"} {
		if n := count(t, idx, table); n != 1 {
			t.Errorf("%s rows = %d, want 1", table, n)
		}
	}
}

func TestSQLiteIndex_RecordContentSkipsBlank(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.RecordContent(ctx, model.HashSet{CRC32: "DEADBEEF"}, ""); err != nil {
		t.Fatalf("RecordContent() error = %v", err)
	}
	if n := count(t, idx, "crc"); n != 1 {
		t.Errorf("crc rows = %d, want 1", n)
	}
	for _, table := range []string{"md5", "sha1", "crc_sha1", "md5_sha1"} {
		if n := count(t, idx, table); n != 0 {
			t.Errorf("%s rows = %d, want 0", table, n)
		}
	}

	var crc string
	if err := idx.db.QueryRow("SELECT crc FROM crc").Scan(&crc); err != nil {
		t.Fatal(err)
	}
	if crc != "deadbeef" {
		t.Errorf("stored crc = %q, want lowercase", crc)
	}
}

func TestSQLiteIndex_RecordContentsAtomic(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	batch := []model.IndexEntry{
		{Hashes: full('a')},
		{Hashes: model.HashSet{SHA1: "not-a-hash"}},
	}
	err := idx.RecordContents(ctx, batch)
	if !errors.Is(err, romba.ErrInvalidHash) {
		t.Fatalf("RecordContents() error = %v, want ErrInvalidHash", err)
	}
	if n := count(t, idx, "sha1"); n != 0 {
		t.Errorf("sha1 rows = %d after rejected batch, want 0", n)
	}
}

func TestSQLiteIndex_DepotLocation(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	// Known from a DAT first, then archived.
	if err := idx.RecordContent(ctx, full('a'), ""); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := idx.FindDepot(ctx, sha('a')); ok {
		t.Fatal("FindDepot() ok before archiving")
	}
	if err := idx.RecordContent(ctx, full('a'), "/depot1"); err != nil {
		t.Fatal(err)
	}
	// A second location never overwrites the first.
	if err := idx.RecordContent(ctx, full('a'), "/depot2"); err != nil {
		t.Fatal(err)
	}

	depot, ok, err := idx.FindDepot(ctx, strings.ToUpper(sha('a')))
	if err != nil {
		t.Fatalf("FindDepot() error = %v", err)
	}
	if !ok || depot != "/depot1" {
		t.Errorf("FindDepot() = %q, %v; want /depot1", depot, ok)
	}

	_, ok, err = idx.FindDepot(ctx, sha('b'))
	if err != nil || ok {
		t.Errorf("FindDepot(unknown) = %v, %v; want false, nil", ok, err)
	}
}

func TestSQLiteIndex_LookupByAny(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.RecordContent(ctx, full('a'), ""); err != nil {
		t.Fatal(err)
	}
	if err := idx.RecordContent(ctx, model.HashSet{SHA1: model.ZeroSHA1}, ""); err != nil {
		t.Fatal(err)
	}
	a := full('a')

	tests := []struct {
		name           string
		crc, md5, sha1 string
		want           bool
	}{
		{name: "crc only", crc: a.CRC32, want: true},
		{name: "md5 only", md5: strings.ToUpper(a.MD5), want: true},
		{name: "sha1 only", sha1: a.SHA1, want: true},
		{name: "sha1 without relations", sha1: model.ZeroSHA1, want: true},
		{name: "one of several matches", crc: "00000001", sha1: a.SHA1, want: true},
		{name: "nothing matches", crc: "00000001", md5: full('b').MD5, sha1: sha('b'), want: false},
		{name: "nothing supplied", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := idx.LookupByAny(ctx, tt.crc, tt.md5, tt.sha1)
			if err != nil {
				t.Fatalf("LookupByAny() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("LookupByAny() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSQLiteIndex_ResolveSHA1s(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	a, b := full('a'), full('b')
	b.CRC32 = a.CRC32 // CRC collision
	if err := idx.RecordContents(ctx, []model.IndexEntry{{Hashes: a}, {Hashes: b}}); err != nil {
		t.Fatal(err)
	}

	got, err := idx.ResolveSHA1s(ctx, model.HashSet{CRC32: a.CRC32})
	if err != nil {
		t.Fatalf("ResolveSHA1s() error = %v", err)
	}
	if len(got) != 2 || got[0] != a.SHA1 || got[1] != b.SHA1 {
		t.Errorf("ResolveSHA1s(crc) = %v, want both sha1s sorted", got)
	}

	got, err = idx.ResolveSHA1s(ctx, model.HashSet{MD5: b.MD5})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != b.SHA1 {
		t.Errorf("ResolveSHA1s(md5) = %v, want [%s]", got, b.SHA1)
	}

	got, err = idx.ResolveSHA1s(ctx, model.HashSet{})
	if err != nil || got != nil {
		t.Errorf("ResolveSHA1s(empty) = %v, %v", got, err)
	}
}

func TestSQLiteIndex_DepotReconciliation(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	entries := []model.IndexEntry{
		{Hashes: full('a'), Depot: "/d1"},
		{Hashes: full('b'), Depot: "/d1"},
		{Hashes: full('c'), Depot: "/d2"},
	}
	if err := idx.RecordContents(ctx, entries); err != nil {
		t.Fatal(err)
	}

	got, err := idx.ListDepotSHA1s(ctx, "/d1", "")
	if err != nil {
		t.Fatalf("ListDepotSHA1s() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListDepotSHA1s(/d1) = %v, want 2 entries", got)
	}
	got, err = idx.ListDepotSHA1s(ctx, "/d1", "bb")
	if err != nil || len(got) != 1 || got[0] != sha('b') {
		t.Errorf("ListDepotSHA1s(/d1, bb) = %v, %v", got, err)
	}
	if _, err := idx.ListDepotSHA1s(ctx, "/d1", "zz"); !errors.Is(err, romba.ErrInvalidHash) {
		t.Errorf("ListDepotSHA1s(zz) error = %v, want ErrInvalidHash", err)
	}

	// Removing from the wrong depot is a no-op.
	if err := idx.RemoveDepotEntries(ctx, "/d2", []string{sha('a')}); err != nil {
		t.Fatal(err)
	}
	if err := idx.RemoveDepotEntries(ctx, "/d1", []string{sha('a')}); err != nil {
		t.Fatalf("RemoveDepotEntries() error = %v", err)
	}
	got, _ = idx.ListDepotSHA1s(ctx, "/d1", "")
	if len(got) != 1 || got[0] != sha('b') {
		t.Errorf("after removal ListDepotSHA1s(/d1) = %v", got)
	}
	if ok, _ := idx.LookupByAny(ctx, "", "", sha('a')); !ok {
		t.Error("removing a location must keep the hash relations")
	}
}

func TestSQLiteIndex_DatRegistry(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	for _, h := range []string{sha('1'), sha('2'), sha('1')} {
		if err := idx.RegisterDat(ctx, h); err != nil {
			t.Fatalf("RegisterDat() error = %v", err)
		}
	}
	if err := idx.RegisterDat(ctx, "short"); !errors.Is(err, romba.ErrInvalidHash) {
		t.Errorf("RegisterDat(short) error = %v, want ErrInvalidHash", err)
	}

	dats, err := idx.DistinctRegisteredDats(ctx)
	if err != nil {
		t.Fatalf("DistinctRegisteredDats() error = %v", err)
	}
	if len(dats) != 2 {
		t.Errorf("len(dats) = %d, want 2", len(dats))
	}

	if err := idx.UnregisterDats(ctx, []string{sha('1'), sha('9')}); err != nil {
		t.Fatalf("UnregisterDats() error = %v", err)
	}
	if ok, _ := idx.IsDatRegistered(ctx, sha('1')); ok {
		t.Error("dat 1 still registered")
	}
	if ok, _ := idx.IsDatRegistered(ctx, sha('2')); !ok {
		t.Error("dat 2 should remain registered")
	}
}

func TestSQLiteIndex_RescanCheckpoint(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	got, err := idx.RescanCheckpoint(ctx, "/d1")
	if err != nil || got != "" {
		t.Fatalf("RescanCheckpoint() = %q, %v; want empty", got, err)
	}
	for _, shard := range []string{"00", "01", "7f"} {
		if err := idx.SetRescanCheckpoint(ctx, "/d1", shard); err != nil {
			t.Fatalf("SetRescanCheckpoint() error = %v", err)
		}
	}
	if got, _ := idx.RescanCheckpoint(ctx, "/d1"); got != "7f" {
		t.Errorf("RescanCheckpoint() = %q, want 7f", got)
	}
	if got, _ := idx.RescanCheckpoint(ctx, "/d2"); got != "" {
		t.Errorf("RescanCheckpoint(/d2) = %q, want empty", got)
	}
	if err := idx.ClearRescanCheckpoint(ctx, "/d1"); err != nil {
		t.Fatal(err)
	}
	if got, _ := idx.RescanCheckpoint(ctx, "/d1"); got != "" {
		t.Errorf("after clear RescanCheckpoint() = %q", got)
	}
}

func TestSQLiteIndex_Stats(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.RecordContents(ctx, []model.IndexEntry{{Hashes: full('a'), Depot: "/d"}, {Hashes: full('b')}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.RegisterDat(ctx, sha('c')); err != nil {
		t.Fatal(err)
	}

	st, err := idx.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := romba.IndexStats{CRC: 2, MD5: 2, SHA1: 2, CRCSHA1: 2, MD5SHA1: 2, Dats: 1, InDepots: 1}
	if *st != want {
		t.Errorf("Stats() = %+v, want %+v", *st, want)
	}
}

func TestSQLiteIndex_Operations(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, id := range []string{"op-1", "op-2"} {
		op := &romba.Operation{
			ID:         id,
			Operation:  "archive",
			Parameters: "/roms",
			Status:     romba.OperationRunning,
			StartedAt:  start.Add(time.Duration(i) * time.Minute),
		}
		if err := idx.CreateOperation(ctx, op); err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}
	}
	if err := idx.FinishOperation(ctx, "op-1", romba.OperationSuccess, start.Add(time.Hour)); err != nil {
		t.Fatalf("FinishOperation() error = %v", err)
	}
	if err := idx.FinishOperation(ctx, "missing", romba.OperationSuccess, start); err == nil {
		t.Error("FinishOperation(missing) expected error")
	}

	ops, err := idx.ListOperations(ctx, 10)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("len(ops) = %d, want 2", len(ops))
	}
	if ops[0].ID != "op-2" || ops[0].FinishedAt != nil {
		t.Errorf("ops[0] = %+v, want running op-2 first", ops[0])
	}
	if ops[1].Status != romba.OperationSuccess || ops[1].FinishedAt == nil || !ops[1].FinishedAt.Equal(start.Add(time.Hour)) {
		t.Errorf("ops[1] = %+v, want finished op-1", ops[1])
	}

	ops, _ = idx.ListOperations(ctx, 1)
	if len(ops) != 1 {
		t.Errorf("ListOperations(1) returned %d", len(ops))
	}
}

func TestSQLiteIndex_ConcurrentWriters(t *testing.T) {
	idx, err := newFileTestIndex(t)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, c := range []byte("abcdef") {
				if err := idx.RecordContent(ctx, full(c), "/d"); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("RecordContent() error = %v", err)
	}
	if n := count(t, idx, "sha1"); n != 6 {
		t.Errorf("sha1 rows = %d, want 6", n)
	}
}

// newFileTestIndex opens a file-backed index in a temp dir.
func newFileTestIndex(t *testing.T) (*SQLiteIndex, error) {
	t.Helper()
	idx, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "idx.db"))
	if err != nil {
		return nil, err
	}
	if _, err := idx.db.Exec(Schema); err != nil {
		idx.Close()
		return nil, err
	}
	t.Cleanup(func() { idx.Close() })
	return idx, nil
}

func TestSQLiteIndex_BackupTo(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.RecordContent(ctx, full('a'), "/d"); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "snapshot.db")
	if err := idx.BackupTo(ctx, dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	snap, err := NewSQLiteIndex(dest)
	if err != nil {
		t.Fatalf("opening snapshot: %v", err)
	}
	defer snap.Close()
	ok, err := snap.LookupByAny(ctx, "", "", sha('a'))
	if err != nil || !ok {
		t.Errorf("snapshot LookupByAny() = %v, %v; want true", ok, err)
	}
}

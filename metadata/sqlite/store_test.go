package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/metadata"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "records.sqlite3"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorePutGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rec := &metadata.ArchiveRecord{
		Key:         "extdata/sdmc/00000000/0000008f",
		ArchiveType: "ExtSaveData",
		FormatInfo:  metadata.FormatInfo{TotalSize: 0x100000, NumberDirectories: 10, NumberFiles: 20, DuplicateData: true},
		Icon:        []byte{1, 2, 3, 4},
	}
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, rec.Key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.FormatInfo != rec.FormatInfo {
		t.Errorf("format info = %+v, want %+v", got.FormatInfo, rec.FormatInfo)
	}
	if string(got.Icon) != string(rec.Icon) {
		t.Errorf("icon = %v, want %v", got.Icon, rec.Icon)
	}
	if got.ArchiveType != "ExtSaveData" {
		t.Errorf("archive type = %q", got.ArchiveType)
	}
}

func TestSQLiteStoreUpsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rec := &metadata.ArchiveRecord{Key: "savedata/k", ArchiveType: "SaveData", FormatInfo: metadata.FormatInfo{NumberFiles: 1}}
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	rec.FormatInfo.NumberFiles = 7
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	got, err := store.Get(ctx, "savedata/k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.FormatInfo.NumberFiles != 7 {
		t.Errorf("NumberFiles = %d, want 7", got.FormatInfo.NumberFiles)
	}
}

func TestSQLiteStoreDeleteAndList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, key := range []string{"sysdata/a", "sysdata/b", "extdata/c"} {
		if err := store.Put(ctx, &metadata.ArchiveRecord{Key: key, ArchiveType: "t"}); err != nil {
			t.Fatalf("Put(%s) failed: %v", key, err)
		}
	}

	list, err := store.List(ctx, "sysdata/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].Key != "sysdata/a" || list[1].Key != "sysdata/b" {
		t.Fatalf("unexpected list result: %+v", list)
	}

	if err := store.Delete(ctx, "sysdata/a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "sysdata/a"); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("Get after delete: got %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "sysdata/a"); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("second Delete: got %v, want ErrNotFound", err)
	}
}

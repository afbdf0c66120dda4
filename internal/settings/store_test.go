package settings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"marstek-bridge/internal/infrastructure/database"
	_ "marstek-bridge/migrations"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:    filepath.Join(t.TempDir(), "test.db"),
		WALMode: true,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteStore(db.DB)
}

func TestStore_SetGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "d1", 10.24); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	o, err := store.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if o.CapacityKWh != 10.24 {
		t.Errorf("CapacityKWh = %v, want 10.24", o.CapacityKWh)
	}
	if o.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not recorded")
	}
}

func TestStore_SetReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "d1", 5.12); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, "d1", 7.68); err != nil {
		t.Fatalf("second Set() error = %v", err)
	}

	o, err := store.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if o.CapacityKWh != 7.68 {
		t.Errorf("CapacityKWh = %v, want replaced value 7.68", o.CapacityKWh)
	}
}

func TestStore_SetValidatesRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, capacity := range []float64{0, 0.05, -1, 150} {
		if err := store.Set(ctx, "d1", capacity); !errors.Is(err, ErrInvalidCapacity) {
			t.Errorf("Set(%v) error = %v, want ErrInvalidCapacity", capacity, err)
		}
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "d1", 5.12); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Delete(ctx, "d1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestStore_All(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if all, err := store.All(ctx); err != nil || len(all) != 0 {
		t.Fatalf("All() on empty store = (%v, %v), want empty map", all, err)
	}

	if err := store.Set(ctx, "d1", 5.12); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, "d2", 10.24); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 2 || all["d1"] != 5.12 || all["d2"] != 10.24 {
		t.Errorf("All() = %v, want both overrides", all)
	}
}

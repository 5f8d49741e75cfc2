package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HatiCode/reefcast/pkg/sst"
)

func testSnapshot(id string, fetchedAt time.Time, temps ...float64) sst.Snapshot {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	readings := make([]sst.Reading, len(temps))
	for i, v := range temps {
		readings[i] = sst.Reading{Date: start.AddDate(0, 0, i), Temperature: v}
	}
	return sst.Snapshot{LocationID: id, Readings: readings, FetchedAt: fetchedAt}
}

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store == nil {
		t.Fatal("NewMemoryStore() returned nil")
	}
	if store.Len() != 0 {
		t.Errorf("New store should be empty, got %d snapshots", store.Len())
	}
}

func TestMemoryStore_Put_Get(t *testing.T) {
	tests := []struct {
		name     string
		snapshot sst.Snapshot
		wantErr  bool
	}{
		{
			name:     "valid snapshot",
			snapshot: testSnapshot("jolly-buoy", time.Now(), 28.1, 28.3, 28.2),
			wantErr:  false,
		},
		{
			name:     "empty location id",
			snapshot: testSnapshot("", time.Now(), 28.1),
			wantErr:  true,
		},
		{
			name:     "no readings",
			snapshot: sst.Snapshot{LocationID: "havelock"},
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			ctx := context.Background()

			err := store.Put(ctx, tt.snapshot)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Put() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			got, found, err := store.GetLatest(ctx, tt.snapshot.LocationID)
			if err != nil {
				t.Fatalf("GetLatest() error = %v", err)
			}
			if !found {
				t.Fatal("GetLatest() found = false, want true")
			}
			if len(got.Readings) != len(tt.snapshot.Readings) {
				t.Errorf("Readings len = %d, want %d", len(got.Readings), len(tt.snapshot.Readings))
			}
		})
	}
}

func TestMemoryStore_GetLatest_NotFound(t *testing.T) {
	store := NewMemoryStore()

	_, found, err := store.GetLatest(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetLatest() error = %v", err)
	}
	if found {
		t.Error("GetLatest() found = true for missing location")
	}
}

func TestMemoryStore_Put_Replaces(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := testSnapshot("neel-islands", time.Now().Add(-time.Hour), 27.0, 27.1)
	second := testSnapshot("neel-islands", time.Now(), 29.0)

	if err := store.Put(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, _, _ := store.GetLatest(ctx, "neel-islands")
	if len(got.Readings) != 1 || got.Readings[0].Temperature != 29.0 {
		t.Errorf("expected second snapshot to replace first, got %+v", got.Readings)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Put(ctx, testSnapshot("havelock", time.Now(), 1)); err == nil {
		t.Error("Put() with canceled context should fail")
	}
	if _, _, err := store.GetLatest(ctx, "havelock"); err == nil {
		t.Error("GetLatest() with canceled context should fail")
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		id := fmt.Sprintf("loc-%d", i%5)
		go func(v float64) {
			defer wg.Done()
			if err := store.Put(ctx, testSnapshot(id, time.Now(), v)); err != nil {
				t.Errorf("Put() error = %v", err)
			}
		}(float64(i))
		go func() {
			defer wg.Done()
			if _, _, err := store.GetLatest(ctx, id); err != nil {
				t.Errorf("GetLatest() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if store.Len() != 5 {
		t.Errorf("Len() = %d, want 5", store.Len())
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.Put(ctx, testSnapshot("havelock", time.Now(), 28))

	if !store.Delete("havelock") {
		t.Error("Delete() = false for existing location")
	}
	if store.Delete("havelock") {
		t.Error("Delete() = true for already-deleted location")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestMemoryStoreWithTTL_InvalidTTL(t *testing.T) {
	if _, err := NewMemoryStoreWithTTL(0, time.Second); err == nil {
		t.Error("expected error for zero TTL")
	}
}

func TestMemoryStoreWithTTL_Expiration(t *testing.T) {
	store, err := NewMemoryStoreWithTTL(50*time.Millisecond, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Stop()

	ctx := context.Background()
	_ = store.Put(ctx, testSnapshot("old", time.Now().Add(-time.Second), 28))
	_ = store.Put(ctx, testSnapshot("fresh", time.Now().Add(time.Hour), 28))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, found, _ := store.GetLatest(ctx, "old"); !found {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, found, _ := store.GetLatest(ctx, "old"); found {
		t.Error("expected stale snapshot to be evicted")
	}
	if _, found, _ := store.GetLatest(ctx, "fresh"); !found {
		t.Error("expected fresh snapshot to survive cleanup")
	}
}

func TestMemoryStoreWithTTL_Stop(t *testing.T) {
	store, err := NewMemoryStoreWithTTL(time.Minute, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	store.Stop()
	store.Stop()

	// Without TTL, Stop is a no-op.
	NewMemoryStore().Stop()
}

// Package storage holds the latest fetched SST series snapshot per location.
//
// Two backends are provided: MemoryStore for single-instance deployments and
// RedisStore for sharing snapshots between replicas. Neither is a source of
// truth; every snapshot can be refetched from upstream.
package storage

import (
	"context"

	"github.com/HatiCode/reefcast/pkg/sst"
)

// Store persists the most recent snapshot per location. Put strictly replaces
// any prior snapshot for the same location.
type Store interface {
	Put(ctx context.Context, snapshot sst.Snapshot) error
	GetLatest(ctx context.Context, locationID string) (sst.Snapshot, bool, error)
}

package main

import (
	"testing"

	"github.com/HatiCode/reefcast/cmd/forecaster/config"
	"github.com/HatiCode/reefcast/pkg/adapters"
	"github.com/HatiCode/reefcast/pkg/storage"
)

func TestBuildSeries(t *testing.T) {
	tests := []struct {
		name        string
		historyDays int
		wantErr     bool
	}{
		{"default history", 365, false},
		{"exactly the minimum", 154, false},
		{"one day short", 153, true},
		{"tiny", 30, true},
	}

	adapter := adapters.NewERDDAP("", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{HistoryDays: tt.historyDays, EndLagDays: 2, MaxGapDays: 5}
			s, err := buildSeries(cfg, adapter, storage.NewMemoryStore(), 154, discardLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildSeries() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && s == nil {
				t.Error("buildSeries() returned nil store")
			}
		})
	}
}

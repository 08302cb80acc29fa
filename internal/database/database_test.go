package database

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
)

func connect(t *testing.T, url string) {
	t.Helper()
	DB = nil
	if _, err := Connect(Config{URL: url, MaxIdleConn: 1, MaxOpenConn: 1}); err != nil {
		t.Fatalf("Connect(%q) failed: %v", url, err)
	}
	if err := Migrate(DB); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
}

func TestConnect(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		url  string
		file string
	}{
		{"in memory", ":memory:", ""},
		{"file prefix", "file:" + filepath.Join(dir, "playout.db"), filepath.Join(dir, "playout.db")},
		{"nested directory", filepath.Join(dir, "studio", "a", "playout.db"), filepath.Join(dir, "studio", "a", "playout.db")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			DB = nil
			db, err := Connect(Config{URL: tt.url, MaxIdleConn: 2, MaxOpenConn: 4, Debug: true})
			if err != nil {
				t.Fatalf("Connect failed: %v", err)
			}
			defer func() { _ = Close() }()
			if DB != db {
				t.Error("Expected the global DB to be the returned connection")
			}

			var one int
			if err := db.Raw("SELECT 1").Scan(&one).Error; err != nil || one != 1 {
				t.Errorf("SELECT 1 = %d, %v", one, err)
			}
			if tt.file != "" {
				if _, err := os.Stat(tt.file); err != nil {
					t.Errorf("Expected database file %s: %v", tt.file, err)
				}
			}
		})
	}
}

func TestConnect_FileUsesWAL(t *testing.T) {
	connect(t, filepath.Join(t.TempDir(), "playout.db"))
	defer func() { _ = Close() }()

	var mode string
	if err := DB.Raw("PRAGMA journal_mode").Scan(&mode).Error; err != nil {
		t.Fatalf("PRAGMA failed: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestClose(t *testing.T) {
	DB = nil
	if err := Close(); err != nil {
		t.Errorf("Close with nil DB should not error: %v", err)
	}

	connect(t, ":memory:")
	if err := Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestMigrate_CreatesPlayoutTables(t *testing.T) {
	connect(t, ":memory:")
	defer func() { _ = Close() }()

	for _, m := range models.All() {
		table := m.(interface{ TableName() string }).TableName()
		if !DB.Migrator().HasTable(table) {
			t.Errorf("Expected table %s to exist", table)
		}
	}

	// Migrating twice must be harmless
	if err := Migrate(DB); err != nil {
		t.Errorf("Second Migrate failed: %v", err)
	}
}

func TestPartInstance_SurvivesReconnect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playout.db")
	connect(t, path)

	take := int64(1_700_000_000_000)
	in := models.PartInstance{
		ID:         "pi0",
		PlaylistID: "playlist0",
		RundownID:  "rd0",
		SegmentID:  "s0",
		PartID:     "p0",
		Part:       models.Part{ID: "p0", Title: "Open", AutoNext: true, ExpectedDuration: 5000},
		Timings:    models.PartInstanceTimings{Take: &take},
		TakeCount:  3,
	}
	if err := DB.Create(&in).Error; err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	connect(t, path)
	defer func() { _ = Close() }()

	var out models.PartInstance
	if err := DB.First(&out, "id = ?", "pi0").Error; err != nil {
		t.Fatalf("First failed: %v", err)
	}
	if out.Part.Title != "Open" || !out.Part.AutoNext || out.Part.ExpectedDuration != 5000 {
		t.Errorf("Part = %+v, want the embedded part back", out.Part)
	}
	if out.Timings.Take == nil || *out.Timings.Take != take {
		t.Errorf("Timings.Take = %v, want %d", out.Timings.Take, take)
	}
	if out.TakeCount != 3 || out.PlaylistID != "playlist0" {
		t.Errorf("PartInstance = %+v", out)
	}
}

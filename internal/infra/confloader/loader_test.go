package confloader

import (
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Node struct {
		ID string `koanf:"id"`
	} `koanf:"node"`
	Replication struct {
		BatchSize int    `koanf:"batch_size"`
		Interval  string `koanf:"interval"`
	} `koanf:"replication"`
	Storage struct {
		Badger struct {
			SyncWrites bool `koanf:"sync_writes"`
		} `koanf:"badger"`
	} `koanf:"storage"`
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docmesh.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	if l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}

	l = NewLoader(WithEnvPrefix("TEST_"), WithConfigFile("/etc/docmesh.yaml"))
	if l.envPrefix != "TEST_" || l.FilePath() != "/etc/docmesh.yaml" {
		t.Errorf("options not applied: prefix=%q path=%q", l.envPrefix, l.FilePath())
	}
}

func TestLoader_Precedence(t *testing.T) {
	path := writeFile(t, `
node:
  id: from-file
replication:
  batch_size: 32
`)
	defaults := map[string]any{
		"node":        map[string]any{"id": "default"},
		"replication": map[string]any{"batch_size": 8, "interval": "1s"},
	}

	tests := []struct {
		name          string
		env           map[string]string
		file          string
		wantID        string
		wantBatchSize int
		wantInterval  string
		wantSync      bool
	}{
		{
			name:          "defaults only",
			wantID:        "default",
			wantBatchSize: 8,
			wantInterval:  "1s",
		},
		{
			name:          "file overrides defaults",
			file:          path,
			wantID:        "from-file",
			wantBatchSize: 32,
			wantInterval:  "1s",
		},
		{
			name: "env overrides file",
			file: path,
			env: map[string]string{
				"DOCMESH_NODE__ID":                     "from-env",
				"DOCMESH_REPLICATION__BATCH_SIZE":      "64",
				"DOCMESH_STORAGE__BADGER__SYNC_WRITES": "true",
			},
			wantID:        "from-env",
			wantBatchSize: 64,
			wantInterval:  "1s",
			wantSync:      true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			var cfg testConfig
			l := NewLoader(WithConfigFile(tt.file), WithDefaults(defaults))
			if err := l.Load(&cfg); err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Node.ID != tt.wantID {
				t.Errorf("node.id = %q, want %q", cfg.Node.ID, tt.wantID)
			}
			if cfg.Replication.BatchSize != tt.wantBatchSize {
				t.Errorf("replication.batch_size = %d, want %d", cfg.Replication.BatchSize, tt.wantBatchSize)
			}
			if cfg.Replication.Interval != tt.wantInterval {
				t.Errorf("replication.interval = %q, want %q", cfg.Replication.Interval, tt.wantInterval)
			}
			if cfg.Storage.Badger.SyncWrites != tt.wantSync {
				t.Errorf("storage.badger.sync_writes = %v, want %v", cfg.Storage.Badger.SyncWrites, tt.wantSync)
			}
		})
	}
}

func TestLoader_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		var cfg testConfig
		if err := NewLoader(WithConfigFile("/nonexistent/docmesh.yaml")).Load(&cfg); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		var cfg testConfig
		path := writeFile(t, "node: [unclosed")
		if err := NewLoader(WithConfigFile(path)).Load(&cfg); err == nil {
			t.Error("expected error for invalid yaml")
		}
	})
}

func TestLoader_ReloadStartsFresh(t *testing.T) {
	path := writeFile(t, "node:\n  id: first\n")
	l := NewLoader(WithConfigFile(path))

	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("replication:\n  batch_size: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg = testConfig{}
	if err := l.Load(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Node.ID != "" || cfg.Replication.BatchSize != 5 {
		t.Errorf("reloaded config = %+v, want only batch_size", cfg)
	}
	if got := l.String("replication.batch_size"); got != "5" {
		t.Errorf("String() = %q, want 5", got)
	}
}

func TestMapProvider(t *testing.T) {
	p := mapProvider{"a": 1}
	if _, err := p.ReadBytes(); err != ErrReadBytesNotSupported {
		t.Errorf("ReadBytes() error = %v", err)
	}
	m, err := p.Read()
	if err != nil || m["a"] != 1 {
		t.Errorf("Read() = %v, %v", m, err)
	}
}

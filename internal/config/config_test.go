package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	config := Default()

	if config.Simulation.LeadIn != "full" {
		t.Errorf("expected LeadIn 'full', got '%s'", config.Simulation.LeadIn)
	}
	if config.Simulation.Analyzing != 4*time.Second {
		t.Errorf("expected Analyzing 4s, got %v", config.Simulation.Analyzing)
	}
	if config.Simulation.PhraseInterval != 800*time.Millisecond {
		t.Errorf("expected PhraseInterval 800ms, got %v", config.Simulation.PhraseInterval)
	}
	if config.Simulation.StageJitter != 0 {
		t.Errorf("expected no StageJitter, got %v", config.Simulation.StageJitter)
	}

	n, err := config.Intake.MaxBytes()
	if err != nil || n != 100<<20 {
		t.Errorf("MaxBytes() = %d, %v, want 100 MiB", n, err)
	}
	if strings.Join(config.Intake.AllowedTypes, ",") != "image/,video/" {
		t.Errorf("unexpected AllowedTypes %v", config.Intake.AllowedTypes)
	}

	if config.Storage.BackupMaxCount != 10 {
		t.Errorf("expected BackupMaxCount 10, got %d", config.Storage.BackupMaxCount)
	}
	if config.Server.Addr != "127.0.0.1:7411" {
		t.Errorf("expected Addr 127.0.0.1:7411, got '%s'", config.Server.Addr)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
}

func TestSimulationConfig_Timing(t *testing.T) {
	config := Default()
	timing := config.Simulation.Timing()
	if timing.SkipAnalysis {
		t.Error("full lead-in should not skip analysis")
	}
	if timing.Stage != config.Simulation.Stage {
		t.Errorf("Stage = %v, want %v", timing.Stage, config.Simulation.Stage)
	}

	config.Simulation.LeadIn = "lean"
	if !config.Simulation.Timing().SkipAnalysis {
		t.Error("lean lead-in should skip analysis")
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
simulation:
  lead_in: lean
  stage: 1500ms
  stage_jitter: 250ms
  phrase_interval: 0s

intake:
  max_size: 25MB
  allowed_types: [image/]

server:
  addr: 127.0.0.1:9000
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Simulation.LeadIn != "lean" {
		t.Errorf("expected LeadIn 'lean', got '%s'", config.Simulation.LeadIn)
	}
	if config.Simulation.Stage != 1500*time.Millisecond {
		t.Errorf("expected Stage 1.5s, got %v", config.Simulation.Stage)
	}
	if config.Simulation.StageJitter != 250*time.Millisecond {
		t.Errorf("expected StageJitter 250ms, got %v", config.Simulation.StageJitter)
	}
	if config.Simulation.PhraseInterval != 0 {
		t.Errorf("expected PhraseInterval 0, got %v", config.Simulation.PhraseInterval)
	}
	// Unset fields keep their defaults
	if config.Simulation.Initiating != time.Second {
		t.Errorf("expected Initiating default 1s, got %v", config.Simulation.Initiating)
	}
	if n, _ := config.Intake.MaxBytes(); n != 25_000_000 {
		t.Errorf("expected MaxBytes 25000000, got %d", n)
	}
	if len(config.Intake.AllowedTypes) != 1 || config.Intake.AllowedTypes[0] != "image/" {
		t.Errorf("expected AllowedTypes [image/], got %v", config.Intake.AllowedTypes)
	}
	if config.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("expected Addr 127.0.0.1:9000, got '%s'", config.Server.Addr)
	}
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
simulation:
  catalog: ${TEST_ROSTER_DIR}/agents.yaml
storage:
  db_path: ${TEST_ROSTER_DIR}/reports.db
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("TEST_ROSTER_DIR", "/srv/council")

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Simulation.Catalog != "/srv/council/agents.yaml" {
		t.Errorf("expected expanded catalog path, got '%s'", config.Simulation.Catalog)
	}
	if config.Storage.DBPath != "/srv/council/reports.db" {
		t.Errorf("expected expanded db path, got '%s'", config.Storage.DBPath)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FCOUNCIL_LEAD_IN", "lean")
	t.Setenv("FCOUNCIL_STAGE_DELAY", "2s")
	t.Setenv("FCOUNCIL_PHRASE_INTERVAL", "not-a-duration")
	t.Setenv("FCOUNCIL_ALLOWED_TYPES", "image/, video/mp4 ,")
	t.Setenv("FCOUNCIL_DB_PATH", "/tmp/x.db")
	t.Setenv("FCOUNCIL_SERVER_ADDR", ":8080")
	t.Setenv("FCOUNCIL_LOG_LEVEL", "debug")

	config := Default()
	applyEnvOverrides(config)

	if config.Simulation.LeadIn != "lean" {
		t.Errorf("expected LeadIn 'lean', got '%s'", config.Simulation.LeadIn)
	}
	if config.Simulation.Stage != 2*time.Second {
		t.Errorf("expected Stage 2s, got %v", config.Simulation.Stage)
	}
	if config.Simulation.PhraseInterval != 800*time.Millisecond {
		t.Errorf("invalid duration should be ignored, got %v", config.Simulation.PhraseInterval)
	}
	if strings.Join(config.Intake.AllowedTypes, ",") != "image/,video/mp4" {
		t.Errorf("unexpected AllowedTypes %v", config.Intake.AllowedTypes)
	}
	if config.Storage.DBPath != "/tmp/x.db" {
		t.Errorf("expected DBPath override, got '%s'", config.Storage.DBPath)
	}
	if config.Server.Addr != ":8080" {
		t.Errorf("expected Addr override, got '%s'", config.Server.Addr)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected Level 'debug', got '%s'", config.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *CouncilConfig)
		wantErr string
	}{
		{"defaults", func(c *CouncilConfig) {}, ""},
		{"lean", func(c *CouncilConfig) { c.Simulation.LeadIn = "lean" }, ""},
		{"bad lead-in", func(c *CouncilConfig) { c.Simulation.LeadIn = "quick" }, "invalid lead_in"},
		{"negative stage", func(c *CouncilConfig) { c.Simulation.Stage = -time.Second }, "non-negative"},
		{"negative jitter", func(c *CouncilConfig) { c.Simulation.StageJitter = -1 }, "non-negative"},
		{"bad size", func(c *CouncilConfig) { c.Intake.MaxSize = "huge" }, "invalid max_size"},
		{"zero size", func(c *CouncilConfig) { c.Intake.MaxSize = "0" }, "positive"},
		{"bad type", func(c *CouncilConfig) { c.Intake.AllowedTypes = []string{"image"} }, "invalid allowed type"},
		{"negative count", func(c *CouncilConfig) { c.Storage.BackupMaxCount = -1 }, "backup_max_count"},
		{"bad level", func(c *CouncilConfig) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"empty level", func(c *CouncilConfig) { c.Logging.Level = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected valid config, got error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetSet(t *testing.T) {
	config := Default()

	if err := config.Set("simulation.stage", "750ms"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, ok := config.Get("simulation.stage"); !ok || v != "750ms" {
		t.Errorf("Get(simulation.stage) = %q, %v", v, ok)
	}

	if err := config.Set("intake.allowed_types", "image/png,video/"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, _ := config.Get("intake.allowed_types"); v != "image/png,video/" {
		t.Errorf("Get(intake.allowed_types) = %q", v)
	}

	if err := config.Set("storage.backup_max_count", "3"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if config.Storage.BackupMaxCount != 3 {
		t.Errorf("BackupMaxCount = %d, want 3", config.Storage.BackupMaxCount)
	}
}

func TestSet_RejectsInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"no.such.key", "x"},
		{"simulation.stage", "soon"},
		{"simulation.stage", "-1s"},
		{"simulation.lead_in", "quick"},
		{"storage.backup_max_count", "many"},
		{"logging.level", "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			config := Default()
			before, _ := config.Get("simulation.stage")
			if err := config.Set(tt.key, tt.value); err == nil {
				t.Errorf("Set(%s, %s) should fail", tt.key, tt.value)
			}
			if after, _ := config.Get("simulation.stage"); after != before {
				t.Errorf("failed Set changed the config: %s -> %s", before, after)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	keys := Keys()
	config := Default()
	for _, k := range keys {
		if _, ok := config.Get(k); !ok {
			t.Errorf("Keys() returned %q but Get does not know it", k)
		}
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("Keys() not sorted: %v", keys)
		}
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	config := Default()
	config.Simulation.LeadIn = "lean"
	config.Simulation.Stage = 2500 * time.Millisecond
	if err := Save(config, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config permissions = %o, want 0600", perm)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Simulation.LeadIn != "lean" || loaded.Simulation.Stage != 2500*time.Millisecond {
		t.Errorf("round trip lost values: %+v", loaded.Simulation)
	}
}

func TestLoad_FromHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("FCOUNCIL_LOG_LEVEL", "")

	dir := filepath.Join(home, ".fcouncil")
	os.MkdirAll(dir, 0700)
	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("logging:\n  level: trace\n"), 0600)

	config, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Logging.Level != "trace" {
		t.Errorf("expected Level 'trace', got '%s'", config.Logging.Level)
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("invalid: yaml: content:"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

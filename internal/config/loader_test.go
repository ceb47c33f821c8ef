package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		globalConfig  map[string]any
		projectConfig map[string]any
		check         func(t *testing.T, cfg *Config)
	}{
		{
			name: "No config files - returns defaults",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Atomicity.MaxTargets != 3 {
					t.Errorf("max targets = %d, want 3", cfg.Atomicity.MaxTargets)
				}
				if cfg.Priority.DeadlineSoon != 50 {
					t.Errorf("deadline_soon = %d, want 50", cfg.Priority.DeadlineSoon)
				}
				if cfg.Dispatch.Concurrency != 4 {
					t.Errorf("concurrency = %d, want 4", cfg.Dispatch.Concurrency)
				}
			},
		},
		{
			name: "Global only - overrides one section",
			globalConfig: map[string]any{
				"atomicity": map[string]any{"max_targets": 5},
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Atomicity.MaxTargets != 5 {
					t.Errorf("max targets = %d, want 5", cfg.Atomicity.MaxTargets)
				}
				// Untouched sections keep their defaults.
				if cfg.Dispatch.Concurrency != 4 {
					t.Errorf("concurrency = %d, want 4", cfg.Dispatch.Concurrency)
				}
			},
		},
		{
			name: "Project only - overrides priority weights",
			projectConfig: map[string]any{
				"priority": map[string]any{"blocks_each": 40, "quick_win": 0},
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Priority.BlocksEach != 40 {
					t.Errorf("blocks_each = %d, want 40", cfg.Priority.BlocksEach)
				}
				if cfg.Priority.QuickWin != 0 {
					t.Errorf("quick_win = %d, want 0", cfg.Priority.QuickWin)
				}
			},
		},
		{
			name: "Both - project wins over global",
			globalConfig: map[string]any{
				"atomicity": map[string]any{"max_targets": 5},
				"dispatch":  map[string]any{"concurrency": 8},
			},
			projectConfig: map[string]any{
				"atomicity": map[string]any{"max_targets": 2},
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Atomicity.MaxTargets != 2 {
					t.Errorf("max targets = %d, want 2 (project override)", cfg.Atomicity.MaxTargets)
				}
				if cfg.Dispatch.Concurrency != 8 {
					t.Errorf("concurrency = %d, want 8 (global override)", cfg.Dispatch.Concurrency)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()

			globalPath := ""
			if tt.globalConfig != nil {
				globalPath = filepath.Join(tmpDir, "global.json")
				data, err := json.Marshal(tt.globalConfig)
				if err != nil {
					t.Fatalf("marshaling global config: %v", err)
				}
				if err := os.WriteFile(globalPath, data, 0644); err != nil {
					t.Fatalf("writing global config: %v", err)
				}
			}

			projectPath := ""
			if tt.projectConfig != nil {
				projectPath = filepath.Join(tmpDir, "project.json")
				data, err := json.Marshal(tt.projectConfig)
				if err != nil {
					t.Fatalf("marshaling project config: %v", err)
				}
				if err := os.WriteFile(projectPath, data, 0644); err != nil {
					t.Fatalf("writing project config: %v", err)
				}
			}

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	tmpDir := t.TempDir()

	// Create malformed JSON file
	globalPath := filepath.Join(tmpDir, "global.json")
	if err := os.WriteFile(globalPath, []byte("{invalid json"), 0644); err != nil {
		t.Fatalf("writing malformed config: %v", err)
	}

	// Load should return error
	_, err := Load(globalPath, "")
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}

	// Error should mention the file
	if err.Error() == "" {
		t.Error("expected descriptive error message")
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	// Load with non-existent paths should not error
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}

	// Should return defaults
	if cfg.Atomicity.MaxTargets != 3 {
		t.Errorf("max targets = %d, want 3", cfg.Atomicity.MaxTargets)
	}
	if cfg.Priority.CategoryBonus["security"] != 25 {
		t.Errorf("security bonus = %d, want 25", cfg.Priority.CategoryBonus["security"])
	}
}

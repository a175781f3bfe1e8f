package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEmptySettingsDefaults(t *testing.T) {
	cfg := EmptySettings()

	if cfg.GetStatesShareWeights() {
		t.Error("GetStatesShareWeights() = true, want false")
	}
	if cfg.GetMaxNumObjects() != 1 {
		t.Errorf("GetMaxNumObjects() = %d, want 1", cfg.GetMaxNumObjects())
	}
	if cfg.GetSolver() != SolverILP {
		t.Errorf("GetSolver() = %q, want %q", cfg.GetSolver(), SolverILP)
	}
	if cfg.GetLearningEpochs() != 200 {
		t.Errorf("GetLearningEpochs() = %d, want 200", cfg.GetLearningEpochs())
	}
	if cfg.GetLearningRate() != 0.1 {
		t.Errorf("GetLearningRate() = %f, want 0.1", cfg.GetLearningRate())
	}
	if cfg.GetBruteForceMaxVariables() != 24 {
		t.Errorf("GetBruteForceMaxVariables() = %d, want 24", cfg.GetBruteForceMaxVariables())
	}
}

// loadDefaultsFile finds the canonical defaults file from the package
// directory or the repository root.
func loadDefaultsFile(t *testing.T) *Settings {
	t.Helper()
	for _, path := range []string{DefaultConfigPath, "../../" + DefaultConfigPath} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := LoadSettings(path)
		if err != nil {
			t.Fatalf("LoadSettings(%q): %v", path, err)
		}
		return cfg
	}
	t.Fatalf("cannot find %s", DefaultConfigPath)
	return nil
}

func TestDefaultSettingsMatchesDefaultsFile(t *testing.T) {
	if diff := cmp.Diff(DefaultSettings(), loadDefaultsFile(t)); diff != "" {
		t.Errorf("%s differs from built-in defaults (-built-in +file):\n%s", DefaultConfigPath, diff)
	}
}

func TestLoadSettings(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "settings.json")

	testJSON := `{
  "states_share_weights": true,
  "max_num_objects": 2,
  "solver": "bruteforce",
  "learning_epochs": 50
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadSettings(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.GetStatesShareWeights() {
		t.Error("Expected states_share_weights true")
	}
	if cfg.GetMaxNumObjects() != 2 {
		t.Errorf("Expected max_num_objects 2, got %d", cfg.GetMaxNumObjects())
	}
	if cfg.GetSolver() != SolverBruteForce {
		t.Errorf("Expected solver bruteforce, got %q", cfg.GetSolver())
	}
	if cfg.GetLearningEpochs() != 50 {
		t.Errorf("Expected learning_epochs 50, got %d", cfg.GetLearningEpochs())
	}
	// Omitted fields fall back to defaults.
	if cfg.GetLearningRate() != 0.1 {
		t.Errorf("Expected default learning_rate 0.1, got %f", cfg.GetLearningRate())
	}
}

func TestLoadSettings_Rejects(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"wrong extension", "settings.yaml", `{}`, ".json extension"},
		{"bad json", "bad.json", `{"solver": `, "failed to parse"},
		{"unknown solver", "solver.json", `{"solver": "cplex"}`, "unknown solver"},
		{"zero objects", "objects.json", `{"max_num_objects": 0}`, "max_num_objects"},
		{"negative rate", "rate.json", `{"learning_rate": -1}`, "learning_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := LoadSettings(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadSettings_MissingFile(t *testing.T) {
	if _, err := LoadSettings(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestMerge(t *testing.T) {
	base := DefaultSettings()
	override := &Settings{
		StatesShareWeights: ptrBool(true),
		LearningEpochs:     ptrInt(7),
	}

	merged := base.Merge(override)
	if !merged.GetStatesShareWeights() {
		t.Error("override states_share_weights not applied")
	}
	if merged.GetLearningEpochs() != 7 {
		t.Errorf("override learning_epochs not applied, got %d", merged.GetLearningEpochs())
	}
	if merged.GetSolver() != base.GetSolver() {
		t.Errorf("unset override field changed solver to %q", merged.GetSolver())
	}
	// The receiver is untouched.
	if base.GetStatesShareWeights() {
		t.Error("Merge mutated the receiver")
	}

	if got := base.Merge(nil); got == base || got.GetSolver() != base.GetSolver() {
		t.Error("Merge(nil) should return an equal copy")
	}
}

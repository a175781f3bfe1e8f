// Package config loads the model and solver settings used by hypotrack.
//
// Settings are read from a flat JSON object. Every field is optional: the
// Get* accessors fall back to the built-in defaults, so partial files and
// the "settings" object embedded in a hypothesis graph file are both safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/hypotrack.defaults.json"

// Solver backends understood by the command line tool.
const (
	SolverILP        = "ilp"
	SolverBruteForce = "bruteforce"
)

// Settings is the root configuration object.
type Settings struct {
	// Model params
	StatesShareWeights *bool `json:"states_share_weights,omitempty"`
	MaxNumObjects      *int  `json:"max_num_objects,omitempty"`

	// Inference params
	Solver                 *string  `json:"solver,omitempty"`
	ILPTolerance           *float64 `json:"ilp_tolerance,omitempty"`
	ILPMaxNodes            *int     `json:"ilp_max_nodes,omitempty"`
	BruteForceMaxVariables *int     `json:"bruteforce_max_variables,omitempty"`

	// Learning params
	LearningEpochs    *int     `json:"learning_epochs,omitempty"`
	LearningRate      *float64 `json:"learning_rate,omitempty"`
	Regularization    *float64 `json:"regularization,omitempty"`
	LossWeight        *float64 `json:"loss_weight,omitempty"`
	LearningTolerance *float64 `json:"learning_tolerance,omitempty"`
	InitialWeight     *float64 `json:"initial_weight,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptySettings returns Settings with all fields set to nil.
func EmptySettings() *Settings {
	return &Settings{}
}

// DefaultSettings returns Settings with every field populated from the
// built-in defaults.
func DefaultSettings() *Settings {
	s := EmptySettings()
	return &Settings{
		StatesShareWeights:     ptrBool(s.GetStatesShareWeights()),
		MaxNumObjects:          ptrInt(s.GetMaxNumObjects()),
		Solver:                 ptrString(s.GetSolver()),
		ILPTolerance:           ptrFloat64(s.GetILPTolerance()),
		ILPMaxNodes:            ptrInt(s.GetILPMaxNodes()),
		BruteForceMaxVariables: ptrInt(s.GetBruteForceMaxVariables()),
		LearningEpochs:         ptrInt(s.GetLearningEpochs()),
		LearningRate:           ptrFloat64(s.GetLearningRate()),
		Regularization:         ptrFloat64(s.GetRegularization()),
		LossWeight:             ptrFloat64(s.GetLossWeight()),
		LearningTolerance:      ptrFloat64(s.GetLearningTolerance()),
		InitialWeight:          ptrFloat64(s.GetInitialWeight()),
	}
}

// LoadSettings loads Settings from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadSettings(path string) (*Settings, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings decodes and validates a settings JSON object.
func ParseSettings(data []byte) (*Settings, error) {
	cfg := EmptySettings()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Merge returns a copy of c with every field that is set in override
// replacing the value from c. A nil override returns a copy of c.
func (c *Settings) Merge(override *Settings) *Settings {
	out := *c
	if override == nil {
		return &out
	}
	if override.StatesShareWeights != nil {
		out.StatesShareWeights = override.StatesShareWeights
	}
	if override.MaxNumObjects != nil {
		out.MaxNumObjects = override.MaxNumObjects
	}
	if override.Solver != nil {
		out.Solver = override.Solver
	}
	if override.ILPTolerance != nil {
		out.ILPTolerance = override.ILPTolerance
	}
	if override.ILPMaxNodes != nil {
		out.ILPMaxNodes = override.ILPMaxNodes
	}
	if override.BruteForceMaxVariables != nil {
		out.BruteForceMaxVariables = override.BruteForceMaxVariables
	}
	if override.LearningEpochs != nil {
		out.LearningEpochs = override.LearningEpochs
	}
	if override.LearningRate != nil {
		out.LearningRate = override.LearningRate
	}
	if override.Regularization != nil {
		out.Regularization = override.Regularization
	}
	if override.LossWeight != nil {
		out.LossWeight = override.LossWeight
	}
	if override.LearningTolerance != nil {
		out.LearningTolerance = override.LearningTolerance
	}
	if override.InitialWeight != nil {
		out.InitialWeight = override.InitialWeight
	}
	return &out
}

// Validate checks that the configuration values are valid.
func (c *Settings) Validate() error {
	if c.MaxNumObjects != nil && *c.MaxNumObjects < 1 {
		return fmt.Errorf("max_num_objects must be at least 1, got %d", *c.MaxNumObjects)
	}
	if c.Solver != nil {
		switch *c.Solver {
		case SolverILP, SolverBruteForce:
		default:
			return fmt.Errorf("unknown solver %q (want %q or %q)", *c.Solver, SolverILP, SolverBruteForce)
		}
	}
	if c.ILPTolerance != nil && *c.ILPTolerance <= 0 {
		return fmt.Errorf("ilp_tolerance must be positive, got %g", *c.ILPTolerance)
	}
	if c.ILPMaxNodes != nil && *c.ILPMaxNodes < 1 {
		return fmt.Errorf("ilp_max_nodes must be at least 1, got %d", *c.ILPMaxNodes)
	}
	if c.BruteForceMaxVariables != nil && *c.BruteForceMaxVariables < 1 {
		return fmt.Errorf("bruteforce_max_variables must be at least 1, got %d", *c.BruteForceMaxVariables)
	}
	if c.LearningEpochs != nil && *c.LearningEpochs < 1 {
		return fmt.Errorf("learning_epochs must be at least 1, got %d", *c.LearningEpochs)
	}
	if c.LearningRate != nil && *c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %g", *c.LearningRate)
	}
	if c.Regularization != nil && *c.Regularization < 0 {
		return fmt.Errorf("regularization must be non-negative, got %g", *c.Regularization)
	}
	if c.LossWeight != nil && *c.LossWeight < 0 {
		return fmt.Errorf("loss_weight must be non-negative, got %g", *c.LossWeight)
	}
	if c.LearningTolerance != nil && *c.LearningTolerance < 0 {
		return fmt.Errorf("learning_tolerance must be non-negative, got %g", *c.LearningTolerance)
	}
	return nil
}

// GetStatesShareWeights returns the states_share_weights value or the default.
func (c *Settings) GetStatesShareWeights() bool {
	if c.StatesShareWeights == nil {
		return false // default
	}
	return *c.StatesShareWeights
}

// GetMaxNumObjects returns the max_num_objects value or the default.
func (c *Settings) GetMaxNumObjects() int {
	if c.MaxNumObjects == nil {
		return 1 // default
	}
	return *c.MaxNumObjects
}

// GetSolver returns the solver backend name or the default.
func (c *Settings) GetSolver() string {
	if c.Solver == nil || *c.Solver == "" {
		return SolverILP // default
	}
	return *c.Solver
}

// GetILPTolerance returns the ilp_tolerance value or the default.
func (c *Settings) GetILPTolerance() float64 {
	if c.ILPTolerance == nil {
		return 1e-9 // default
	}
	return *c.ILPTolerance
}

// GetILPMaxNodes returns the ilp_max_nodes value or the default.
func (c *Settings) GetILPMaxNodes() int {
	if c.ILPMaxNodes == nil {
		return 100000 // default
	}
	return *c.ILPMaxNodes
}

// GetBruteForceMaxVariables returns the bruteforce_max_variables value or the default.
func (c *Settings) GetBruteForceMaxVariables() int {
	if c.BruteForceMaxVariables == nil {
		return 24 // default
	}
	return *c.BruteForceMaxVariables
}

// GetLearningEpochs returns the learning_epochs value or the default.
func (c *Settings) GetLearningEpochs() int {
	if c.LearningEpochs == nil {
		return 200 // default
	}
	return *c.LearningEpochs
}

// GetLearningRate returns the learning_rate value or the default.
func (c *Settings) GetLearningRate() float64 {
	if c.LearningRate == nil {
		return 0.1 // default
	}
	return *c.LearningRate
}

// GetRegularization returns the regularization value or the default.
func (c *Settings) GetRegularization() float64 {
	if c.Regularization == nil {
		return 0.01 // default
	}
	return *c.Regularization
}

// GetLossWeight returns the loss_weight value or the default.
func (c *Settings) GetLossWeight() float64 {
	if c.LossWeight == nil {
		return 1.0 // default
	}
	return *c.LossWeight
}

// GetLearningTolerance returns the learning_tolerance value or the default.
func (c *Settings) GetLearningTolerance() float64 {
	if c.LearningTolerance == nil {
		return 1e-6 // default
	}
	return *c.LearningTolerance
}

// GetInitialWeight returns the initial_weight value or the default.
func (c *Settings) GetInitialWeight() float64 {
	if c.InitialWeight == nil {
		return 0 // default
	}
	return *c.InitialWeight
}

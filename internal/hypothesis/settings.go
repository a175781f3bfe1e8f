package hypothesis

import "github.com/banshee-data/hypotrack/internal/config"

// Settings control the shape of the optimization problem.
type Settings struct {
	// StatesShareWeights uses one weight per feature for all states instead
	// of a separate weight per feature and state.
	StatesShareWeights bool
	// MaxNumObjects is the largest number of objects one detection may
	// represent; detection variables have MaxNumObjects+1 states.
	MaxNumObjects int
	// InitialWeight seeds every entry of the weight vector before learning.
	InitialWeight float64
}

// DefaultSettings returns binary detections with per-state weights.
func DefaultSettings() Settings {
	return Settings{MaxNumObjects: 1}
}

// SettingsFromConfig builds model Settings from loaded configuration.
func SettingsFromConfig(cfg *config.Settings) Settings {
	return Settings{
		StatesShareWeights: cfg.GetStatesShareWeights(),
		MaxNumObjects:      cfg.GetMaxNumObjects(),
		InitialWeight:      cfg.GetInitialWeight(),
	}
}

func (s Settings) detectionStates() int {
	if s.MaxNumObjects < 1 {
		return 2
	}
	return s.MaxNumObjects + 1
}

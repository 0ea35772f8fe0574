package models

// Enums represents the enum vocabularies used by the API.
type Enums struct {
	TransportModes []string `json:"transport_modes"`
	Preferences    []string `json:"preferences"`
	AlertEffects   []string `json:"alert_effects"`
	EffortLevels   []string `json:"effort_levels"`
}

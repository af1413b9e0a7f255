package camera

// Preset names for common capture resolutions.
const (
	PresetDefault = "default"
	PresetLow     = "low"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLow:     LowConfig(),
		Preset720p:    DefaultConfig(),
		Preset1080p:   HD1080Config(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{PresetDefault, PresetLow, Preset720p, Preset1080p}
}

// GetPreset returns a preset config by name with the given device, or
// nil if the name is unknown.
func GetPreset(name string, device int) *Config {
	cfg, ok := Presets()[name]
	if !ok {
		return nil
	}
	cfg.Device = device
	return &cfg
}

// LowConfig returns 640x480 at 15 FPS, for slow USB cameras.
func LowConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	cfg.Framerate = 15
	return cfg
}

// HD1080Config returns 1080p.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	return cfg
}

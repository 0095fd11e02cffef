package scan

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnknownPreset is returned for a preset name the caller may not use
var ErrUnknownPreset = errors.New("unknown scan preset")

var presets = map[string]time.Duration{
	"1day":  24 * time.Hour,
	"3days": 3 * 24 * time.Hour,
	"7days": 7 * 24 * time.Hour,
}

// admin-only ranges
var adminPresets = map[string]time.Duration{
	"2hours": 2 * time.Hour,
	"30days": 30 * 24 * time.Hour,
}

// PresetDuration returns the lookback of a named preset
func PresetDuration(name string, admin bool) (time.Duration, error) {
	if d, ok := presets[name]; ok {
		return d, nil
	}
	if d, ok := adminPresets[name]; ok && admin {
		return d, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

// PresetNames lists the presets available to a caller, shortest first
func PresetNames(admin bool) []string {
	durations := make(map[string]time.Duration, len(presets)+len(adminPresets))
	for name, d := range presets {
		durations[name] = d
	}
	if admin {
		for name, d := range adminPresets {
			durations[name] = d
		}
	}
	names := make([]string, 0, len(durations))
	for name := range durations {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return durations[names[i]] < durations[names[j]] })
	return names
}

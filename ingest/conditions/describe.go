// Package conditions derives the canonical description of a data-taking condition.
// The description is the dedup key of condition records.
package conditions

import (
	"sort"
	"strconv"
	"strings"
)

// Condition parameter names
const (
	BeamEnergy    = "BeamEnergy"
	VeloPosition  = "VeloPosition"
	MagneticField = "MagneticField"

	statusSuffix = "Status"
)

// Describe builds Beam<E>GeV-Velo<Pos>-Mag<Polarity>[-Excl-<det>-<det>...] from the beam,
// VELO and magnet parameters plus every subdetector *Status not reported as included.
// Without any of the beam, VELO or magnet parameters it falls back to the sorted
// key=value pairs joined by "-".
func Describe(params map[string]string) string {
	energy, hasEnergy := params[BeamEnergy]
	velo, hasVelo := params[VeloPosition]
	mag, hasMag := params[MagneticField]
	if !hasEnergy && !hasVelo && !hasMag {
		return fallback(params)
	}

	var parts []string
	if hasEnergy {
		parts = append(parts, "Beam"+formatEnergy(energy)+"GeV")
	}
	if hasVelo {
		parts = append(parts, "Velo"+title(velo))
	}
	if hasMag {
		parts = append(parts, "Mag"+polarity(mag))
	}

	if excluded := excludedDetectors(params); len(excluded) > 0 {
		parts = append(parts, "Excl")
		parts = append(parts, excluded...)
	}
	return strings.Join(parts, "-")
}

func formatEnergy(raw string) string {
	raw = strings.TrimSpace(raw)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func polarity(raw string) string {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "up":
		return "Up"
	case "down":
		return "Down"
	case "off":
		return "Off"
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return title(raw)
	}
	switch {
	case f > 0:
		return "Up"
	case f < 0:
		return "Down"
	default:
		return "Off"
	}
}

func title(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func included(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "IN", "INCLUDED":
		return true
	}
	return false
}

func excludedDetectors(params map[string]string) []string {
	var dets []string
	for key, value := range params {
		if !strings.HasSuffix(key, statusSuffix) || key == statusSuffix {
			continue
		}
		if included(value) {
			continue
		}
		dets = append(dets, strings.TrimSuffix(key, statusSuffix))
	}
	sort.Strings(dets)
	return dets
}

func fallback(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + strings.TrimSpace(params[k])
	}
	return strings.Join(pairs, "-")
}

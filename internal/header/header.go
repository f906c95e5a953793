// Package header normalizes heterogeneous instrument metadata into canonical
// fields. Different beamlines store exposure time, monitor counts, and
// transmission under varying key names and units; Parse resolves aliases
// case-insensitively and coerces values into SI-ish canonical form
// (seconds, counts, transmission as a fraction of 1).
package header

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrParse indicates a recognized header field was present but could not be
// coerced to a number.
var ErrParse = errors.New("header parse error")

// Canonical field names reported by Header.Missing and accepted by Require.
const (
	FieldExposureTime = "exposure_time"
	FieldMonitor      = "monitor_counts"
	FieldTransmission = "transmission"
	FieldThickness    = "thickness"
	FieldTemperature  = "temperature"
)

// Header holds canonical instrument metadata. Nil pointer means the field
// was absent from the raw mapping; absence is not an error unless the
// caller requires the field.
type Header struct {
	ExposureTime  *float64 // seconds
	MonitorCounts *float64 // beam monitor counts (I0)
	Transmission  *float64 // fraction in (0,1]
	Thickness     *float64 // cm
	Temperature   *float64 // degrees Celsius
}

// Missing lists the canonical fields not present in the header.
func (h Header) Missing() []string {
	var out []string
	if h.ExposureTime == nil {
		out = append(out, FieldExposureTime)
	}
	if h.MonitorCounts == nil {
		out = append(out, FieldMonitor)
	}
	if h.Transmission == nil {
		out = append(out, FieldTransmission)
	}
	if h.Thickness == nil {
		out = append(out, FieldThickness)
	}
	if h.Temperature == nil {
		out = append(out, FieldTemperature)
	}
	return out
}

// Require returns an error naming the first of the given canonical fields
// that is absent.
func (h Header) Require(fields ...string) error {
	present := map[string]bool{
		FieldExposureTime: h.ExposureTime != nil,
		FieldMonitor:      h.MonitorCounts != nil,
		FieldTransmission: h.Transmission != nil,
		FieldThickness:    h.Thickness != nil,
		FieldTemperature:  h.Temperature != nil,
	}
	for _, f := range fields {
		if !present[f] {
			return fmt.Errorf("required header field %q is missing", f)
		}
	}
	return nil
}

var floatPattern = regexp.MustCompile(`[-+]?\d*\.?\d+(?:[eE][-+]?\d+)?`)

// field alias tables. Short aliases in the exact-only sets match complete
// keys only; substring matching on them would be far too permissive.
var (
	exposureAliases     = []string{"exposuretime", "counttime", "acqtime", "exposure", "time"}
	monitorAliases      = []string{"monitor", "beammonitor", "ionchamber", "mon", "i0", "flux"}
	transmissionAliases = []string{"sampletransmission", "transmission", "trans", "abs"}
	thicknessAliases    = []string{"samplethickness", "thickness", "pathlength"}
	temperatureAliases  = []string{"sampletemperature", "temperature", "temp"}

	exposureExactOnly     = map[string]bool{"time": true}
	monitorExactOnly      = map[string]bool{"mon": true, "i0": true}
	transmissionExactOnly = map[string]bool{"abs": true}
	thicknessExactOnly    = map[string]bool{}
	temperatureExactOnly  = map[string]bool{"temp": true}
)

// normKey lowercases a raw key and strips separators so that
// "Exposure_Time", "exposure-time", and "ExposureTime" all compare equal.
func normKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}

// extractFloat pulls the first numeric token out of a raw value, tolerating
// decimal commas ("1,5" -> 1.5) and unit suffixes ("0.85 s").
func extractFloat(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	m := floatPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// lookup resolves one canonical field against the normalized metadata map.
// Exact matches win; then prefix/suffix matches; then substring matches for
// aliases long enough to be unambiguous.
func lookup(meta map[string]string, aliases []string, exactOnly map[string]bool) (raw, key string, ok bool) {
	for _, a := range aliases {
		if v, found := meta[a]; found {
			return v, a, true
		}
	}
	// The fuzzy passes scan metadata keys in sorted order so that resolution
	// is deterministic when several raw keys match the same alias.
	keys := make([]string, 0, len(meta))
	for mk := range meta {
		keys = append(keys, mk)
	}
	sort.Strings(keys)
	for _, mk := range keys {
		for _, a := range aliases {
			if exactOnly[a] {
				continue
			}
			if strings.HasPrefix(mk, a) || strings.HasSuffix(mk, a) {
				return meta[mk], mk, true
			}
		}
	}
	for _, mk := range keys {
		for _, a := range aliases {
			if exactOnly[a] || len(a) < 6 {
				continue
			}
			if strings.Contains(mk, a) {
				return meta[mk], mk, true
			}
		}
	}
	return "", "", false
}

// Parse resolves canonical fields from an arbitrary raw key/value mapping.
// It is a pure function of its input. A field that is absent is simply left
// nil; a field that is present but not numeric fails with ErrParse.
//
// Unit coercions applied:
//   - exposure time tagged "ms"/"us" in key or value converts to seconds;
//   - transmission given in percent (explicit "%"/"pct"/"percent" hint, or
//     a bare value in (2,100]) converts to a fraction.
func Parse(raw map[string]string) (Header, error) {
	meta := make(map[string]string, len(raw))
	for k, v := range raw {
		if nk := normKey(k); nk != "" {
			meta[nk] = strings.TrimSpace(v)
		}
	}

	var h Header

	if rawV, key, ok := lookup(meta, exposureAliases, exposureExactOnly); ok {
		v, numOK := extractFloat(rawV)
		if !numOK {
			return Header{}, fmt.Errorf("%w: exposure time %q (key %q) is not numeric", ErrParse, rawV, key)
		}
		tag := strings.ToLower(key + " " + rawV)
		switch {
		case strings.Contains(tag, "us"):
			v /= 1e6
		case strings.Contains(tag, "ms"):
			v /= 1e3
		}
		h.ExposureTime = &v
	}

	if rawV, key, ok := lookup(meta, monitorAliases, monitorExactOnly); ok {
		v, numOK := extractFloat(rawV)
		if !numOK {
			return Header{}, fmt.Errorf("%w: monitor counts %q (key %q) is not numeric", ErrParse, rawV, key)
		}
		h.MonitorCounts = &v
	}

	if rawV, key, ok := lookup(meta, transmissionAliases, transmissionExactOnly); ok {
		v, numOK := extractFloat(rawV)
		if !numOK {
			return Header{}, fmt.Errorf("%w: transmission %q (key %q) is not numeric", ErrParse, rawV, key)
		}
		v = normalizeTransmission(v, rawV, key)
		h.Transmission = &v
	}

	if rawV, key, ok := lookup(meta, thicknessAliases, thicknessExactOnly); ok {
		v, numOK := extractFloat(rawV)
		if !numOK {
			return Header{}, fmt.Errorf("%w: thickness %q (key %q) is not numeric", ErrParse, rawV, key)
		}
		h.Thickness = &v
	}

	if rawV, key, ok := lookup(meta, temperatureAliases, temperatureExactOnly); ok {
		v, numOK := extractFloat(rawV)
		if !numOK {
			return Header{}, fmt.Errorf("%w: temperature %q (key %q) is not numeric", ErrParse, rawV, key)
		}
		h.Temperature = &v
	}

	return h, nil
}

// normalizeTransmission maps percent-style transmission values onto the
// (0,1] fraction scale. An explicit percent hint in the raw value or key
// always triggers division by 100; otherwise values in (2,100] are assumed
// to be percentages, since a physical transmission fraction never exceeds 1.
func normalizeTransmission(t float64, raw, key string) float64 {
	rawL := strings.ToLower(raw)
	keyL := normKey(key)
	hasHint := strings.Contains(rawL, "%") ||
		strings.Contains(rawL, "percent") || strings.Contains(rawL, "pct") ||
		strings.Contains(keyL, "percent") || strings.Contains(keyL, "pct")
	if hasHint {
		return t / 100.0
	}
	if t > 2.0 && t <= 100.0 {
		return t / 100.0
	}
	return t
}

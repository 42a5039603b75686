package utils

import "strings"

// Upstox-style instrument keys look like "NSE_INDEX|Nifty 50" or
// "NSE_FO|54321" — an exchange segment and an identifier separated by '|'.

// NiftyIndexKey is the default underlying for the engine.
const NiftyIndexKey = "NSE_INDEX|Nifty 50"

// SplitInstrumentKey returns the segment and identifier of a key.
// Keys without a separator are returned as ("", key).
func SplitInstrumentKey(key string) (segment, id string) {
	if i := strings.IndexByte(key, '|'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

// InstrumentSymbol returns a display symbol for an instrument key:
// the identifier part with spaces collapsed ("Nifty 50" → "NIFTY50").
func InstrumentSymbol(key string) string {
	_, id := SplitInstrumentKey(key)
	return strings.ToUpper(strings.ReplaceAll(id, " ", ""))
}

// IsDerivativeKey reports whether the key belongs to the F&O segment.
func IsDerivativeKey(key string) bool {
	seg, _ := SplitInstrumentKey(key)
	return strings.HasSuffix(seg, "_FO")
}

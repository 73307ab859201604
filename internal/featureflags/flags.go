package featureflags

import (
	"os"
	"strings"
)

// HostFallback forces the non-production host fallback table on outside
// development (e.g. for preview deployments).
const HostFallback = "host_fallback"

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes/on (case-insensitive).
func Enabled(name string) bool {
	on, _ := Lookup(name)
	return on
}

// Lookup reports the flag value and whether the variable was set at all.
func Lookup(name string) (on bool, set bool) {
	v, ok := os.LookupEnv(envName(name))
	if !ok || v == "" {
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, true
	default:
		return false, true
	}
}

func envName(name string) string {
	return "FLAG_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

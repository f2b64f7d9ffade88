package config

import "strings"

// envMappings maps EXFIL_-stripped, lower-cased environment variable names
// to their koanf dotted path, for the handful of fields that live under a
// nested section.
var envMappings = map[string]string{
	"suppressions_allowed_external_domains": "suppressions.allowed_external_domains",
	"severity_overrides_sensitive_labels":   "severity_overrides.sensitive_labels",
}

// envTransformFunc transforms raw EXFIL_-prefixed environment variable
// names into koanf config paths, e.g. EXFIL_REDIS_URL -> redis_url,
// EXFIL_SUPPRESSIONS_ALLOWED_EXTERNAL_DOMAINS -> suppressions.allowed_external_domains.
func envTransformFunc(raw string) string {
	key := strings.ToLower(strings.TrimPrefix(raw, EnvPrefix))
	key = strings.ToLower(strings.TrimPrefix(key, strings.ToLower(EnvPrefix)))
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return key
}

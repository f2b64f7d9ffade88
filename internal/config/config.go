// Package config defines the engine's Configuration external interface:
// a layered koanf load (struct defaults, then an optional YAML file, then
// environment variables) validated with go-playground/validator.
package config

// Config is the top-level configuration object. Field names mirror the
// JSON/YAML keys named in the Configuration external interface.
type Config struct {
	ServiceAccountPath string `koanf:"service_account_path" validate:"required"`
	DelegatedUser       string `koanf:"delegated_user" validate:"required,email"`
	CustomerID          string `koanf:"customer_id"`
	Timezone            string `koanf:"timezone" validate:"required"`

	// RedisURL, when set, selects the durable ReconStore backend. Empty
	// keeps the in-process default.
	RedisURL string `koanf:"redis_url"`

	CanaryDocIDs []string `koanf:"canary_doc_ids"`

	Suppressions         SuppressionsConfig `koanf:"suppressions"`
	PartnerDomains       []string           `koanf:"partner_domains"`
	SeverityOverrides    SeverityOverrides  `koanf:"severity_overrides"`
	HighRiskFolders      []string           `koanf:"high_risk_folders"`

	// ReconActivityFile and EgressActivityFile select the reference
	// FileSource ActivitySource adapter: captured activities.list JSON
	// responses replayed from disk. A production deployment replaces
	// this with a paginated Admin SDK Reports API client behind the
	// same ingest.Source interface; authentication and pagination are
	// outside the correlation engine's scope.
	ReconActivityFile  string `koanf:"recon_activity_file" validate:"required"`
	EgressActivityFile string `koanf:"egress_activity_file" validate:"required"`

	// FileMetadataFile, when set, selects the reference FileSource
	// FileMetadataSource adapter. Empty disables file-context enrichment.
	FileMetadataFile string `koanf:"file_metadata_file"`
}

// SuppressionsConfig lists destinations the IntentClassifier treats as trusted.
type SuppressionsConfig struct {
	AllowedExternalDomains []string `koanf:"allowed_external_domains"`
}

// SeverityOverrides lists document labels the FileContextEnricher treats as
// automatically sensitivity=high.
type SeverityOverrides struct {
	SensitiveLabels []string `koanf:"sensitive_labels"`
}

// DefaultConfig returns the struct-default layer consumed by LoadWithKoanf
// before the file and environment layers are applied on top.
func DefaultConfig() *Config {
	return &Config{
		CustomerID: "my_customer",
		Timezone:   "UTC",
	}
}

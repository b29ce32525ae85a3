package settings

// SettingDefaults holds all default values for configurable settings
var SettingDefaults = map[string]interface{}{
	// Gateway credentials (empty until configured via API or env)
	"gateway_api_key": "",

	// Capability tokens for protected endpoints
	"operator_token":   "",
	"governance_token": "",

	// S3 offsite backup settings
	"s3_endpoint":              "",      // S3-compatible endpoint URL
	"s3_access_key_id":         "",      // S3 access key ID
	"s3_secret_access_key":     "",      // S3 secret access key
	"s3_bucket_name":           "",      // S3 bucket name
	"s3_backup_enabled":        0.0,     // 1.0 = enabled, 0.0 = disabled
	"s3_backup_schedule":       "daily", // Backup schedule: "daily", "weekly", or "monthly"
	"s3_backup_retention_days": 90.0,    // Days to keep backups (0 = keep forever)

	// Venue telemetry settings
	"telemetry_poll_minutes":       5.0,  // Feed polling interval
	"telemetry_smoothing_window":   12.0, // Observations per smoothed rate sample
	"telemetry_use_ema":            0.0,  // 1.0 = exponential smoothing, 0.0 = simple average
	"telemetry_risk_window":        24.0, // Observations per risk score sample
	"telemetry_max_sample_age_sec": 21600.0,

	// Keeper job intervals
	"job_harvest_probe_minutes": 10.0, // How often the keeper checks shouldHarvest
	"job_epoch_probe_minutes":   30.0, // How often the keeper checks epoch readiness
	"job_maintenance_hour":      3.0,  // Daily maintenance hour (0-23)

	// Display formatting
	"display_decimals": 4.0, // Decimal places for human-readable amounts
}

// StringSettings defines which settings should be treated as strings rather than floats
var StringSettings = map[string]bool{
	"gateway_api_key":      true,
	"operator_token":       true,
	"governance_token":     true,
	"s3_endpoint":          true,
	"s3_access_key_id":     true,
	"s3_secret_access_key": true,
	"s3_bucket_name":       true,
	"s3_backup_schedule":   true,
}

// SettingDescriptions holds human-readable descriptions for all settings
var SettingDescriptions = map[string]string{
	"gateway_api_key":  "API key for the chain gateway. Takes precedence over the GATEWAY_API_KEY environment variable when set.",
	"operator_token":   "Bearer token required for operator endpoints (harvest, yield loop). Takes precedence over OPERATOR_TOKEN when set.",
	"governance_token": "Bearer token required for governance endpoints (parameters, partners, pause). Takes precedence over GOVERNANCE_TOKEN when set.",

	"s3_backup_enabled":        "Enable nightly offsite database backups to S3-compatible storage (1.0 = yes, 0.0 = no)",
	"s3_backup_schedule":       "Offsite backup cadence: daily, weekly, or monthly",
	"s3_backup_retention_days": "Days to keep offsite backups before rotation (0 = keep forever, minimum 3 backups always retained)",

	"telemetry_poll_minutes":     "Minutes between venue telemetry polls (user-configurable keeper interval)",
	"telemetry_smoothing_window": "Number of recent observations averaged into a smoothed venue rate",
	"telemetry_use_ema":          "Use exponential instead of simple moving average for venue rate smoothing (1.0 = yes)",
	"telemetry_risk_window":      "Number of recent observations used to derive a venue risk score",

	"job_harvest_probe_minutes": "Minutes between keeper checks of the harvest threshold (user-configurable)",
	"job_epoch_probe_minutes":   "Minutes between keeper checks of treasury epoch readiness (user-configurable)",
	"job_maintenance_hour":      "Hour of day (0-23) for daily database maintenance",
}

// SettingUpdate represents a setting value update request
type SettingUpdate struct {
	Value interface{} `json:"value"`
}

// CacheStats represents cache database statistics
type CacheStats struct {
	JobHistory JobHistoryStats `json:"job_history"`
}

// JobHistoryStats represents job history table statistics
type JobHistoryStats struct {
	Entries int `json:"entries"`
	Pruned  int `json:"pruned"`
}

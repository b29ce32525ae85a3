package settings

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// Service provides typed access to application settings.
// Values are stored as strings in config.db; the service converts them
// to the type implied by SettingDefaults (string or float64) on the way out.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new settings service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "settings").Logger(),
	}
}

// Get retrieves a single setting, falling back to its default when unset.
// Returns nil for unknown keys.
func (s *Service) Get(key string) (interface{}, error) {
	defaultValue, known := SettingDefaults[key]

	raw, err := s.repo.Get(key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		if !known {
			return nil, nil
		}
		return defaultValue, nil
	}

	return s.coerce(key, *raw), nil
}

// GetAll returns every known setting merged with stored overrides.
// Stored values for unknown keys are included as raw strings so nothing
// silently disappears from the API after a key is retired.
func (s *Service) GetAll() (map[string]interface{}, error) {
	stored, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}

	result := make(map[string]interface{}, len(SettingDefaults))
	for key, defaultValue := range SettingDefaults {
		result[key] = defaultValue
	}
	for key, raw := range stored {
		result[key] = s.coerce(key, raw)
	}

	return result, nil
}

// Set stores a setting value.
// Returns true when this write configures the gateway API key for the
// first time, which callers use to trigger the initial telemetry warmup.
func (s *Service) Set(key string, value interface{}) (bool, error) {
	if _, known := SettingDefaults[key]; !known {
		return false, fmt.Errorf("unknown setting: %s", key)
	}

	strValue, err := stringify(key, value)
	if err != nil {
		return false, err
	}

	firstTimeSetup := false
	if key == "gateway_api_key" && strValue != "" {
		previous, err := s.repo.Get(key)
		if err != nil {
			return false, err
		}
		firstTimeSetup = previous == nil || *previous == ""
	}

	var description *string
	if desc, ok := SettingDescriptions[key]; ok {
		description = &desc
	}
	if err := s.repo.Set(key, strValue, description); err != nil {
		return false, fmt.Errorf("failed to set setting %s: %w", key, err)
	}

	s.log.Debug().Str("key", key).Msg("Setting updated")
	return firstTimeSetup, nil
}

// coerce converts a stored string into the type implied by the key
func (s *Service) coerce(key, raw string) interface{} {
	if StringSettings[key] {
		return raw
	}
	if _, known := SettingDefaults[key]; !known {
		return raw
	}

	floatVal, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.log.Warn().
			Str("key", key).
			Str("value", raw).
			Msg("Failed to parse numeric setting, returning raw string")
		return raw
	}
	return floatVal
}

// stringify converts an incoming JSON value into its storage form
func stringify(key string, value interface{}) (string, error) {
	if StringSettings[key] {
		str, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("setting %s expects a string value", key)
		}
		return str, nil
	}

	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case string:
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return "", fmt.Errorf("setting %s expects a numeric value, got %q", key, v)
		}
		return v, nil
	default:
		return "", fmt.Errorf("setting %s has unsupported value type %T", key, value)
	}
}

package config

import "os"

// APIKeySource indicates where a credential was loaded from.
type APIKeySource string

const (
	KeySourceEnv    APIKeySource = "env"
	KeySourceConfig APIKeySource = "config"
	KeySourceNone   APIKeySource = "none"
)

// KeyStatus describes one credential for status display.
type KeyStatus struct {
	Name   string       `json:"name"`
	Source APIKeySource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"` // e.g., "abc...xyz"
}

// CheckAPIKeys returns the status of all broker and provider credentials.
func CheckAPIKeys(cfg *Config) []KeyStatus {
	return []KeyStatus{
		checkKey("Upstox API Key", cfg.Upstox.APIKey, "TRADECORE_UPSTOX_API_KEY"),
		checkKey("Upstox API Secret", cfg.Upstox.APISecret, "TRADECORE_UPSTOX_API_SECRET"),
		checkKey("Upstox Access Token", cfg.Upstox.AccessToken, "TRADECORE_UPSTOX_ACCESS_TOKEN"),
		checkKey("Social API Key", cfg.Social.APIKey, "TRADECORE_SOCIAL_API_KEY"),
	}
}

func checkKey(name, value, envVar string) KeyStatus {
	status := KeyStatus{Name: name}

	if value != "" {
		status.IsSet = true
		if os.Getenv(envVar) != "" {
			status.Source = KeySourceEnv
		} else {
			status.Source = KeySourceConfig
		}
		status.Masked = maskKey(value)
	} else {
		status.Source = KeySourceNone
	}

	return status
}

// maskKey masks a credential for display, showing only first 3 and last 3 chars.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}

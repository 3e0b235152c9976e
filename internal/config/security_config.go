package config

type SecurityConfig interface {
	GetAPIKey() string
	GetAPIKeyHash() string
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetAPIKey is the shared secret protecting the unlock and token endpoints.
func (Security) GetAPIKey() string {
	return GetEnv("API_KEY", "")
}

// GetAPIKeyHash is a bcrypt hash of the API key, preferred over API_KEY so
// the plaintext never sits in the environment.
func (Security) GetAPIKeyHash() string {
	return GetEnv("API_KEY_HASH", "")
}

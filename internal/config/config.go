package config

type Config interface {
	EnvConfig
	VendorConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetRedisURL() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Vendor
	Security
}

func New() Config {
	return mainConfig{}
}

package config

type VendorConfig interface {
	GetAuthBaseURL() string
	GetAPIBaseURL() string
	GetHardwareID() string
	GetVendorUsername() string
	GetIntercomName() string
	GetTokenSeed() string
}

type Vendor struct{}

var _ VendorConfig = Vendor{}

// GetAuthBaseURL is the vendor's OAuth host. Overridable for tests.
func (Vendor) GetAuthBaseURL() string {
	return GetEnv("RING_AUTH_URL", "https://oauth.ring.com")
}

// GetAPIBaseURL is the vendor's device API host. Overridable for tests.
func (Vendor) GetAPIBaseURL() string {
	return GetEnv("RING_API_URL", "https://api.ring.com")
}

// GetHardwareID pins the hardware ID sent with every vendor call. The vendor
// ties refresh tokens to it, so set this when sessions must survive restarts
// on hosts that regenerate state. Empty means a fresh ID per process.
func (Vendor) GetHardwareID() string {
	return GetEnv("RING_HARDWARE_ID", "")
}

// GetVendorUsername prefills the setup form email field.
func (Vendor) GetVendorUsername() string {
	return GetEnv("RING_USERNAME", "")
}

// GetIntercomName optionally pins unlocks to a specific device by name.
func (Vendor) GetIntercomName() string {
	return GetEnv("INTERCOM_NAME", "")
}

// GetTokenSeed is a base64(JSON) session used to prime an empty store at
// startup, for hosts without durable disks.
func (Vendor) GetTokenSeed() string {
	return GetEnv("RING_TOKEN", "")
}

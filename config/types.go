package config

// RPC controls the JSON-RPC listener.
type RPC struct {
	Address string `toml:"Address"`
	// AuthTokenEnv names the environment variable holding the bearer token
	// required by mutating methods.
	AuthTokenEnv string `toml:"AuthTokenEnv"`
	// RateLimit is the sustained requests per second allowed per client.
	RateLimit         float64 `toml:"RateLimit"`
	Burst             int     `toml:"Burst"`
	MaxBodyBytes      int64   `toml:"MaxBodyBytes"`
	ReadHeaderTimeout int     `toml:"ReadHeaderTimeoutSeconds"`
	ReadTimeout       int     `toml:"ReadTimeoutSeconds"`
	WriteTimeout      int     `toml:"WriteTimeoutSeconds"`
	IdleTimeout       int     `toml:"IdleTimeoutSeconds"`
}

// Program carries the charge2earn constants.
type Program struct {
	RegistrationFee uint64 `toml:"RegistrationFee"`
	// FeeRecipient pins the registration fee recipient when set (bech32).
	FeeRecipient string `toml:"FeeRecipient"`
}

type Rent struct {
	UnitsPerByteYear uint64 `toml:"UnitsPerByteYear"`
	ExemptionYears   uint64 `toml:"ExemptionYears"`
}

type Pauses struct {
	Charge2Earn bool `toml:"Charge2Earn"`
}

// Faucet funds development wallets. Limits apply per recipient and epoch.
type Faucet struct {
	Enabled      bool   `toml:"Enabled"`
	MaxRequests  uint32 `toml:"MaxRequests"`
	MaxAmount    uint64 `toml:"MaxAmount"`
	EpochSeconds uint32 `toml:"EpochSeconds"`
}

type Log struct {
	Level      string `toml:"Level"`
	Env        string `toml:"Env"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	// Headers is a comma separated key=value list sent to the collector.
	Headers     string  `toml:"Headers"`
	Metrics     bool    `toml:"Metrics"`
	Traces      bool    `toml:"Traces"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Allocation funds an address at genesis.
type Allocation struct {
	Address string `toml:"Address"`
	Balance uint64 `toml:"Balance"`
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"charge2earn/core/host"
	"charge2earn/crypto"
	"charge2earn/native/charge2earn"
	nativecommon "charge2earn/native/common"
)

type Config struct {
	DataDir string `toml:"DataDir"`
	// IndexerDSN is the sqlite DSN of the history index. Empty means
	// DataDir/index.db.
	IndexerDSN string `toml:"IndexerDSN"`
	// Workers bounds concurrent handler execution within a batch.
	Workers int `toml:"Workers"`

	RPC       RPC          `toml:"rpc"`
	Program   Program      `toml:"program"`
	Rent      Rent         `toml:"rent"`
	Pauses    Pauses       `toml:"pauses"`
	Faucet    Faucet       `toml:"faucet"`
	Log       Log          `toml:"log"`
	Telemetry Telemetry    `toml:"telemetry"`
	Genesis   []Allocation `toml:"genesis"`
}

// Load reads the configuration at path, writing a default file first when
// none exists. Unset fields take their defaults and the result is validated.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration of a fresh local node.
func Default() *Config {
	cfg := &Config{
		DataDir: "./c2e-data",
		Workers: 4,
		RPC: RPC{
			Address:      "127.0.0.1:8545",
			AuthTokenEnv: "C2E_RPC_TOKEN",
			RateLimit:    20,
			Burst:        40,
		},
		Program: Program{RegistrationFee: charge2earn.RegistrationFee},
		Faucet: Faucet{
			MaxRequests:  5,
			MaxAmount:    10 * charge2earn.UnitsPerCoin,
			EpochSeconds: 3600,
		},
		Log: Log{Level: "info", Env: "local"},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	rent := host.DefaultRent()
	if cfg.Rent.UnitsPerByteYear == 0 {
		cfg.Rent.UnitsPerByteYear = rent.UnitsPerByteYear
	}
	if cfg.Rent.ExemptionYears == 0 {
		cfg.Rent.ExemptionYears = rent.ExemptionYears
	}
	if cfg.Program.RegistrationFee == 0 {
		cfg.Program.RegistrationFee = charge2earn.RegistrationFee
	}
	if cfg.RPC.MaxBodyBytes <= 0 {
		cfg.RPC.MaxBodyBytes = 1 << 20
	}
	if cfg.RPC.ReadHeaderTimeout <= 0 {
		cfg.RPC.ReadHeaderTimeout = 5
	}
	if cfg.RPC.ReadTimeout <= 0 {
		cfg.RPC.ReadTimeout = 15
	}
	if cfg.RPC.WriteTimeout <= 0 {
		cfg.RPC.WriteTimeout = 15
	}
	if cfg.RPC.IdleTimeout <= 0 {
		cfg.RPC.IdleTimeout = 60
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Genesis == nil {
		cfg.Genesis = []Allocation{}
	}
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// IndexerPath resolves the sqlite DSN of the history index.
func (c *Config) IndexerPath() string {
	if c.IndexerDSN != "" {
		return c.IndexerDSN
	}
	return filepath.Join(c.DataDir, "index.db")
}

// StatePath is the LevelDB directory of the ledger state.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state")
}

// ProgramParams converts the program section.
func (c *Config) ProgramParams() (charge2earn.Params, error) {
	params := charge2earn.Params{RegistrationFee: c.Program.RegistrationFee}
	if c.Program.FeeRecipient != "" {
		addr, err := crypto.DecodeAddress(c.Program.FeeRecipient)
		if err != nil {
			return params, fmt.Errorf("config: program.FeeRecipient: %w", err)
		}
		params.FeeRecipient = addr
	}
	return params, nil
}

func (c *Config) RentSchedule() host.Rent {
	return host.Rent{UnitsPerByteYear: c.Rent.UnitsPerByteYear, ExemptionYears: c.Rent.ExemptionYears}
}

// PauseView exposes the pause flags keyed by module name.
func (c *Config) PauseView() nativecommon.StaticPauses {
	return nativecommon.StaticPauses{charge2earn.ModuleName: c.Pauses.Charge2Earn}
}

func (c *Config) FaucetQuota() nativecommon.Quota {
	return nativecommon.Quota{
		MaxRequests:  c.Faucet.MaxRequests,
		MaxAmount:    c.Faucet.MaxAmount,
		EpochSeconds: c.Faucet.EpochSeconds,
	}
}

// GenesisAlloc decodes the genesis allocations. Repeated addresses add up.
func (c *Config) GenesisAlloc() (map[common.Address]uint64, error) {
	alloc := make(map[common.Address]uint64, len(c.Genesis))
	for i, entry := range c.Genesis {
		addr, err := crypto.DecodeAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("config: genesis[%d]: %w", i, err)
		}
		sum := alloc[addr] + entry.Balance
		if sum < entry.Balance {
			return nil, fmt.Errorf("config: genesis[%d]: balance overflow for %s", i, entry.Address)
		}
		alloc[addr] = sum
	}
	return alloc, nil
}

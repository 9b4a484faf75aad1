package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/holiman/uint256"
)

// Config represents the runtime configuration of a facility node.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`
	LogFile       string `toml:"LogFile,omitempty"`

	Facility Facility `toml:"Facility"`
	Auth     Auth     `toml:"Auth"`
}

// Facility captures the economic parameters of the credit pool.
type Facility struct {
	LoanAsset      string   `toml:"LoanAsset"`
	DustThreshold  string   `toml:"DustThreshold"`
	CloseTolerance string   `toml:"CloseTolerance"`
	RateTiers      []string `toml:"RateTiers"`
}

// Auth configures operator authentication for the HTTP surface.
type Auth struct {
	JWTSecretEnv string   `toml:"JWTSecretEnv"`
	Issuer       string   `toml:"Issuer"`
	Operators    []string `toml:"Operators"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8430"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./credit-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if strings.TrimSpace(cfg.Facility.LoanAsset) == "" {
		cfg.Facility.LoanAsset = "USD"
	}
	if strings.TrimSpace(cfg.Facility.DustThreshold) == "" {
		cfg.Facility.DustThreshold = "100"
	}
	if strings.TrimSpace(cfg.Facility.CloseTolerance) == "" {
		cfg.Facility.CloseTolerance = "8"
	}
	if len(cfg.Facility.RateTiers) == 0 {
		cfg.Facility.RateTiers = defaultRateTiers()
	}
	if strings.TrimSpace(cfg.Auth.JWTSecretEnv) == "" {
		cfg.Auth.JWTSecretEnv = "CREDITD_JWT_SECRET"
	}
	if strings.TrimSpace(cfg.Auth.Issuer) == "" {
		cfg.Auth.Issuer = "creditd"
	}
	if cfg.Auth.Operators == nil {
		cfg.Auth.Operators = []string{}
	}
}

// Validate checks the configuration for values the engine would reject at
// startup.
func (c *Config) Validate() error {
	if _, err := c.ParsedRateTiers(); err != nil {
		return err
	}
	if _, err := c.ParsedDustThreshold(); err != nil {
		return err
	}
	if _, err := c.ParsedCloseTolerance(); err != nil {
		return err
	}
	return nil
}

// ParsedRateTiers decodes the configured tier table into per-second rates at
// the fixed-point scale. Tier zero must be the no-interest sentinel.
func (c *Config) ParsedRateTiers() ([]*uint256.Int, error) {
	if len(c.Facility.RateTiers) < 2 {
		return nil, fmt.Errorf("facility: rate tier table needs the sentinel plus at least one tier")
	}
	tiers := make([]*uint256.Int, len(c.Facility.RateTiers))
	for i, raw := range c.Facility.RateTiers {
		value, err := uint256.FromDecimal(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("facility: rate tier %d: %w", i, err)
		}
		tiers[i] = value
	}
	return tiers, nil
}

// ParsedDustThreshold decodes the minimum meaningful partial payment.
func (c *Config) ParsedDustThreshold() (*big.Int, error) {
	return parseAmount("facility: DustThreshold", c.Facility.DustThreshold)
}

// ParsedCloseTolerance decodes the residual allowed when closing a defaulted
// debt.
func (c *Config) ParsedCloseTolerance() (*big.Int, error) {
	return parseAmount("facility: CloseTolerance", c.Facility.CloseTolerance)
}

// DatabasePath returns the sqlite file backing the ledger.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "credit.db")
}

// JWTSecret resolves the HMAC secret from the configured environment
// variable.
func (c *Config) JWTSecret() (string, error) {
	secret := strings.TrimSpace(os.Getenv(c.Auth.JWTSecretEnv))
	if secret == "" {
		return "", fmt.Errorf("auth: environment variable %s is empty", c.Auth.JWTSecretEnv)
	}
	return secret, nil
}

func parseAmount(field, raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid amount %q", field, raw)
	}
	return value, nil
}

// defaultRateTiers returns the sentinel plus tiers at roughly one through
// five percent annualized, compounded per second at 1e18 scale.
func defaultRateTiers() []string {
	return []string{
		"1000000000000000000",
		"1000000000315522921",
		"1000000000627937192",
		"1000000000937303470",
		"1000000001243680656",
		"1000000001547125958",
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}

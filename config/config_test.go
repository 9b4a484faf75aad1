package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creditd.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}
	if cfg.ListenAddress != ":8430" {
		t.Fatalf("unexpected listen address: %s", cfg.ListenAddress)
	}
	if cfg.Facility.LoanAsset != "USD" {
		t.Fatalf("unexpected asset: %s", cfg.Facility.LoanAsset)
	}

	tiers, err := cfg.ParsedRateTiers()
	if err != nil {
		t.Fatalf("rate tiers: %v", err)
	}
	if len(tiers) < 2 {
		t.Fatalf("default table too small: %d", len(tiers))
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].Cmp(tiers[i-1]) <= 0 {
			t.Fatalf("default tiers not increasing at %d", i)
		}
	}

	// Loading the persisted file round-trips.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.ListenAddress != cfg.ListenAddress {
		t.Fatalf("round trip changed listen address")
	}
}

func TestLoadParsesFacilitySection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creditd.toml")
	body := `
ListenAddress = ":9000"
DataDir = "/var/lib/credit"
Environment = "prod"

[Facility]
LoanAsset = "EUR"
DustThreshold = "250"
CloseTolerance = "4"
RateTiers = ["1000000000000000000", "1000000000400000000"]

[Auth]
JWTSecretEnv = "TEST_JWT_SECRET"
Issuer = "credit-prod"
Operators = ["ops-1", "ops-2"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Facility.LoanAsset != "EUR" {
		t.Fatalf("unexpected asset: %s", cfg.Facility.LoanAsset)
	}
	dust, err := cfg.ParsedDustThreshold()
	if err != nil {
		t.Fatalf("dust: %v", err)
	}
	if dust.Int64() != 250 {
		t.Fatalf("unexpected dust: %s", dust)
	}
	if cfg.DatabasePath() != "/var/lib/credit/credit.db" {
		t.Fatalf("unexpected database path: %s", cfg.DatabasePath())
	}
	if len(cfg.Auth.Operators) != 2 {
		t.Fatalf("unexpected operators: %v", cfg.Auth.Operators)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"negative dust": `
[Facility]
DustThreshold = "-5"
`,
		"garbled tier": `
[Facility]
RateTiers = ["1000000000000000000", "not-a-number"]
`,
		"lonely sentinel": `
[Facility]
RateTiers = ["1000000000000000000"]
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "creditd.toml")
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected validation failure")
			}
		})
	}
}

func TestJWTSecretFromEnvironment(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Auth.JWTSecretEnv = "CREDIT_TEST_SECRET"

	if _, err := cfg.JWTSecret(); err == nil {
		t.Fatalf("expected error for unset secret")
	}
	t.Setenv("CREDIT_TEST_SECRET", "hunter2")
	secret, err := cfg.JWTSecret()
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	if secret != "hunter2" {
		t.Fatalf("unexpected secret: %s", secret)
	}
}

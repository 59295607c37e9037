package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"daoescrow/native/fees"
)

// Config captures the runtime configuration of the escrow daemon.
type Config struct {
	ListenAddress  string            `toml:"ListenAddress"`
	Environment    string            `toml:"Environment"`
	DataDir        string            `toml:"DataDir"`
	Arbiter        string            `toml:"Arbiter"`
	FeeBasisPoints uint32            `toml:"FeeBasisPoints"`
	LogRequests    bool              `toml:"LogRequests"`
	FactsRetained  int               `toml:"FactsRetained"`
	Tokens         map[string]uint8  `toml:"Tokens"`
	APITokens      map[string]string `toml:"APITokens"`
}

// Load loads the configuration from the given path, writing a commented
// default file on first run.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8081"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "dev"
	}
	if c.FeeBasisPoints == 0 {
		c.FeeBasisPoints = fees.MinBasisPoints
	}
	if !fees.ValidRate(c.FeeBasisPoints) {
		return fmt.Errorf("FeeBasisPoints %d outside [%d, %d]", c.FeeBasisPoints, fees.MinBasisPoints, fees.MaxBasisPoints)
	}
	if !common.IsHexAddress(c.Arbiter) {
		return fmt.Errorf("Arbiter must be a hex address")
	}
	if c.Tokens == nil {
		c.Tokens = map[string]uint8{}
	}
	if c.APITokens == nil {
		c.APITokens = map[string]string{}
	}
	for token, addr := range c.APITokens {
		if strings.TrimSpace(token) == "" {
			return fmt.Errorf("empty API token")
		}
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("API token %q maps to a malformed address", token)
		}
	}
	return nil
}

// ArbiterAddress returns the parsed arbiter identity. Call after Load.
func (c *Config) ArbiterAddress() [20]byte {
	return common.HexToAddress(c.Arbiter)
}

const defaultConfig = `ListenAddress = ":8081"
Environment = "dev"
# Empty DataDir keeps all state in memory.
DataDir = ""
# The DAO multisig address with dispute and fee authority.
Arbiter = "0x0000000000000000000000000000000000000001"
FeeBasisPoints = 50
LogRequests = true
FactsRetained = 256

# Token registry: symbol = fractional-unit precision.
[Tokens]
TOK = 6

# Bearer token -> confirmed caller address.
[APITokens]
"dev-arbiter" = "0x0000000000000000000000000000000000000001"
`

func createDefault(path string) (*Config, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return nil, err
	}
	return Load(path)
}

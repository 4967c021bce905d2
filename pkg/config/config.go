package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// Effective is the merged result of config file, env overrides and flags.
type Effective struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", "env" or combinations
}

// ParseFlags defines and parses command-line flags.
func ParseFlags() Flags {
	addrPtr := flag.String("addr", "127.0.0.1:8090", "query API listen address")
	dbPtr := flag.String("db", "./.vaultgram", "datastore path")
	cfgPtr := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// Load reads and parses the YAML config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolveConfigPath prefers an explicit flag, then the env var, then the
// default path.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if v := os.Getenv("VAULTGRAM_CONFIG"); v != "" {
		return v
	}
	return flagVal
}

// applyEnvOverrides overlays VAULTGRAM_* environment variables onto cfg
// and reports whether any were used.
func applyEnvOverrides(cfg *Config) bool {
	used := false
	if v := os.Getenv("VAULTGRAM_ADDR"); v != "" {
		used = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		}
	}
	if v := os.Getenv("VAULTGRAM_DB_PATH"); v != "" {
		used = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("VAULTGRAM_LOG_LEVEL"); v != "" {
		used = true
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VAULTGRAM_FEED"); v != "" {
		used = true
		cfg.Feed.Source = v
	}
	return used
}

// LoadEffective merges config file, env overrides and flags. Flags win
// over env, env wins over file.
func LoadEffective(flags Flags) (Effective, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	source := "config"
	if err != nil {
		if !os.IsNotExist(err) {
			return Effective{}, err
		}
		cfg = &Config{}
		source = "defaults"
	}
	if applyEnvOverrides(cfg) {
		source += "+env"
	}

	addr := cfg.Addr()
	if flags.Set["addr"] {
		addr = flags.Addr
		source += "+flags"
	}
	dbPath := cfg.Storage.DBPath
	if dbPath == "" || flags.Set["db"] {
		dbPath = flags.DB
	}
	return Effective{Config: cfg, Addr: addr, DBPath: dbPath, Source: source}, nil
}

// Passphrase reads the encryption passphrase from the configured env var.
func (e Effective) Passphrase() string {
	env := e.Config.Security.PassphraseEnv
	if env == "" {
		env = "VAULTGRAM_PASSPHRASE"
	}
	return os.Getenv(env)
}

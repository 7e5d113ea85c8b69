package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// MaxWorkers bounds the hashing worker pool.
const MaxWorkers = 16

// Config is the romba configuration. It is read once at startup and passed
// to constructors; nothing reads it globally.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Workers    int              `toml:"workers"` // 0 = number of CPUs
	DatRoot    string           `toml:"dat_root"`
	Index      IndexConfig      `toml:"index"`
	Depots     []DepotConfig    `toml:"depots"`
	Encryption EncryptionConfig `toml:"encryption"`
	Policy     PolicyConfig     `toml:"policy"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// IndexConfig selects the hash index backend.
type IndexConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// DepotConfig describes one depot. Depots are used in the order listed.
type DepotConfig struct {
	Path    string `toml:"path"`
	MaxSize int64  `toml:"max_size"` // bytes; <= 0 is unbounded
	Online  *bool  `toml:"online,omitempty"`
}

// IsOnline defaults to true when online is not set.
func (d DepotConfig) IsOnline() bool {
	return d.Online == nil || *d.Online
}

// EncryptionConfig holds the age key pair used for index snapshots.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// PolicyConfig holds the defaults of the archive policy flags. Command line
// flags override them.
type PolicyConfig struct {
	OnlyNeeded      bool `toml:"only_needed"`
	NoDB            bool `toml:"no_db"`
	SkipInitialScan bool `toml:"skip_initial_scan"`
}

type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// NewConfig returns a Config with everything placed under baseDir and a
// single unbounded depot.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		DatRoot: filepath.Join(baseDir, "dats"),
		Index:   IndexConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Depots:  []DepotConfig{{Path: filepath.Join(baseDir, "depot")}},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "romba.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "romba.key"),
		},
	}
}

// WorkerCount is the configured worker count clamped to [1, MaxWorkers].
func (c *Config) WorkerCount() int {
	n := c.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return min(max(n, 1), MaxWorkers)
}

// Validate rejects configurations no command can run with.
func (c *Config) Validate() error {
	switch c.Index.Type {
	case "memory":
	case "sqlite":
		if c.Index.DataDir == "" {
			return fmt.Errorf("index.data_dir required for sqlite index")
		}
	default:
		return fmt.Errorf("unknown index type: %q", c.Index.Type)
	}
	if len(c.Depots) == 0 {
		return fmt.Errorf("at least one depot must be configured")
	}
	seen := make(map[string]bool, len(c.Depots))
	for i, d := range c.Depots {
		if d.Path == "" {
			return fmt.Errorf("depots[%d]: path must be set", i)
		}
		if seen[d.Path] {
			return fmt.Errorf("depots[%d]: duplicate path %s", i, d.Path)
		}
		seen[d.Path] = true
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates the config at path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	Plain      bool
	Timeout    string
	Retries    int
}

// Settings is constructed once at startup and passed explicitly into every
// component; nothing below the app layer reads ambient process state.
type Settings struct {
	OutputMode string
	Timeout    time.Duration
	Retries    int

	ChainID       int64
	RPCURL        string
	RelayAPIKey   string
	TargetAddress string
	TokenAddress  string

	GasLimit       uint64
	FeeBufferBps   int64
	PermitDeadline time.Duration
	SwapDeadline   time.Duration
	MinNativeOut   *big.Int
	HighPriority   bool

	StatusPollAttempts int
	StatusPollInterval time.Duration

	TaskStorePath string
	TaskLockPath  string
}

// Defaults mirror the values the hosted frontend ships with. Malformed file or
// env values fall back to these rather than failing startup; every fallback is
// reported as a warning so a misconfiguration is visible without being fatal.
func defaultSettings() (Settings, error) {
	storePath, lockPath, err := defaultStorePaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:         "json",
		Timeout:            10 * time.Second,
		Retries:            2,
		ChainID:            8453,
		TargetAddress:      "0xfB990A2eDc7811223B737cC25ac68aEccEC97d5f",
		TokenAddress:       "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		GasLimit:           800_000,
		FeeBufferBps:       2000,
		PermitDeadline:     30 * time.Minute,
		SwapDeadline:       20 * time.Minute,
		MinNativeOut:       big.NewInt(0),
		StatusPollAttempts: 12,
		StatusPollInterval: 5 * time.Second,
		TaskStorePath:      storePath,
		TaskLockPath:       lockPath,
	}, nil
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`

	ChainID int64  `yaml:"chain_id"`
	RPCURL  string `yaml:"rpc_url"`
	Relay   struct {
		APIKey       string `yaml:"api_key"`
		APIKeyEnv    string `yaml:"api_key_env"`
		HighPriority *bool  `yaml:"high_priority"`
	} `yaml:"relay"`
	Contracts struct {
		Target string `yaml:"target"`
		Token  string `yaml:"token"`
	} `yaml:"contracts"`
	Swap struct {
		GasLimit       string `yaml:"gas_limit"`
		FeeBufferBps   string `yaml:"fee_buffer_bps"`
		PermitDeadline string `yaml:"permit_deadline"`
		SwapDeadline   string `yaml:"swap_deadline"`
		MinNativeOut   string `yaml:"min_native_out"`
	} `yaml:"swap"`
	Status struct {
		PollAttempts *int   `yaml:"poll_attempts"`
		PollInterval string `yaml:"poll_interval"`
	} `yaml:"status"`
	Tasks struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"tasks"`
}

// Load resolves settings from defaults, then the YAML file, then GASLESS_*
// environment variables, then flags. It returns the warnings produced by
// fail-open fallbacks alongside the settings.
func Load(flags GlobalFlags) (Settings, []string, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, nil, err
	}
	var warnings []string

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, nil, err
	}
	if err := applyFileConfig(cfgPath, &settings, &warnings); err != nil {
		return Settings{}, nil, err
	}
	applyEnv(&settings, &warnings)
	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, nil, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.StatusPollAttempts <= 0 {
		settings.StatusPollAttempts = 12
	}
	if settings.StatusPollInterval <= 0 {
		settings.StatusPollInterval = 5 * time.Second
	}
	return settings, warnings, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "gasless", "config.yaml"), nil
}

func defaultStorePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "gasless")
	return filepath.Join(dir, "tasks.db"), filepath.Join(dir, "tasks.lock"), nil
}

func applyFileConfig(path string, settings *Settings, warnings *[]string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		applyDuration(cfg.Timeout, "timeout", &settings.Timeout, warnings)
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.ChainID != 0 {
		settings.ChainID = cfg.ChainID
	}
	if cfg.RPCURL != "" {
		settings.RPCURL = cfg.RPCURL
	}
	if cfg.Relay.APIKey != "" {
		settings.RelayAPIKey = cfg.Relay.APIKey
	}
	if cfg.Relay.APIKeyEnv != "" {
		settings.RelayAPIKey = os.Getenv(cfg.Relay.APIKeyEnv)
	}
	if cfg.Relay.HighPriority != nil {
		settings.HighPriority = *cfg.Relay.HighPriority
	}
	if cfg.Contracts.Target != "" {
		settings.TargetAddress = cfg.Contracts.Target
	}
	if cfg.Contracts.Token != "" {
		settings.TokenAddress = cfg.Contracts.Token
	}
	if cfg.Swap.GasLimit != "" {
		applyUint(cfg.Swap.GasLimit, "swap.gas_limit", &settings.GasLimit, warnings)
	}
	if cfg.Swap.FeeBufferBps != "" {
		applyInt64(cfg.Swap.FeeBufferBps, "swap.fee_buffer_bps", &settings.FeeBufferBps, warnings)
	}
	if cfg.Swap.PermitDeadline != "" {
		applyDuration(cfg.Swap.PermitDeadline, "swap.permit_deadline", &settings.PermitDeadline, warnings)
	}
	if cfg.Swap.SwapDeadline != "" {
		applyDuration(cfg.Swap.SwapDeadline, "swap.swap_deadline", &settings.SwapDeadline, warnings)
	}
	if cfg.Swap.MinNativeOut != "" {
		applyBig(cfg.Swap.MinNativeOut, "swap.min_native_out", &settings.MinNativeOut, warnings)
	}
	if cfg.Status.PollAttempts != nil {
		settings.StatusPollAttempts = *cfg.Status.PollAttempts
	}
	if cfg.Status.PollInterval != "" {
		applyDuration(cfg.Status.PollInterval, "status.poll_interval", &settings.StatusPollInterval, warnings)
	}
	if cfg.Tasks.Path != "" {
		settings.TaskStorePath = cfg.Tasks.Path
	}
	if cfg.Tasks.LockPath != "" {
		settings.TaskLockPath = cfg.Tasks.LockPath
	}
	return nil
}

func applyEnv(settings *Settings, warnings *[]string) {
	if v := os.Getenv("GASLESS_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("GASLESS_TIMEOUT"); v != "" {
		applyDuration(v, "GASLESS_TIMEOUT", &settings.Timeout, warnings)
	}
	if v := os.Getenv("GASLESS_CHAIN_ID"); v != "" {
		applyInt64(v, "GASLESS_CHAIN_ID", &settings.ChainID, warnings)
	}
	if v := os.Getenv("GASLESS_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("GASLESS_RELAY_API_KEY"); v != "" {
		settings.RelayAPIKey = v
	}
	if v := os.Getenv("GASLESS_TARGET"); v != "" {
		settings.TargetAddress = v
	}
	if v := os.Getenv("GASLESS_TOKEN"); v != "" {
		settings.TokenAddress = v
	}
	if v := os.Getenv("GASLESS_GAS_LIMIT"); v != "" {
		applyUint(v, "GASLESS_GAS_LIMIT", &settings.GasLimit, warnings)
	}
	if v := os.Getenv("GASLESS_FEE_BUFFER_BPS"); v != "" {
		applyInt64(v, "GASLESS_FEE_BUFFER_BPS", &settings.FeeBufferBps, warnings)
	}
	if v := os.Getenv("GASLESS_PERMIT_DEADLINE"); v != "" {
		applyDuration(v, "GASLESS_PERMIT_DEADLINE", &settings.PermitDeadline, warnings)
	}
	if v := os.Getenv("GASLESS_SWAP_DEADLINE"); v != "" {
		applyDuration(v, "GASLESS_SWAP_DEADLINE", &settings.SwapDeadline, warnings)
	}
	if v := os.Getenv("GASLESS_MIN_NATIVE_OUT"); v != "" {
		applyBig(v, "GASLESS_MIN_NATIVE_OUT", &settings.MinNativeOut, warnings)
	}
	if v := os.Getenv("GASLESS_HIGH_PRIORITY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.HighPriority = b
		} else {
			*warnings = append(*warnings, fmt.Sprintf("ignoring malformed GASLESS_HIGH_PRIORITY %q", v))
		}
	}
	if v := os.Getenv("GASLESS_STATUS_POLL_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.StatusPollAttempts = n
		} else {
			*warnings = append(*warnings, fmt.Sprintf("ignoring malformed GASLESS_STATUS_POLL_ATTEMPTS %q", v))
		}
	}
	if v := os.Getenv("GASLESS_STATUS_POLL_INTERVAL"); v != "" {
		applyDuration(v, "GASLESS_STATUS_POLL_INTERVAL", &settings.StatusPollInterval, warnings)
	}
	if v := os.Getenv("GASLESS_TASKS_PATH"); v != "" {
		settings.TaskStorePath = v
	}
	if v := os.Getenv("GASLESS_TASKS_LOCK_PATH"); v != "" {
		settings.TaskLockPath = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}

func applyDuration(raw, name string, dst *time.Duration, warnings *[]string) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		// Bare integers are treated as seconds for compatibility with the
		// original env surface.
		if n, convErr := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); convErr == nil && n >= 0 {
			*dst = time.Duration(n) * time.Second
			return
		}
		*warnings = append(*warnings, fmt.Sprintf("ignoring malformed %s %q", name, raw))
		return
	}
	*dst = d
}

func applyInt64(raw, name string, dst *int64, warnings *[]string) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("ignoring malformed %s %q", name, raw))
		return
	}
	*dst = n
}

func applyUint(raw, name string, dst *uint64, warnings *[]string) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("ignoring malformed %s %q", name, raw))
		return
	}
	*dst = n
}

func applyBig(raw, name string, dst **big.Int, warnings *[]string) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || v.Sign() < 0 {
		*warnings = append(*warnings, fmt.Sprintf("ignoring malformed %s %q", name, raw))
		return
	}
	*dst = v
}

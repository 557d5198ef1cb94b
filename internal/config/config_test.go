package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	for _, key := range []string{
		"GASLESS_OUTPUT", "GASLESS_TIMEOUT", "GASLESS_CHAIN_ID", "GASLESS_RPC_URL",
		"GASLESS_RELAY_API_KEY", "GASLESS_TARGET", "GASLESS_TOKEN", "GASLESS_GAS_LIMIT",
		"GASLESS_FEE_BUFFER_BPS", "GASLESS_PERMIT_DEADLINE", "GASLESS_SWAP_DEADLINE",
		"GASLESS_MIN_NATIVE_OUT", "GASLESS_HIGH_PRIORITY", "GASLESS_STATUS_POLL_ATTEMPTS",
		"GASLESS_STATUS_POLL_INTERVAL", "GASLESS_TASKS_PATH", "GASLESS_TASKS_LOCK_PATH",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolateEnv(t)
	settings, warnings, err := Load(GlobalFlags{Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings %v", warnings)
	}
	if settings.ChainID != 8453 {
		t.Fatalf("chain id = %d, want 8453", settings.ChainID)
	}
	if settings.GasLimit != 800_000 {
		t.Fatalf("gas limit = %d, want 800000", settings.GasLimit)
	}
	if settings.FeeBufferBps != 2000 {
		t.Fatalf("fee buffer = %d, want 2000", settings.FeeBufferBps)
	}
	if settings.PermitDeadline != 30*time.Minute || settings.SwapDeadline != 20*time.Minute {
		t.Fatalf("deadlines = %s/%s", settings.PermitDeadline, settings.SwapDeadline)
	}
	if settings.StatusPollAttempts != 12 || settings.StatusPollInterval != 5*time.Second {
		t.Fatalf("poll settings = %d/%s", settings.StatusPollAttempts, settings.StatusPollInterval)
	}
	if settings.MinNativeOut.Sign() != 0 {
		t.Fatalf("min native out = %s, want 0", settings.MinNativeOut)
	}
	if settings.OutputMode != "json" {
		t.Fatalf("output = %s, want json", settings.OutputMode)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GASLESS_CHAIN_ID", "1")
	t.Setenv("GASLESS_FEE_BUFFER_BPS", "500")
	t.Setenv("GASLESS_PERMIT_DEADLINE", "15m")
	t.Setenv("GASLESS_RELAY_API_KEY", "key-from-env")

	settings, warnings, err := Load(GlobalFlags{Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings %v", warnings)
	}
	if settings.ChainID != 1 {
		t.Fatalf("chain id = %d, want 1", settings.ChainID)
	}
	if settings.FeeBufferBps != 500 {
		t.Fatalf("fee buffer = %d, want 500", settings.FeeBufferBps)
	}
	if settings.PermitDeadline != 15*time.Minute {
		t.Fatalf("permit deadline = %s, want 15m", settings.PermitDeadline)
	}
	if settings.RelayAPIKey != "key-from-env" {
		t.Fatalf("relay key = %s", settings.RelayAPIKey)
	}
}

func TestLoadBareSecondsDuration(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GASLESS_SWAP_DEADLINE", "1200")
	settings, _, err := Load(GlobalFlags{Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.SwapDeadline != 1200*time.Second {
		t.Fatalf("swap deadline = %s, want 20m", settings.SwapDeadline)
	}
}

func TestLoadMalformedValueFallsBackWithWarning(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GASLESS_FEE_BUFFER_BPS", "plenty")
	t.Setenv("GASLESS_PERMIT_DEADLINE", "whenever")

	settings, warnings, err := Load(GlobalFlags{Retries: -1})
	if err != nil {
		t.Fatalf("malformed values must not fail startup: %v", err)
	}
	if settings.FeeBufferBps != 2000 {
		t.Fatalf("fee buffer = %d, want default 2000", settings.FeeBufferBps)
	}
	if settings.PermitDeadline != 30*time.Minute {
		t.Fatalf("permit deadline = %s, want default 30m", settings.PermitDeadline)
	}
	if len(warnings) != 2 {
		t.Fatalf("warnings = %v, want one per malformed value", warnings)
	}
	for _, w := range warnings {
		if !strings.Contains(w, "ignoring malformed") {
			t.Fatalf("unexpected warning %q", w)
		}
	}
}

func TestLoadFileConfig(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
chain_id: 42161
rpc_url: https://example.invalid/rpc
relay:
  api_key: file-key
swap:
  gas_limit: "900000"
  fee_buffer_bps: "1000"
status:
  poll_attempts: 6
  poll_interval: 2s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	settings, warnings, err := Load(GlobalFlags{ConfigPath: path, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings %v", warnings)
	}
	if settings.ChainID != 42161 || settings.RPCURL != "https://example.invalid/rpc" {
		t.Fatalf("chain settings = %d %s", settings.ChainID, settings.RPCURL)
	}
	if settings.RelayAPIKey != "file-key" {
		t.Fatalf("relay key = %s", settings.RelayAPIKey)
	}
	if settings.GasLimit != 900_000 || settings.FeeBufferBps != 1000 {
		t.Fatalf("swap settings = %d %d", settings.GasLimit, settings.FeeBufferBps)
	}
	if settings.StatusPollAttempts != 6 || settings.StatusPollInterval != 2*time.Second {
		t.Fatalf("poll settings = %d %s", settings.StatusPollAttempts, settings.StatusPollInterval)
	}
}

func TestLoadEnvBeatsFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("chain_id: 1\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GASLESS_CHAIN_ID", "10")

	settings, _, err := Load(GlobalFlags{ConfigPath: path, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.ChainID != 10 {
		t.Fatalf("chain id = %d, env must override file", settings.ChainID)
	}
}

func TestLoadFlagConflicts(t *testing.T) {
	isolateEnv(t)
	if _, _, err := Load(GlobalFlags{JSON: true, Plain: true, Retries: -1}); err == nil {
		t.Fatal("expected error for conflicting output flags")
	}
}

func TestLoadPlainFlag(t *testing.T) {
	isolateEnv(t)
	settings, _, err := Load(GlobalFlags{Plain: true, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("output = %s, want plain", settings.OutputMode)
	}
}

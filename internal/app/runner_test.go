package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/kbizikav/gasless-gas-station/internal/version"
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

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	runner := NewRunnerWithWriters(&stdout, &stderr)
	code := runner.Run(args)
	return code, stdout.String(), stderr.String()
}

func TestRunVersion(t *testing.T) {
	isolateEnv(t)
	code, stdout, stderr := runCLI(t, "version")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	if stdout != version.Version+"\n" {
		t.Fatalf("stdout = %q, want %q", stdout, version.Version+"\n")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	isolateEnv(t)
	code, stdout, stderr := runCLI(t, "teleport")
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if stdout != "" {
		t.Fatalf("unexpected stdout %q", stdout)
	}
	var env map[string]any
	if err := json.Unmarshal([]byte(stderr), &env); err != nil {
		t.Fatalf("stderr is not a json envelope: %v\n%s", err, stderr)
	}
	errBody := env["error"].(map[string]any)
	if errBody["type"] != "usage_error" {
		t.Fatalf("error type = %v", errBody["type"])
	}
}

func TestRunMissingRequiredFlag(t *testing.T) {
	isolateEnv(t)
	code, _, stderr := runCLI(t, "swap", "plan", "--owner", "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")
	if code != 2 {
		t.Fatalf("exit code = %d, want 2, stderr: %s", code, stderr)
	}
	if !strings.Contains(stderr, "usage_error") {
		t.Fatalf("stderr missing usage_error: %s", stderr)
	}
}

func TestRunConflictingOutputFlags(t *testing.T) {
	isolateEnv(t)
	code, _, stderr := runCLI(t, "version", "--json", "--plain")
	if code != 2 {
		t.Fatalf("exit code = %d, want 2, stderr: %s", code, stderr)
	}
	if !strings.Contains(stderr, "usage_error") {
		t.Fatalf("stderr missing usage_error: %s", stderr)
	}
}

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("gasless swap run"); got != "swap run" {
		t.Fatalf("trimRootPath = %q", got)
	}
	if got := trimRootPath("gasless"); got != "gasless" {
		t.Fatalf("trimRootPath = %q", got)
	}
}

func TestNormalizeRunError(t *testing.T) {
	if normalizeRunError(nil) != nil {
		t.Fatal("nil must stay nil")
	}
	err := normalizeRunError(errors.New(`unknown command "teleport" for "gasless"`))
	if got := err.Error(); !strings.Contains(got, "invalid command input") {
		t.Fatalf("unexpected normalized error %q", got)
	}
	err = normalizeRunError(errors.New("disk on fire"))
	if got := err.Error(); !strings.Contains(got, "execute command") {
		t.Fatalf("unexpected normalized error %q", got)
	}
}

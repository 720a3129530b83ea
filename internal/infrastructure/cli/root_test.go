package cli

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/felixgeelhaar/boardsync/internal/infrastructure/config"
)

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Error("nil error should exit 0")
	}
	if ExitCode(errors.New("boom")) != 1 {
		t.Error("plain error should exit 1")
	}
	if ExitCode(&CLIError{Message: "bad", ExitCode: 2}) != 2 {
		t.Error("CLIError code should be used")
	}
}

func TestConfigInitAndShow(t *testing.T) {
	for _, env := range []string{config.EnvAPIURL, config.EnvPushURL, config.EnvToken, config.EnvUserID, config.EnvLogLevel} {
		t.Setenv(env, "")
	}
	home := t.TempDir()
	run := func(args ...string) (string, error) {
		return runCLIIn(t, home, args...)
	}

	if _, err := run("config", "init", "--api-url", "https://board.example.com/api", "--push-url", "wss://board.example.com/ws", "--user", "u1", "--token", "secret-token"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := run("config", "init"); err == nil {
		t.Error("second init without --force should fail")
	}
	out, err := run("config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "https://board.example.com/api") {
		t.Errorf("show output missing api url:\n%s", out)
	}
	if strings.Contains(out, "secret-token") {
		t.Errorf("token leaked:\n%s", out)
	}
}

func TestExecuteHelp(t *testing.T) {
	old := os.Args
	defer func() { os.Args = old }()
	os.Args = []string{"boardsync", "--help"}
	RootCmd.SetArgs(nil)
	if err := Execute(); err != nil {
		t.Errorf("Execute failed: %v", err)
	}
}

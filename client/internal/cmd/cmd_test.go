package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testConfigFile writes a config whose preferences live in a temp dir.
func testConfigFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"device":{"data_path":"` + filepath.ToSlash(filepath.Join(dir, "prefs.db")) + `"},"log_level":"error"}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWithInput(t, "", args...)
}

func executeWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "tapremote test" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestAddressCmd(t *testing.T) {
	cfg := testConfigFile(t)

	out, err := execute(t, "--config", cfg, "address")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No device address set") {
		t.Errorf("unexpected output %q", out)
	}

	out, err = execute(t, "--config", cfg, "address", "set", "ws://10.0.0.9:7497/")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "set to 10.0.0.9") {
		t.Errorf("unexpected output %q", out)
	}

	out, err = execute(t, "--config", cfg, "address", "get")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "ws://10.0.0.9:7497/") {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := execute(t, "--config", cfg, "address", "set", "10.0.0.9:80"); err == nil {
		t.Error("expected invalid address to be rejected")
	}
}

func TestAddressCmd_Prompted(t *testing.T) {
	cfg := testConfigFile(t)

	out, err := executeWithInput(t, "10.0.0.9:80\n10.0.0.7\n", "--config", cfg, "address", "set")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "port must be 7497") {
		t.Errorf("rejection not shown: %q", out)
	}
	if !strings.Contains(out, "set to 10.0.0.7") {
		t.Errorf("unexpected output %q", out)
	}

	// Enter keeps the current address.
	out, err = executeWithInput(t, "\n", "--config", cfg, "address", "set")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "[10.0.0.7]") || !strings.Contains(out, "set to 10.0.0.7") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestAddressCmd_Clear(t *testing.T) {
	cfg := testConfigFile(t)
	if _, err := execute(t, "--config", cfg, "address", "set", "10.0.0.9"); err != nil {
		t.Fatal(err)
	}

	out, err := executeWithInput(t, "n\n", "--config", cfg, "address", "clear")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Aborted") {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := execute(t, "--config", cfg, "address", "clear", "--yes"); err != nil {
		t.Fatal(err)
	}
	out, err = execute(t, "--config", cfg, "address")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No device address set") {
		t.Errorf("address not cleared: %q", out)
	}
}

func TestCallCmd_InvalidParams(t *testing.T) {
	_, err := execute(t, "--config", testConfigFile(t), "call", "launch", "{not json")
	if err == nil || !strings.Contains(err.Error(), "valid JSON") {
		t.Fatalf("expected params error, got %v", err)
	}
}

func TestCallCmd_NoAddress(t *testing.T) {
	_, err := execute(t, "--config", testConfigFile(t), "call", "version", "--connect-timeout", "200ms")
	if err == nil || !strings.Contains(err.Error(), "no device address configured") {
		t.Fatalf("expected missing address error, got %v", err)
	}
}

func TestConfigCmd(t *testing.T) {
	out, err := execute(t, "--config", testConfigFile(t), "config")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"reconnect_interval": "250ms"`, `"request_timeout": "30s"`, `"log_level": "error"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s", want)
		}
	}
}

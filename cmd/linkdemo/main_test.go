package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunVersionFlag(t *testing.T) {
	oldVer := ver
	t.Cleanup(func() { ver = oldVer })
	ver = "v9.9.9"

	var stdout, stderr bytes.Buffer
	code := run([]string{"--version"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr=%q)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "v9.9.9") {
		t.Fatalf("expected version output, got %q", stdout.String())
	}
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--help"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr=%q)", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "socket-prefix") {
		t.Fatalf("expected help to mention socket-prefix, got %q", stderr.String())
	}
}

func TestRunPrintConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--print-config", "--socket-prefix", "testprefix"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr=%q)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "testprefix") {
		t.Fatalf("expected printed config to mention socket prefix, got %q", stdout.String())
	}
}

func TestRunInvalidEnvBoolReturnsUsageError(t *testing.T) {
	t.Setenv("SNAPLINK_LOG_PRETTY", "not-a-bool")
	var stdout, stderr bytes.Buffer
	code := run(nil, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "SNAPLINK_LOG_PRETTY") {
		t.Fatalf("expected error to mention the bad var, got %q", stderr.String())
	}
}

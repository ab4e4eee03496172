package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/memohai/orderbot/internal/version"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), version.Version) {
		t.Fatalf("expected version in output, got %q", out.String())
	}
}

func TestMigrateRequiresCommand(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected argument error")
	}
}

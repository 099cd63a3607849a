package cmd

import (
	"strings"
	"testing"
)

func TestNewSelfUpdateCmd(t *testing.T) {
	c := newSelfUpdateCmd()

	if c.Use != "selfupdate" {
		t.Errorf("expected Use to be 'selfupdate', got %s", c.Use)
	}
	if c.Short == "" {
		t.Error("expected Short description to be set")
	}
	if c.RunE == nil {
		t.Error("expected RunE to be set")
	}
}

func TestRunSelfUpdateWithDevVersion(t *testing.T) {
	original := rootCmd.Version
	defer func() { rootCmd.Version = original }()
	rootCmd.Version = "dev"

	err := runSelfUpdate(rootCmd, nil)
	if err == nil {
		t.Fatal("expected error for dev version")
	}
	if !strings.Contains(err.Error(), "cannot self-update a development version") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestRunSelfUpdateWithEmptyVersion(t *testing.T) {
	original := rootCmd.Version
	defer func() { rootCmd.Version = original }()
	rootCmd.Version = ""

	err := runSelfUpdate(rootCmd, nil)
	if err == nil {
		t.Fatal("expected error for empty version")
	}
	if !strings.Contains(err.Error(), "cannot self-update a development version") {
		t.Errorf("unexpected error message: %v", err)
	}
}

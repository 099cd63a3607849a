package cmd

import "testing"

func TestNewStopCmd(t *testing.T) {
	c := newStopCmd()
	if c.Use != "stop" {
		t.Errorf("expected Use to be 'stop', got %s", c.Use)
	}
	if c.RunE == nil {
		t.Error("expected RunE to be set")
	}
}

func TestNewRestartCmd(t *testing.T) {
	c := newRestartCmd()
	if c.Use != "restart" {
		t.Errorf("expected Use to be 'restart', got %s", c.Use)
	}
	if c.Flags().Lookup("schema") == nil {
		t.Error("expected --schema flag to be registered")
	}
}

func TestNewStatusCmd(t *testing.T) {
	c := newStatusCmd()
	if c.Use != "status" {
		t.Errorf("expected Use to be 'status', got %s", c.Use)
	}
	if c.Flags().Lookup("schema") == nil {
		t.Error("expected --schema flag to be registered")
	}
}

func TestNewInspectCmd(t *testing.T) {
	c := newInspectCmd()
	if c.Use != "inspect" {
		t.Errorf("expected Use to be 'inspect', got %s", c.Use)
	}
	if c.Flags().Lookup("standalone") == nil {
		t.Error("expected --standalone flag to be registered")
	}
}

func TestNewBrokerCmd(t *testing.T) {
	c := newBrokerCmd()
	if c.Use != "broker" {
		t.Errorf("expected Use to be 'broker', got %s", c.Use)
	}
	if c.Flags().Lookup("conf-path") == nil {
		t.Error("expected --conf-path flag to be registered")
	}
}

func TestNewVersionCmd(t *testing.T) {
	c := newVersionCmd()
	if c.Use != "version" {
		t.Errorf("expected Use to be 'version', got %s", c.Use)
	}
	if c.Run == nil {
		t.Error("expected Run to be set")
	}
}

func TestEnvOrFlagPrefersFlag(t *testing.T) {
	if got := envOrFlag("FIDELIO_DOES_NOT_EXIST_XYZ", "explicit"); got != "explicit" {
		t.Errorf("expected flag value to win, got %q", got)
	}
}

func TestEnvOrFlagFallsBackToEnv(t *testing.T) {
	t.Setenv("FIDELIO_TEST_ENV_VAR", "from-env")
	if got := envOrFlag("FIDELIO_TEST_ENV_VAR", ""); got != "from-env" {
		t.Errorf("expected env fallback, got %q", got)
	}
}

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

const validDoc = `
containers:
  - serviceName: db
    type: Data
    process:
      start:
        main:
          name: postgres
          path: /usr/bin/postgres
          isMain: true
  - serviceName: webapp
    type: Web
    requires: [db]
    process:
      start:
        main:
          name: app
          path: /usr/bin/webapp
          isMain: true
`

const circularDoc = `
containers:
  - serviceName: a
    type: Web
    requires: [b]
    process:
      start:
        main: {name: a, path: /bin/a, isMain: true}
  - serviceName: b
    type: Web
    requires: [a]
    process:
      start:
        main: {name: b, path: /bin/b, isMain: true}
`

func TestNewValidateCmd(t *testing.T) {
	c := newValidateCmd()
	if c.Use != "validate" {
		t.Errorf("expected Use to be 'validate', got %s", c.Use)
	}
	if c.RunE == nil {
		t.Error("expected RunE to be set")
	}
}

func TestValidateOnceAcceptsCleanSchema(t *testing.T) {
	path := writeSchema(t, validDoc)

	var buf bytes.Buffer
	c := newValidateCmd()
	c.SetOut(&buf)

	if err := validateOnce(c, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("ok:")) {
		t.Errorf("expected success message, got %q", buf.String())
	}
}

func TestValidateOnceRejectsCircularSchema(t *testing.T) {
	path := writeSchema(t, circularDoc)

	var buf bytes.Buffer
	c := newValidateCmd()
	c.SetOut(&buf)

	if err := validateOnce(c, path); err == nil {
		t.Fatal("expected error for circular schema")
	}
}

func writeSchema(t *testing.T, doc string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	return path
}

package schema_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denlap007/fidelio/internal/descriptor"
	"github.com/denlap007/fidelio/internal/schema"
)

const doc = `
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

func TestParseDecodesContainerList(t *testing.T) {
	descs, err := schema.Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, "db", descs[0].ServiceName)
	assert.Equal(t, descriptor.TypeData, descs[0].Type)
	assert.Equal(t, []string{"db"}, descs[1].Requires)
}

func TestParseRejectsMissingMainResource(t *testing.T) {
	_, err := schema.Parse([]byte(`containers: [{serviceName: bad, type: Web}]`))
	require.Error(t, err)
}

func TestLoadFileReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	descs, err := schema.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, descs, 2)
}

func TestLoadFileMissingFile(t *testing.T) {
	_, err := schema.LoadFile("/nonexistent/path.yaml")
	require.Error(t, err)
}

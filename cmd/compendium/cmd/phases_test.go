package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhasesCommand(t *testing.T) {
	out, err := execute(t, "memory://", "phases")
	require.NoError(t, err)
	assert.Contains(t, out, "Core Reference")
	assert.Contains(t, out, "species_traits, class_features, subclasses, backgrounds")
	assert.Contains(t, out, "relationship linking")
	assert.Contains(t, out, "priority: PHB > MM")
}

func TestPhasesCommand_PipelineFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
priority: []
phases:
  - {id: 1, name: Only Skills, kinds: [skills]}
  - {id: 2, name: Links, link: true}
`), 0o644))

	out, err := execute(t, "memory://", "phases", "--pipeline", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Only Skills")
	assert.NotContains(t, out, "priority:")

	require.NoError(t, os.WriteFile(path, []byte(`
phases:
  - {id: 1, name: Bad, kinds: [monsters]}
`), 0o644))
	_, err = execute(t, "memory://", "phases", "--pipeline", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown entity kind "monsters"`)
}

func TestMigrateCommand(t *testing.T) {
	url := "sqlite://" + filepath.Join(t.TempDir(), "compendium.db")

	out, err := execute(t, url, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 1")

	out, err = execute(t, url, "migrate", "down", "--steps", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 0")

	_, err = execute(t, "memory://", "migrate", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no schema")
}

package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func collect(t *testing.T, l *Loader, c Collection) ([]Item, error) {
	t.Helper()
	var items []Item
	for item, err := range l.Records(context.Background(), c) {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

func TestNewLoader_MissingDirectory(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)

	var missing *MissingSourceError
	require.True(t, errors.As(err, &missing))
	assert.Contains(t, err.Error(), "data directory")
}

func TestRecords_SingleFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "skills.json", `{
		"_meta": {"sources": [{"json": "PHB"}]},
		"skill": [
			{"name": "Stealth", "ability": "dex", "source": "PHB"},
			{"name": "Perception", "ability": "wis", "source": "XPHB"}
		]
	}`)

	l, err := NewLoader(dir)
	require.NoError(t, err)

	items, err := collect(t, l, Collection{Name: "skill", Pattern: "skills.json", Key: "skill"})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Stealth", items[0].Record.String("name"))
	assert.Equal(t, "skills.json", items[0].File)
	assert.Equal(t, 0, items[0].Index)
	assert.Equal(t, "skill", items[1].Collection)
	assert.Equal(t, 1, items[1].Index)
}

func TestRecords_GlobPreservesDiscoveryOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "spells/spells-xge.json", `{"spell": [{"name": "Toll the Dead"}]}`)
	writeFile(t, dir, "spells/spells-phb.json", `{"spell": [{"name": "Fire Bolt"}, {"name": "Light"}]}`)
	writeFile(t, dir, "spells/spells-phb-fluff.json", `{"spellFluff": [{"name": "Fire Bolt"}]}`)

	l, err := NewLoader(dir)
	require.NoError(t, err)

	c := Collection{Name: "spell", Pattern: "spells/spells-*.json", Key: "spell", Exclude: []string{"fluff"}}
	items, err := collect(t, l, c)
	require.NoError(t, err)

	var names []string
	for _, item := range items {
		names = append(names, item.Record.String("name"))
	}
	assert.Equal(t, []string{"Fire Bolt", "Light", "Toll the Dead"}, names)
}

func TestRecords_Restartable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "feats.json", `{"feat": [{"name": "Alert"}]}`)

	l, err := NewLoader(dir)
	require.NoError(t, err)
	c := Collection{Name: "feat", Pattern: "feats.json", Key: "feat"}

	first, err := collect(t, l, c)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// The second pass re-reads from disk.
	writeFile(t, dir, "feats.json", `{"feat": [{"name": "Alert"}, {"name": "Lucky"}]}`)
	second, err := collect(t, l, c)
	require.NoError(t, err)
	assert.Len(t, second, 2)
}

func TestRecords_SourceErrors(t *testing.T) {
	tests := []struct {
		name          string
		files         map[string]string
		collection    Collection
		wantMissing   bool
		wantMalformed bool
	}{
		{
			name:        "missing file",
			collection:  Collection{Name: "skill", Pattern: "skills.json", Key: "skill"},
			wantMissing: true,
		},
		{
			name:        "glob without matches",
			collection:  Collection{Name: "class", Pattern: "class/class-*.json", Key: "class"},
			wantMissing: true,
		},
		{
			name:          "invalid json",
			files:         map[string]string{"skills.json": `{"skill": [{"name": "Stealth",}]}`},
			collection:    Collection{Name: "skill", Pattern: "skills.json", Key: "skill"},
			wantMalformed: true,
		},
		{
			name:          "top level is an array",
			files:         map[string]string{"skills.json": `[{"name": "Stealth"}]`},
			collection:    Collection{Name: "skill", Pattern: "skills.json", Key: "skill"},
			wantMalformed: true,
		},
		{
			name:          "missing key",
			files:         map[string]string{"skills.json": `{"skills": []}`},
			collection:    Collection{Name: "skill", Pattern: "skills.json", Key: "skill"},
			wantMalformed: true,
		},
		{
			name:          "key is not an array",
			files:         map[string]string{"skills.json": `{"skill": {"name": "Stealth"}}`},
			collection:    Collection{Name: "skill", Pattern: "skills.json", Key: "skill"},
			wantMalformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
			}
			l, err := NewLoader(dir)
			require.NoError(t, err)

			_, err = collect(t, l, tt.collection)
			require.Error(t, err)

			var missing *MissingSourceError
			var malformed *MalformedSourceError
			assert.Equal(t, tt.wantMissing, errors.As(err, &missing), "missing: %v", err)
			assert.Equal(t, tt.wantMalformed, errors.As(err, &malformed), "malformed: %v", err)
		})
	}
}

func TestRecords_OptionalKey(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "class/class-fighter.json", `{"class": [{"name": "Fighter"}], "subclass": [{"name": "Champion"}]}`)
	writeFile(t, dir, "class/class-sidekick.json", `{"class": [{"name": "Expert"}]}`)

	l, err := NewLoader(dir)
	require.NoError(t, err)

	items, err := collect(t, l, Collection{Name: "subclass", Pattern: "class/class-*.json", Key: "subclass", Optional: true})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Champion", items[0].Record.String("name"))
}

func TestRecords_StopEarly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "feats.json", `{"feat": [{"name": "Alert"}, {"name": "Lucky"}, {"name": "Tough"}]}`)

	l, err := NewLoader(dir)
	require.NoError(t, err)

	count := 0
	for _, err := range l.Records(context.Background(), Collection{Name: "feat", Pattern: "feats.json", Key: "feat"}) {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

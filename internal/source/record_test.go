package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordAccessors(t *testing.T) {
	rec := Record{
		"name":    "Fire Bolt",
		"level":   float64(0),
		"ritual":  false,
		"speed":   "30 ft.",
		"cost":    "150",
		"classes": map[string]any{"fromClassList": []any{map[string]any{"name": "Wizard"}}},
		"tags":    []any{"fire", 3, "evocation"},
	}

	assert.Equal(t, "Fire Bolt", rec.String("name"))
	assert.Equal(t, "", rec.String("level"))

	level, ok := rec.Int("level")
	assert.True(t, ok)
	assert.Equal(t, 0, level)

	cost, ok := rec.Int("cost")
	assert.True(t, ok)
	assert.Equal(t, 150, cost)

	_, ok = rec.Int("speed")
	assert.False(t, ok)

	assert.Equal(t, []string{"fire", "evocation"}, rec.Strings("tags"))
	assert.Nil(t, rec.Map("name"))

	list := AsRecord(rec.Path("classes"))
	assert.Len(t, list.Slice("fromClassList"), 1)
	assert.Nil(t, rec.Path("classes", "missing", "deeper"))
}

func TestItemRef(t *testing.T) {
	named := Item{Record: Record{"name": "Alert"}, File: "feats.json", Index: 3}
	assert.Equal(t, "Alert", named.Ref())

	anonymous := Item{Record: Record{}, File: "feats.json", Index: 3}
	assert.Equal(t, "feats.json#3", anonymous.Ref())
}

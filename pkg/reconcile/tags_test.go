package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTags(t *testing.T) {
	raw := `<RESPONSE>Take the key, then.</RESPONSE>
<DELTA trust="0.2" relationship="-0.1" mood="gruff" />
<FLAG give_item="0.91" npc_action="0.12" />`

	got := ExtractTags(raw)

	assert.True(t, got.ResponseFound)
	assert.Equal(t, "Take the key, then.", got.Response)
	assert.Equal(t, map[string]float64{"trust": 0.2, "relationship": -0.1}, got.Deltas)
	assert.Equal(t, map[string]string{"mood": "gruff"}, got.DeltaStrings)
	assert.Equal(t, map[string]float64{"give_item": 0.91, "npc_action": 0.12}, got.Flags)
}

func TestExtractTagsMissingResponse(t *testing.T) {
	got := ExtractTags(`Fine, take it. <DELTA trust="0.1" />`)

	assert.False(t, got.ResponseFound)
	assert.Equal(t, "Fine, take it.", got.Response)
	assert.Equal(t, map[string]float64{"trust": 0.1}, got.Deltas)
}

func TestExtractTagsMissingDeltaAndFlag(t *testing.T) {
	got := ExtractTags(`<RESPONSE>Hmph.</RESPONSE>`)

	assert.True(t, got.ResponseFound)
	assert.Empty(t, got.Deltas)
	assert.Empty(t, got.Flags)
}

func TestExtractTagsMultiline(t *testing.T) {
	got := ExtractTags("<RESPONSE>Two\nlines.</RESPONSE>")
	assert.Equal(t, "Two\nlines.", got.Response)
}

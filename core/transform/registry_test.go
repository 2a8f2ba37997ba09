package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	json "github.com/goccy/go-json"
)

func TestIdentityReturnsRawUnchanged(t *testing.T) {
	raw := []byte(`{"a":1}`)
	out, err := Identity(raw, time.Now())
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestForFallsBackToIdentity(t *testing.T) {
	r := NewRegistry()
	fn := r.For("unregistered-endpoint")
	out, err := fn([]byte(`{"x":1}`), time.Now())
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, string(out))
}

func TestForReturnsRegisteredEndpoints(t *testing.T) {
	r := NewRegistry()
	for _, endpoint := range []string{"tournaments", "rankings", "field", "scoring", "player-stats", "betting-odds"} {
		assert.NotNil(t, r.For(endpoint))
	}
}

func TestListTransformWrapsArrayAndRenamesFields(t *testing.T) {
	raw := []byte(`[{"player_name":"A","world_rank":1},{"player_name":"B","world_rank":2}]`)
	out, err := ListTransform(raw, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))

	items := decoded["items"].([]interface{})
	require.Len(t, items, 2)

	first := items[0].(map[string]interface{})
	assert.Equal(t, "A", first["playerName"])
	assert.Equal(t, float64(1), first["worldRank"])

	metadata := decoded["metadata"].(map[string]interface{})
	assert.Equal(t, float64(2), metadata["count"])
	assert.Equal(t, "2026-08-01T00:00:00Z", metadata["transformed_at"])
}

func TestListTransformWrapsSingleObjectAsOneItemList(t *testing.T) {
	raw := []byte(`{"tournament_name":"The Open"}`)
	out, err := ListTransform(raw, time.Now())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	items := decoded["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "The Open", items[0].(map[string]interface{})["tournamentName"])
}

func TestListTransformIsDeterministic(t *testing.T) {
	raw := []byte(`[{"a_b":1,"c_d":{"e_f":2}}]`)
	now := time.Now()
	first, err := ListTransform(raw, now)
	require.NoError(t, err)
	second, err := ListTransform(raw, now)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestListTransformRenamesNestedKeys(t *testing.T) {
	raw := []byte(`[{"round_scores":{"first_round":68}}]`)
	out, err := ListTransform(raw, time.Now())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	item := decoded["items"].([]interface{})[0].(map[string]interface{})
	nested := item["roundScores"].(map[string]interface{})
	assert.Equal(t, float64(68), nested["firstRound"])
}

package collector

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleSnapshot = `{
  "game": {"time": {"tick": 12345}},
  "players": {
    "alice": {"connected": true},
    "bob": {"connected": false}
  },
  "forces": {
    "player": {
      "research": {"progress": 0.42},
      "items": {
        "iron-plate": {"production": 100, "consumption": 40}
      },
      "fluids": {
        "crude-oil": {"production": 2500.5, "consumption": 1200.25}
      },
      "electric-network": {"free-form": "ignored"}
    },
    "enemy": {
      "items": {}
    }
  },
  "pollution": {
    "pollution-furnace": 3.5,
    "tree-proxy": -0.25
  },
  "surfaces": {
    "nauvis": {
      "pollution": 1804.75,
      "ticks_per_day": 25000,
      "entities": {"stone-furnace": 12, "transport-belt": 340}
    }
  }
}`

const sampleExposition = `
# HELP factorio_entity_count The total number of entities.
# TYPE factorio_entity_count gauge
factorio_entity_count{force="player",name="stone-furnace",surface="nauvis"} 12
factorio_entity_count{force="player",name="transport-belt",surface="nauvis"} 340
# HELP factorio_force_prototype_consumption The total consumption of a given prototype for a force.
# TYPE factorio_force_prototype_consumption counter
factorio_force_prototype_consumption{force="player",prototype="crude-oil",type="fluids"} 1200.25
factorio_force_prototype_consumption{force="player",prototype="iron-plate",type="items"} 40
# HELP factorio_force_prototype_production The total production of a given prototype for a force.
# TYPE factorio_force_prototype_production counter
factorio_force_prototype_production{force="player",prototype="crude-oil",type="fluids"} 2500.5
factorio_force_prototype_production{force="player",prototype="iron-plate",type="items"} 100
# HELP factorio_force_research_progress The current research progress percentage (0-1) for a force.
# TYPE factorio_force_research_progress gauge
factorio_force_research_progress{force="player"} 0.42
# HELP factorio_game_tick The current tick of the running Factorio game.
# TYPE factorio_game_tick gauge
factorio_game_tick 12345
# HELP factorio_player_connected The current connection state of the player.
# TYPE factorio_player_connected gauge
factorio_player_connected{username="alice"} 1
factorio_player_connected{username="bob"} 0
# HELP factorio_pollution_production The pollution produced or consumed from various sources. Negative values are net consumption.
# TYPE factorio_pollution_production gauge
factorio_pollution_production{source="pollution-furnace"} 3.5
factorio_pollution_production{source="tree-proxy"} -0.25
# HELP factorio_surface_pollution_total The total pollution on a given surface.
# TYPE factorio_surface_pollution_total gauge
factorio_surface_pollution_total{surface="nauvis"} 1804.75
# HELP factorio_surface_ticks_per_day The number of ticks per day on a given surface.
# TYPE factorio_surface_ticks_per_day gauge
factorio_surface_ticks_per_day{surface="nauvis"} 25000
`

func writeSnapshot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCollectTranslatesSnapshot(t *testing.T) {
	c := New(writeSnapshot(t, sampleSnapshot), zap.NewNop())

	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(sampleExposition)))
}

func TestCollectIsIdempotent(t *testing.T) {
	c := New(writeSnapshot(t, sampleSnapshot), zap.NewNop())

	// An unchanged file scrapes to identical output every time.
	for i := 0; i < 3; i++ {
		require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(sampleExposition)))
	}
}

func TestCollectMissingFileFailsScrape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	c := New(path, zap.NewNop())

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	_, err := reg.Gather()
	require.Error(t, err)

	// The serving loop recovers once the snapshot reappears.
	require.NoError(t, os.WriteFile(path, []byte(sampleSnapshot), 0o600))
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestCollectMalformedSnapshotFailsScrape(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid json", content: "{not json"},
		{name: "missing forces", content: `{"game":{"time":{"tick":1}},"players":{},"pollution":{},"surfaces":{}}`},
		{name: "research wrong shape", content: `{"game":{"time":{"tick":1}},"players":{},"forces":{"player":{"research":"oops"}},"pollution":{},"surfaces":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(writeSnapshot(t, tt.content), zap.NewNop())

			reg := prometheus.NewPedanticRegistry()
			require.NoError(t, reg.Register(c))

			families, err := reg.Gather()
			require.Error(t, err)
			assert.Empty(t, families)
		})
	}
}

func TestCollectIgnoresUnknownTypeGroups(t *testing.T) {
	snapshot := `{
	  "game": {"time": {"tick": 7}},
	  "players": {},
	  "forces": {
	    "player": {
	      "electric-network": {"anything": {"at": "all"}},
	      "logistics": [1, 2, 3]
	    }
	  },
	  "pollution": {},
	  "surfaces": {}
	}`
	c := New(writeSnapshot(t, snapshot), zap.NewNop())

	// Only the tick survives: no force emitted a known type group.
	count := testutil.CollectAndCount(c)
	assert.Equal(t, 1, count)
	assert.InDelta(t, 7, testutil.ToFloat64(c), 0)
}

func TestCollectNoResearchGroupNoProgressSample(t *testing.T) {
	snapshot := `{
	  "game": {"time": {"tick": 1}},
	  "players": {},
	  "forces": {
	    "player": {
	      "items": {"iron-plate": {"production": 100, "consumption": 40}}
	    }
	  },
	  "pollution": {},
	  "surfaces": {}
	}`
	c := New(writeSnapshot(t, snapshot), zap.NewNop())

	assert.Equal(t, 0, testutil.CollectAndCount(c, "factorio_force_research_progress"))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "factorio_force_prototype_production"))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "factorio_force_prototype_consumption"))
}

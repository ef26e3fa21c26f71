package collector

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ZCK12/factorio-prometheus-exporter/internal/domain"
)

// entityForce is the force the mod reports entity counts for.
const entityForce = "player"

// Factorio translates the mod's JSON snapshot file into Prometheus metric
// families. It holds no state between scrapes; every Collect call reads the
// file from scratch, so a scrape always reflects the snapshot on disk.
type Factorio struct {
	path string
	log  *zap.Logger

	gameTick             *prometheus.Desc
	playerConnected      *prometheus.Desc
	prototypeConsumption *prometheus.Desc
	prototypeProduction  *prometheus.Desc
	researchProgress     *prometheus.Desc
	pollutionProduction  *prometheus.Desc
	surfacePollution     *prometheus.Desc
	surfaceTicksPerDay   *prometheus.Desc
	entityCount          *prometheus.Desc
}

// New returns a collector reading the snapshot at path.
func New(path string, log *zap.Logger) *Factorio {
	return &Factorio{
		path: path,
		log:  log,
		gameTick: prometheus.NewDesc(
			"factorio_game_tick",
			"The current tick of the running Factorio game.",
			nil, nil,
		),
		playerConnected: prometheus.NewDesc(
			"factorio_player_connected",
			"The current connection state of the player.",
			[]string{"username"}, nil,
		),
		prototypeConsumption: prometheus.NewDesc(
			"factorio_force_prototype_consumption",
			"The total consumption of a given prototype for a force.",
			[]string{"force", "prototype", "type"}, nil,
		),
		prototypeProduction: prometheus.NewDesc(
			"factorio_force_prototype_production",
			"The total production of a given prototype for a force.",
			[]string{"force", "prototype", "type"}, nil,
		),
		researchProgress: prometheus.NewDesc(
			"factorio_force_research_progress",
			"The current research progress percentage (0-1) for a force.",
			[]string{"force"}, nil,
		),
		pollutionProduction: prometheus.NewDesc(
			"factorio_pollution_production",
			"The pollution produced or consumed from various sources. Negative values are net consumption.",
			[]string{"source"}, nil,
		),
		surfacePollution: prometheus.NewDesc(
			"factorio_surface_pollution_total",
			"The total pollution on a given surface.",
			[]string{"surface"}, nil,
		),
		surfaceTicksPerDay: prometheus.NewDesc(
			"factorio_surface_ticks_per_day",
			"The number of ticks per day on a given surface.",
			[]string{"surface"}, nil,
		),
		entityCount: prometheus.NewDesc(
			"factorio_entity_count",
			"The total number of entities.",
			[]string{"force", "name", "surface"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Factorio) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.gameTick
	ch <- c.playerConnected
	ch <- c.prototypeConsumption
	ch <- c.prototypeProduction
	ch <- c.researchProgress
	ch <- c.pollutionProduction
	ch <- c.surfacePollution
	ch <- c.surfaceTicksPerDay
	ch <- c.entityCount
}

// Collect implements prometheus.Collector. A failed read or decode aborts the
// whole scrape: no partial families are emitted and the registry surfaces the
// error to the scraper.
func (c *Factorio) Collect(ch chan<- prometheus.Metric) {
	metrics, err := c.scrape()
	if err != nil {
		c.log.Error("snapshot collection failed",
			zap.String("path", c.path),
			zap.Error(err))
		ch <- prometheus.NewInvalidMetric(c.gameTick, err)
		return
	}
	for _, m := range metrics {
		ch <- m
	}
}

// scrape reads and translates the snapshot file. The full metric slice is
// built before anything is emitted so an error partway through decoding never
// leaks a partial scrape.
func (c *Factorio) scrape() ([]prometheus.Metric, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	snap, err := domain.Parse(data)
	if err != nil {
		return nil, err
	}
	return c.translate(snap)
}

func (c *Factorio) translate(snap *domain.Snapshot) ([]prometheus.Metric, error) {
	metrics := []prometheus.Metric{
		prometheus.MustNewConstMetric(c.gameTick, prometheus.GaugeValue,
			float64(snap.Game.Time.Tick)),
	}

	for username, player := range snap.Players {
		var connected float64
		if player.Connected {
			connected = 1
		}
		metrics = append(metrics, prometheus.MustNewConstMetric(
			c.playerConnected, prometheus.GaugeValue, connected, username))
	}

	for forceName, force := range snap.Forces {
		for group := range force {
			switch group {
			case domain.GroupResearch:
				research, ok, err := force.Research()
				if err != nil {
					return nil, fmt.Errorf("force %q: %w", forceName, err)
				}
				if !ok {
					continue
				}
				metrics = append(metrics, prometheus.MustNewConstMetric(
					c.researchProgress, prometheus.GaugeValue,
					research.Progress, forceName))
			case domain.GroupFluids, domain.GroupItems:
				flows, err := force.Prototypes(group)
				if err != nil {
					return nil, fmt.Errorf("force %q: %w", forceName, err)
				}
				for prototype, flow := range flows {
					metrics = append(metrics,
						prometheus.MustNewConstMetric(
							c.prototypeConsumption, prometheus.CounterValue,
							flow.Consumption, forceName, prototype, group),
						prometheus.MustNewConstMetric(
							c.prototypeProduction, prometheus.CounterValue,
							flow.Production, forceName, prototype, group))
				}
			default:
				// Unknown type groups are skipped so newer mod versions can
				// add categories without breaking older exporters.
			}
		}
	}

	for source, amount := range snap.Pollution {
		metrics = append(metrics, prometheus.MustNewConstMetric(
			c.pollutionProduction, prometheus.GaugeValue, amount, source))
	}

	for surfaceName, surface := range snap.Surfaces {
		metrics = append(metrics,
			prometheus.MustNewConstMetric(c.surfacePollution,
				prometheus.GaugeValue, surface.Pollution, surfaceName),
			prometheus.MustNewConstMetric(c.surfaceTicksPerDay,
				prometheus.GaugeValue, surface.TicksPerDay, surfaceName))
		for entityName, count := range surface.Entities {
			metrics = append(metrics, prometheus.MustNewConstMetric(
				c.entityCount, prometheus.GaugeValue, float64(count),
				entityForce, entityName, surfaceName))
		}
	}

	return metrics, nil
}

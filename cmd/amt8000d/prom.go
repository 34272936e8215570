package main

import (
	client "github.com/matbott/amt8000"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var armStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "amt8000",
	Subsystem: "alarm",
	Name:      "state",
	Help:      "Arming state: 0 disarmed, 1 partial, 3 armed, 255 unknown.",
})

var sirenGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "amt8000",
	Subsystem: "alarm",
	Name:      "siren",
	Help:      "Whether the siren is firing.",
})

var tamperGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "amt8000",
	Subsystem: "alarm",
	Name:      "tamper",
	Help:      "Whether the panel reports tampering.",
})

var batteryLevelGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "amt8000",
	Subsystem: "alarm",
	Name:      "battery_level",
	Help:      "Panel battery level, 0-100.",
})

var zoneOpenGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "amt8000",
	Subsystem: "alarm",
	Name:      "zone_open",
	Help:      "Whether a zone is open.",
}, []string{"name"})

var zonePairedGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "amt8000",
	Subsystem: "alarm",
	Name:      "zone_paired",
	Help:      "Whether a zone slot has a sensor paired.",
}, []string{"name"})

var requestCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "amt8000",
	Subsystem: "client",
	Name:      "requests_total",
	Help:      "Connections attempted against the panel.",
})

var requestErrorCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "amt8000",
	Subsystem: "client",
	Name:      "request_errors_total",
	Help:      "Failed exchanges with the panel.",
})

func observeSnapshot(cfg Config, snap client.Snapshot) {
	armStateGauge.Set(float64(snap.Status.State))
	sirenGauge.Set(boolAs[float64](snap.Status.Siren))
	tamperGauge.Set(boolAs[float64](snap.Status.Tamper))
	batteryLevelGauge.Set(float64(snap.Status.Battery.Level()))
	for _, zone := range snap.Zones {
		if !zone.Paired {
			continue
		}
		name := cfg.zoneName(zone.Number)
		zonePairedGauge.WithLabelValues(name).Set(1)
		zoneOpenGauge.WithLabelValues(name).Set(boolAs[float64](zone.Open))
	}
}

func boolAs[T int | float64](b bool) T {
	if b {
		return 1
	}
	return 0
}

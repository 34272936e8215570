package main

import (
	"context"
	_ "embed"
	"errors"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	logp "github.com/charmbracelet/log"
	client "github.com/matbott/amt8000"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed index.html
var index []byte

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "amt8000d",
})

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const manufacturer = "Intelbras"

func main() {
	log.Info(
		"amt8000d",
		"version", version,
		"commit", commit,
		"date", date,
		"info", "monitor and control Intelbras AMT8000 alarm systems",
	)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(
			"could not parse env",
			"err",
			strings.TrimPrefix(strings.ReplaceAll(err.Error(), "; ", "\n"), "env: ")+"\n",
		)
	}

	log.Info("watching zones", "zones", allZoneConfigs(cfg.allZones()).String())

	macAddr, err := client.MacAddress(cfg.Host)
	if err != nil {
		log.Warn(
			"could not get the mac address, needs 'cap_net_raw+ep' capabilities",
			"err", err,
		)
	}

	coord := client.NewCoordinator(cfg.conn())
	execute := newExecutor(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if snap, err := coord.Poll(ctx); err != nil {
		log.Error("panel not reachable yet, will keep retrying", "err", err)
	} else {
		log.Info(
			"got alarm system information",
			"manufacturer", manufacturer,
			"model", snap.Status.Model,
			"version", snap.Status.Version,
			"mac", macAddr,
		)
		observeSnapshot(cfg, snap)
	}

	go func() {
		_ = coord.Run(ctx, cfg.Interval, func(snap client.Snapshot) {
			observeSnapshot(cfg, snap)
		})
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/arm", armHandler(execute))
	mux.Handle("/disarm", disarmHandler(execute))
	mux.Handle("/panic", panicHandler(execute))
	mux.Handle("/zones/refresh", refreshZonesHandler(coord))
	mux.Handle("/", pageHandler(cfg, coord))

	server := &http.Server{Addr: cfg.Address, Handler: mux}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info("stopping server")
		signal.Stop(c)
		cancel()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("starting server", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("failed to close server", "err", err)
	}
}

type PageZone struct {
	Number  int
	Name    string
	Display string
	Open    bool
}

func pageHandler(cfg Config, coord *client.Coordinator) http.HandlerFunc {
	tpl := template.Must(template.New("index").Parse(string(index)))
	return func(w http.ResponseWriter, _ *http.Request) {
		snap, ok := coord.Last()
		if !ok {
			http.Error(w, "no panel state available yet", http.StatusServiceUnavailable)
			return
		}

		var zones []PageZone
		for _, zone := range snap.Zones {
			if !zone.Paired {
				continue
			}
			zones = append(zones, PageZone{
				Number:  zone.Number,
				Name:    cfg.zoneName(zone.Number),
				Display: zone.Display(),
				Open:    zone.Open,
			})
		}

		_ = tpl.Execute(w, struct {
			Model     string
			Version   string
			State     string
			Battery   string
			Siren     bool
			Tamper    bool
			UpdatedAt string
			Zones     []PageZone
		}{
			Model:     snap.Status.Model,
			Version:   snap.Status.Version,
			State:     snap.Status.State.String(),
			Battery:   snap.Status.Battery.String(),
			Siren:     snap.Status.Siren,
			Tamper:    snap.Status.Tamper,
			UpdatedAt: snap.TakenAt.Format(time.RFC3339),
			Zones:     zones,
		})
	}
}

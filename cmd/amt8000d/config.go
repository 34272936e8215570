package main

import (
	"fmt"
	"strings"
	"time"

	client "github.com/matbott/amt8000"
	"golang.org/x/exp/slices"
)

type Config struct {
	Host         string        `env:"HOST,notEmpty"`
	Port         string        `env:"PORT"              envDefault:"9009"`
	Password     string        `env:"PASSWORD,notEmpty"`
	Interval     time.Duration `env:"INTERVAL"          envDefault:"10s"`
	Timeout      time.Duration `env:"TIMEOUT"           envDefault:"2s"`
	MotionZones  []int         `env:"MOTION"`
	ContactZones []int         `env:"CONTACT"`
	ZoneNames    []string      `env:"ZONE_NAMES"`
	Address      string        `env:"LISTEN"            envDefault:":9091"`
}

func (c Config) conn() client.ConnConfig {
	return client.ConnConfig{
		Host:     c.Host,
		Port:     c.Port,
		Password: c.Password,
		Timeout:  c.Timeout,
	}
}

type zoneKind uint8

const (
	kindMotion = iota + 1
	kindContact
)

func (z zoneKind) String() string {
	switch z {
	case kindMotion:
		return "motion"
	default:
		return "contact"
	}
}

type zoneConfig struct {
	number int
	name   string
	kind   zoneKind
}

func (c Config) zoneName(n int) string {
	names := c.ZoneNames
	if len(names) > n-1 {
		if n := names[n-1]; n != "" {
			return n
		}
	}
	return fmt.Sprintf("Zone %d", n)
}

type allZoneConfigs []zoneConfig

func (a allZoneConfigs) String() string {
	var zones []string
	for _, zone := range a {
		zones = append(
			zones,
			fmt.Sprintf("zone %d: %q (%s)", zone.number, zone.name, zone.kind.String()),
		)
	}
	return strings.Join(zones, "\n")
}

func (c Config) allZones() []zoneConfig {
	var zones []zoneConfig
	for _, z := range c.MotionZones {
		zones = append(zones, zoneConfig{
			number: z,
			name:   c.zoneName(z),
			kind:   kindMotion,
		})
	}
	for _, z := range c.ContactZones {
		zones = append(zones, zoneConfig{
			number: z,
			name:   c.zoneName(z),
			kind:   kindContact,
		})
	}
	slices.SortFunc(zones, func(a, b zoneConfig) int {
		if a.number > b.number {
			return 1
		}
		return -1
	})
	return zones
}

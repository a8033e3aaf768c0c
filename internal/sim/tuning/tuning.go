package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"parkcraft.ai/internal/sim/park"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz   int        `yaml:"tick_rate_hz"`
	StartingCash park.Money `yaml:"starting_cash"`
	Rules        park.Rules `yaml:"rules"`

	Map        MapLimits  `yaml:"map"`
	RateLimits RateLimits `yaml:"rate_limits"`

	// QueueCapacity bounds sealed actions waiting for execution.
	QueueCapacity int `yaml:"queue_capacity"`
	// DedupeEntries sizes the authority's request dedupe cache.
	DedupeEntries int `yaml:"dedupe_entries"`

	DefaultGroup string  `yaml:"default_group"`
	Groups       []Group `yaml:"groups"`
	// Players pins player names to groups; everyone else gets DefaultGroup.
	Players map[string]string `yaml:"players"`
}

type MapLimits struct {
	Width           int32 `yaml:"width"`
	Height          int32 `yaml:"height"`
	MaxTileElements int   `yaml:"max_tile_elements"`
	MaxMapElements  int   `yaml:"max_map_elements"`
	MaxRides        int   `yaml:"max_rides"`
	MaxStations     int   `yaml:"max_stations"`
	MaxHeight       int32 `yaml:"max_height"`
	MaxRideName     int   `yaml:"max_ride_name"`
	MaxCash         int64 `yaml:"max_cash"`
}

type RateLimits struct {
	ActionsPerSecond float64 `yaml:"actions_per_second"`
	Burst            int     `yaml:"burst"`
}

// Group is a named permission set that players are assigned to.
type Group struct {
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

func Defaults() Tuning {
	lim := park.DefaultLimits()
	return Tuning{
		ProtocolVersion: "parkcraft/1",
		TickRateHz:      40,
		StartingCash:    1_000_000,
		Map: MapLimits{
			Width:           lim.Width,
			Height:          lim.Height,
			MaxTileElements: lim.MaxTileElements,
			MaxMapElements:  lim.MaxMapElements,
			MaxRides:        lim.MaxRides,
			MaxStations:     lim.MaxStations,
			MaxHeight:       lim.MaxHeight,
			MaxRideName:     lim.MaxRideNameLength,
			MaxCash:         int64(lim.MaxCash),
		},
		RateLimits:    RateLimits{ActionsPerSecond: 20, Burst: 40},
		QueueCapacity: 4096,
		DedupeEntries: 8192,
		DefaultGroup:  "builder",
		Groups: []Group{
			{Name: "admin", Permissions: []string{"ride_construction", "ride_properties", "guest", "cheat", "any_ride"}},
			{Name: "builder", Permissions: []string{"ride_construction", "ride_properties", "guest"}},
			{Name: "spectator"},
		},
	}
}

// Limits converts the map section into park limits.
func (t Tuning) Limits() park.Limits {
	return park.Limits{
		Width:             t.Map.Width,
		Height:            t.Map.Height,
		MaxTileElements:   t.Map.MaxTileElements,
		MaxMapElements:    t.Map.MaxMapElements,
		MaxRides:          t.Map.MaxRides,
		MaxStations:       t.Map.MaxStations,
		MaxHeight:         t.Map.MaxHeight,
		MaxRideNameLength: t.Map.MaxRideName,
		MaxCash:           park.Money(t.Map.MaxCash),
	}
}

func (t Tuning) Validate() error {
	if t.ProtocolVersion == "" {
		return errors.New("protocol_version is required")
	}
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0 (got %d)", t.TickRateHz)
	}
	if t.Map.Width <= 0 || t.Map.Height <= 0 {
		return fmt.Errorf("map size must be positive (got %dx%d)", t.Map.Width, t.Map.Height)
	}
	if t.Map.MaxTileElements < 2 {
		return fmt.Errorf("map.max_tile_elements must be >= 2 (got %d)", t.Map.MaxTileElements)
	}
	if t.Map.MaxMapElements < int(t.Map.Width)*int(t.Map.Height) {
		return errors.New("map.max_map_elements is smaller than the surface count")
	}
	if t.Map.MaxStations <= 0 || t.Map.MaxStations > 255 {
		return fmt.Errorf("map.max_stations out of range (got %d)", t.Map.MaxStations)
	}
	if t.QueueCapacity <= 0 {
		return errors.New("queue_capacity must be > 0")
	}
	seen := map[string]bool{}
	for _, g := range t.Groups {
		if g.Name == "" {
			return errors.New("groups: empty name")
		}
		if seen[g.Name] {
			return fmt.Errorf("groups: duplicate %q", g.Name)
		}
		seen[g.Name] = true
	}
	if t.DefaultGroup != "" && !seen[t.DefaultGroup] {
		return fmt.Errorf("default_group %q is not defined", t.DefaultGroup)
	}
	for name, g := range t.Players {
		if !seen[g] {
			return fmt.Errorf("players: %q assigned to undefined group %q", name, g)
		}
	}
	return nil
}

// Load reads a tuning file over Defaults so partial files are valid.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"oceansurface/mesh"
	"oceansurface/tiles"
)

// DefaultPath is the settings file read when no other is given.
const DefaultPath = "settings.json"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid settings")

type Settings struct {
	Ocean   OceanSettings  `json:"ocean"`
	Tasks   TaskSettings   `json:"tasks"`
	Server  ServerSettings `json:"server"`
	Verbose bool           `json:"verbose"`
}

type OceanSettings struct {
	Manifold        string  `json:"manifold"` // "cube" or "geodetic"
	Radius          float64 `json:"radius"`
	SeaLevel        float64 `json:"seaLevel"`
	MinActiveLevel  int     `json:"minActiveLevel"`
	MaxActiveLevel  int     `json:"maxActiveLevel"`
	MaxJobsPerFrame int     `json:"maxJobsPerFrame"`
	SplitThreshold  float64 `json:"splitThreshold"`
	MergeThreshold  float64 `json:"mergeThreshold"`
	DirtyQueue      bool    `json:"dirtyQueue"`
	MosaicSize      int     `json:"mosaicSize"`
	Source          string  `json:"source"` // "mask", "bathymetry", "map" or "none"
	LatencyMs       int     `json:"latencyMs"`
	Comment         string  `json:"comment"`
}

type TaskSettings struct {
	Workers int `json:"workers"`
}

type ServerSettings struct {
	Port             int `json:"port"`
	UpdateIntervalMs int `json:"updateIntervalMs"`
}

// Default returns the built-in settings.
func Default() Settings {
	opts := mesh.DefaultOptions()
	return Settings{
		Ocean: OceanSettings{
			Manifold:        "cube",
			Radius:          6371000,
			MinActiveLevel:  opts.MinActiveLevel,
			MaxActiveLevel:  opts.MaxActiveLevel,
			MaxJobsPerFrame: opts.MaxJobsPerFrame,
			SplitThreshold:  opts.SplitThreshold,
			MergeThreshold:  opts.MergeThreshold,
			DirtyQueue:      opts.DirtyQueue,
			MosaicSize:      opts.MosaicSize,
			Source:          "mask",
		},
		Tasks: TaskSettings{
			Workers: 8,
		},
		Server: ServerSettings{
			Port:             8080,
			UpdateIntervalMs: 100,
		},
	}
}

// Load decodes path over the defaults. A missing file is not an error.
func Load(path string) (Settings, error) {
	s := Default()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("No %s found, using defaults\n", path)
			return s, nil
		}
		return s, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&s); err != nil {
		return s, fmt.Errorf("error parsing %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}

	fmt.Printf("Loaded settings: %s manifold, levels %d-%d, %d jobs per frame\n",
		s.Ocean.Manifold, s.Ocean.MinActiveLevel, s.Ocean.MaxActiveLevel, s.Ocean.MaxJobsPerFrame)
	return s, nil
}

// Validate checks the settings, including the mesh options they produce.
func (s Settings) Validate() error {
	if _, err := s.Ocean.Projection(); err != nil {
		return err
	}
	if _, err := s.Ocean.Layers(); err != nil {
		return err
	}
	if s.Ocean.Radius <= 0 {
		return fmt.Errorf("%w: radius %.1f must be positive", ErrInvalid, s.Ocean.Radius)
	}
	if s.Tasks.Workers < 1 {
		return fmt.Errorf("%w: %d task workers", ErrInvalid, s.Tasks.Workers)
	}
	if s.Server.Port < 0 || s.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalid, s.Server.Port)
	}
	if s.Server.UpdateIntervalMs < 1 {
		return fmt.Errorf("%w: update interval %dms", ErrInvalid, s.Server.UpdateIntervalMs)
	}
	if err := s.MeshOptions().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// MeshOptions converts the ocean section into manager options.
func (s Settings) MeshOptions() mesh.Options {
	o := s.Ocean
	return mesh.Options{
		SeaLevel:        o.SeaLevel,
		MinActiveLevel:  o.MinActiveLevel,
		MaxActiveLevel:  o.MaxActiveLevel,
		MaxJobsPerFrame: o.MaxJobsPerFrame,
		SplitThreshold:  o.SplitThreshold,
		MergeThreshold:  o.MergeThreshold,
		DirtyQueue:      o.DirtyQueue,
		MosaicSize:      o.MosaicSize,
		Verbose:         s.Verbose,
	}
}

// Projection builds the manifold projection named by the settings.
func (o OceanSettings) Projection() (mesh.Projection, error) {
	switch o.Manifold {
	case "cube", "":
		return mesh.NewCubeProjection(o.Radius), nil
	case "geodetic":
		return mesh.NewGeodeticProjection(o.Radius), nil
	}
	return nil, fmt.Errorf("%w: unknown manifold %q", ErrInvalid, o.Manifold)
}

// Layers builds the procedural data source named by the settings. Only the
// chosen layer is set, so the manager fetches from it alone.
func (o OceanSettings) Layers() (mesh.Layers, error) {
	if o.LatencyMs < 0 {
		return mesh.Layers{}, fmt.Errorf("%w: latency %dms", ErrInvalid, o.LatencyMs)
	}
	src := tiles.NewProcedural()
	src.Latency = time.Duration(o.LatencyMs) * time.Millisecond

	switch o.Source {
	case "mask", "":
		return mesh.Layers{Mask: src}, nil
	case "bathymetry":
		return mesh.Layers{Bathymetry: src}, nil
	case "map":
		return mesh.Layers{Map: src}, nil
	case "none":
		return mesh.Layers{}, nil
	}
	return mesh.Layers{}, fmt.Errorf("%w: unknown source %q", ErrInvalid, o.Source)
}

// RestartRequired lists the settings that differ between old and s and
// cannot be applied to a running manager.
func (s Settings) RestartRequired(old Settings) []string {
	var changed []string
	if s.Ocean.Manifold != old.Ocean.Manifold {
		changed = append(changed, "ocean.manifold")
	}
	if s.Ocean.Radius != old.Ocean.Radius {
		changed = append(changed, "ocean.radius")
	}
	if s.Ocean.Source != old.Ocean.Source || s.Ocean.LatencyMs != old.Ocean.LatencyMs {
		changed = append(changed, "ocean.source")
	}
	if s.Tasks.Workers != old.Tasks.Workers {
		changed = append(changed, "tasks.workers")
	}
	if s.Server.Port != old.Server.Port {
		changed = append(changed, "server.port")
	}
	return changed
}

// Reload reads path again and reports the changes that need a restart.
func Reload(path string, old Settings) (Settings, error) {
	s, err := Load(path)
	if err != nil {
		return old, err
	}
	for _, name := range s.RestartRequired(old) {
		fmt.Printf("%s changed - restart required\n", name)
	}
	return s, nil
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"oceansurface/mesh"
)

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsValid(t *testing.T) {
	s := Default()
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if s.MeshOptions() != mesh.DefaultOptions() {
		t.Errorf("default mesh options %+v, want %+v", s.MeshOptions(), mesh.DefaultOptions())
	}
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if s != Default() {
		t.Error("missing file did not yield defaults")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeSettings(t, `{
		"ocean": {"manifold": "geodetic", "seaLevel": -12.5, "maxJobsPerFrame": 2},
		"server": {"port": 9090},
		"verbose": true
	}`)
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Ocean.Manifold != "geodetic" || s.Ocean.SeaLevel != -12.5 || s.Ocean.MaxJobsPerFrame != 2 {
		t.Errorf("ocean section not applied: %+v", s.Ocean)
	}
	if s.Server.Port != 9090 || s.Server.UpdateIntervalMs != 100 {
		t.Errorf("server %+v, want port 9090 and the default interval", s.Server)
	}
	if s.Ocean.MaxActiveLevel != mesh.MaxActiveLevel {
		t.Errorf("unset maxActiveLevel %d, want default", s.Ocean.MaxActiveLevel)
	}

	opts := s.MeshOptions()
	if !opts.Verbose || opts.SeaLevel != -12.5 {
		t.Errorf("mesh options %+v", opts)
	}
	proj, err := s.Ocean.Projection()
	if err != nil {
		t.Fatal(err)
	}
	if proj.Name() != "geodetic" {
		t.Errorf("projection %s, want geodetic", proj.Name())
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		invalid bool
	}{
		{"malformed", `{"ocean": `, false},
		{"unknown field", `{"ocean": {"icosphereLevel": 6}}`, false},
		{"unknown manifold", `{"ocean": {"manifold": "torus"}}`, true},
		{"thresholds inverted", `{"ocean": {"splitThreshold": 5, "mergeThreshold": 10}}`, true},
		{"no workers", `{"tasks": {"workers": 0}}`, true},
		{"negative radius", `{"ocean": {"radius": -1}}`, true},
		{"unknown source", `{"ocean": {"source": "satellite"}}`, true},
		{"negative latency", `{"ocean": {"latencyMs": -5}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeSettings(t, tt.body))
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errors.Is(err, ErrInvalid); got != tt.invalid {
				t.Errorf("errors.Is(ErrInvalid) = %v, want %v (%v)", got, tt.invalid, err)
			}
		})
	}
}

func TestInvalidOptionsWrapBothSentinels(t *testing.T) {
	s := Default()
	s.Ocean.MaxJobsPerFrame = 0
	err := s.Validate()
	if !errors.Is(err, ErrInvalid) || !errors.Is(err, mesh.ErrInvalidOptions) {
		t.Errorf("got %v, want both ErrInvalid and mesh.ErrInvalidOptions", err)
	}
}

func TestLayers(t *testing.T) {
	tests := []struct {
		source                 string
		mask, bathymetry, map_ bool
	}{
		{"mask", true, false, false},
		{"bathymetry", false, true, false},
		{"map", false, false, true},
		{"none", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			o := Default().Ocean
			o.Source = tt.source
			l, err := o.Layers()
			if err != nil {
				t.Fatal(err)
			}
			if (l.Mask != nil) != tt.mask || (l.Bathymetry != nil) != tt.bathymetry || (l.Map != nil) != tt.map_ {
				t.Errorf("layers %+v", l)
			}
		})
	}
}

func TestRestartRequired(t *testing.T) {
	old := Default()
	s := old
	s.Ocean.SeaLevel = 40
	if got := s.RestartRequired(old); len(got) != 0 {
		t.Errorf("sea level change needs restart: %v", got)
	}

	s.Ocean.Manifold = "geodetic"
	s.Tasks.Workers = 2
	got := s.RestartRequired(old)
	if len(got) != 2 || got[0] != "ocean.manifold" || got[1] != "tasks.workers" {
		t.Errorf("got %v, want manifold and workers", got)
	}
}

func TestReloadKeepsOldOnError(t *testing.T) {
	old := Default()
	old.Ocean.SeaLevel = 3
	s, err := Reload(writeSettings(t, `{"ocean": {"manifold": "torus"}}`), old)
	if err == nil {
		t.Fatal("expected an error")
	}
	if s != old {
		t.Error("failed reload replaced the settings")
	}
}

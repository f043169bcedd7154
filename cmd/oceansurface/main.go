// Command oceansurface runs the ocean mesh headless along an orbiting camera,
// printing per-frame timings and optionally streaming draw lists to
// websocket clients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"

	"oceansurface/config"
	"oceansurface/mesh"
	"oceansurface/stream"
	"oceansurface/tasks"
	"oceansurface/tiles"
)

func main() {
	var (
		configPath = flag.String("config", config.DefaultPath, "Settings file")
		frames     = flag.Int("frames", 0, "Frames to run, 0 runs until interrupted")
		fps        = flag.Float64("fps", 30, "Frame rate")
		altitude   = flag.Float64("altitude", 2, "Camera altitude in planet radii")
		orbit      = flag.Float64("orbit", 0.05, "Camera orbit speed in radians per second")
		serve      = flag.Bool("stream", false, "Stream draw lists over websockets")
		verbose    = flag.Bool("verbose", false, "Log every frame that changes the mesh")
		timing     = flag.Bool("timing", true, "Print a timing line once per second")
	)
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	if *verbose {
		settings.Verbose = true
	}

	fmt.Println("=== Ocean Surface ===")
	fmt.Printf("Manifold: %s, radius %.0f m\n", settings.Ocean.Manifold, settings.Ocean.Radius)
	fmt.Printf("Levels: %d-%d, %d jobs per frame\n",
		settings.Ocean.MinActiveLevel, settings.Ocean.MaxActiveLevel, settings.Ocean.MaxJobsPerFrame)
	fmt.Printf("Source: %s, %d workers\n", settings.Ocean.Source, settings.Tasks.Workers)

	proj, err := settings.Ocean.Projection()
	if err != nil {
		log.Fatalf("Failed to create projection: %v", err)
	}
	layers, err := settings.Ocean.Layers()
	if err != nil {
		log.Fatalf("Failed to create layers: %v", err)
	}

	service := tasks.NewService(mesh.ServiceName, settings.Tasks.Workers)
	defer service.Close()

	mgr, err := mesh.NewManager(proj, layers, settings.MeshOptions(), service)
	if err != nil {
		log.Fatalf("Failed to create mesh manager: %v", err)
	}
	defer mgr.Close()
	mgr.SetSurfaceTexture(mesh.NewSurfaceTexture(tiles.NewProcedural().SurfaceImage(64)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if *serve {
		srv := stream.NewServer(mgr.Post)
		mgr.SetSink(srv)
		httpServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", settings.Server.Port),
			Handler: srv.Handler(),
		}
		fmt.Printf("Streaming on ws://localhost:%d/ws\n", settings.Server.Port)

		g.Go(func() error {
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			interval := time.Duration(settings.Server.UpdateIntervalMs) * time.Millisecond
			if err := srv.Run(ctx, interval); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	g.Go(func() error {
		defer stop()
		return run(ctx, mgr, runConfig{
			frames:   *frames,
			fps:      *fps,
			altitude: *altitude,
			orbit:    *orbit,
			timing:   *timing,
			radius:   proj.Radius(),
			reload: func() {
				next, err := config.Reload(*configPath, settings)
				if err != nil {
					fmt.Printf("Reload failed, keeping current settings: %v\n", err)
					return
				}
				if *verbose {
					next.Verbose = true
				}
				settings = next
				opts := next.MeshOptions()
				if !mgr.Post(func(o *mesh.Options) { *o = opts }) {
					fmt.Println("Reload dropped, manager busy")
				}
			},
			reloads: reload,
		})
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Exited with error: %v", err)
	}
	fmt.Println("\nShutting down...")
}

type runConfig struct {
	frames   int
	fps      float64
	altitude float64
	orbit    float64
	timing   bool
	radius   float64
	reload   func()
	reloads  <-chan os.Signal
}

// run drives the frame loop on the calling goroutine, which is the only one
// touching the manager apart from Post.
func run(ctx context.Context, mgr *mesh.Manager, rc runConfig) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rc.fps))
	defer ticker.Stop()

	start := time.Now()
	lastReport := start
	var frameTime time.Duration
	var frameCount int

	for n := 0; rc.frames == 0 || n < rc.frames; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-rc.reloads:
			rc.reload()
			continue
		case <-ticker.C:
		}
		n++

		angle := time.Since(start).Seconds() * rc.orbit
		dist := rc.radius * (1 + rc.altitude)
		eye := mgl64.Vec3{dist * math.Cos(angle), dist * 0.3, dist * math.Sin(angle)}
		cam := mesh.LookAt(eye, mgl64.Vec3{}, 720)

		t0 := time.Now()
		st := mgr.Frame(cam)
		frameTime += time.Since(t0)
		frameCount++

		if rc.timing && time.Since(lastReport) >= time.Second {
			fmt.Printf("TIMING frame %d: %.2f ms/frame | %d diamonds | %d nodes | %d triangles | queues split %d merge %d image %d\n",
				st.Frame, frameTime.Seconds()*1000/float64(frameCount), st.Diamonds, st.Nodes, st.Triangles,
				st.SplitQueue, st.MergeQueue, st.ImageQueue)
			frameTime, frameCount = 0, 0
			lastReport = time.Now()
		}
	}

	if err := mgr.Manifold().Check(); err != nil {
		return fmt.Errorf("mesh invariants: %w", err)
	}
	return nil
}

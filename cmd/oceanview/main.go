//go:build opengl
// +build opengl

// Command oceanview renders the ocean mesh in a window. Drag to orbit,
// scroll to zoom, W toggles wireframe, PageUp/PageDown move the sea level.
package main

import (
	"flag"
	"fmt"
	"log"
	"runtime"
	"time"

	"oceansurface/config"
	"oceansurface/mesh"
	"oceansurface/rendering/opengl"
	"oceansurface/tasks"
	"oceansurface/tiles"
)

func main() {
	runtime.LockOSThread()

	var (
		configPath = flag.String("config", config.DefaultPath, "Settings file")
		width      = flag.Int("width", 1280, "Window width")
		height     = flag.Int("height", 720, "Window height")
		verbose    = flag.Bool("verbose", false, "Log every frame that changes the mesh")
	)
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	if *verbose {
		settings.Verbose = true
	}

	fmt.Println("=== Ocean Surface Viewer ===")
	fmt.Printf("Manifold: %s, radius %.0f m\n", settings.Ocean.Manifold, settings.Ocean.Radius)
	fmt.Printf("Window: %dx%d\n", *width, *height)

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

	renderer, err := opengl.NewRenderer(*width, *height, proj.Radius(), mgr.Post)
	if err != nil {
		log.Fatalf("Failed to create renderer: %v", err)
	}
	defer renderer.Terminate()
	mgr.SetSink(renderer)

	fmt.Println("\nControls:")
	fmt.Println("  Mouse: Click and drag to rotate")
	fmt.Println("  Scroll: Zoom in/out")
	fmt.Println("  W: Toggle wireframe")
	fmt.Println("  PageUp/PageDown: Raise/lower sea level")
	fmt.Println("  V: Toggle verbose frame log")
	fmt.Println("  ESC: Exit")

	frameCount := 0
	lastFPSTime := time.Now()
	var st mesh.FrameStats

	for !renderer.ShouldClose() {
		renderer.PollEvents()

		cam := renderer.Camera()
		st = mgr.Frame(cam)
		renderer.Render(cam)

		// FPS counter
		frameCount++
		now := time.Now()
		if now.Sub(lastFPSTime).Seconds() >= 1.0 {
			fps := float64(frameCount) / now.Sub(lastFPSTime).Seconds()
			fmt.Printf("\rFPS: %.1f | %d diamonds | %d triangles | images pending %d   ",
				fps, st.Diamonds, st.Triangles, st.ImageQueue)
			frameCount = 0
			lastFPSTime = now
		}
	}

	fmt.Println("\nShutting down...")
}

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"mmd-pose-renderer/internal/batch"
	"mmd-pose-renderer/internal/config"
	"mmd-pose-renderer/internal/pmx"
	"mmd-pose-renderer/internal/skeleton"
	"mmd-pose-renderer/internal/texture"
	"mmd-pose-renderer/internal/viewmatrix"
	"mmd-pose-renderer/internal/vmd"
)

// optional records whether a flag was given on the command line.
func optional[T any](name string, v *T) *T {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	if !set {
		return nil
	}
	return v
}

func main() {
	// CLI flags
	configFile := flag.String("config", "", "Path to a YAML or JSON config file")
	model := flag.String("model", "", "Path to the .pmx model")
	motion := flag.String("motion", "", "Path to the .vmd motion")
	outputDir := flag.String("output", "", "Output directory (default: <model dir>/renders)")
	toonDir := flag.String("toons", "", "Directory holding the shared toon01.bmp..toon10.bmp")
	encoding := flag.String("encoding", "", "Motion bone name encoding (default: Shift_JIS)")
	fps := flag.Float64("fps", 0, "Motion frame rate (default: 30)")
	startFrame := flag.Int("start", 0, "First frame to render")
	endFrame := flag.Int("end", -1, "Last frame to render, -1 for the end of the motion")
	step := flag.Int("step", 0, "Render every Nth frame (default: 1)")
	size := flag.Int("size", 0, "Output size in pixels (default: 512)")
	quality := flag.Int("quality", 0, "Accepted for config compatibility and ignored: frames are written as lossless WebP")
	workers := flag.Int("workers", 0, "Number of worker goroutines (default: NumCPU)")
	yaw := flag.Float64("yaw", 0, "Camera yaw in degrees")
	pitch := flag.Float64("pitch", 0, "Camera pitch in degrees")

	flag.Parse()

	// Load config
	var cfg config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	// CLI flags override config file
	cfg.Resolve(config.Flags{
		Model:      *model,
		Motion:     *motion,
		OutputDir:  *outputDir,
		ToonDir:    *toonDir,
		Encoding:   *encoding,
		FrameRate:  *fps,
		StartFrame: optional("start", startFrame),
		EndFrame:   optional("end", endFrame),
		FrameStep:  *step,
		Size:       *size,
		Quality:    *quality,
		Workers:    *workers,
		Yaw:        optional("yaw", yaw),
		Pitch:      optional("pitch", pitch),
	})
	if err := cfg.Validate(true); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	background, _ := cfg.BackgroundColor()

	// Load inputs
	m, err := pmx.Load(cfg.Model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading model: %v\n", err)
		os.Exit(1)
	}
	mo, err := vmd.Load(cfg.Motion, vmd.Options{Encoding: cfg.MotionEncoding})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading motion: %v\n", err)
		os.Exit(1)
	}
	tree, err := skeleton.Build(m.Bones)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building skeleton: %v\n", err)
		os.Exit(1)
	}

	matched := 0
	for _, name := range mo.BoneNames() {
		if _, ok := tree.Lookup(name); ok {
			matched++
		}
	}
	fmt.Printf("Model: %s (%d vertices, %d bones)\n", m.Name, len(m.Vertices), tree.Len())
	fmt.Printf("Motion: %d keyframes, %d/%d bones matched, %d frames\n",
		mo.KeyFrameCount(), matched, len(mo.Bones), mo.MaxFrame)

	// Build texture index
	texIndex := texture.BuildIndex(m.Dir)
	var toonIndex *texture.Index
	if cfg.ToonDir != "" {
		toonIndex = texture.BuildIndex(cfg.ToonDir)
	}
	texCache := texture.NewCache(texIndex, toonIndex)
	fmt.Printf("Textures: %d indexed\n", texIndex.Len())

	first, last := cfg.FrameRange(int(mo.MaxFrame))
	frames := batch.Frames(first, last, cfg.FrameStep)
	if len(frames) == 0 {
		fmt.Println("No frames to render.")
		os.Exit(0)
	}

	// Print summary
	fmt.Printf("MMD Pose Renderer → WebP\n")
	fmt.Printf("Frames: %d (%d..%d step %d), Workers: %d\n", len(frames), first, last, cfg.FrameStep, cfg.Workers)
	fmt.Printf("Output: %s\n", cfg.OutputDir)
	fmt.Println("------------------------------------------------------------")

	start := time.Now()

	// Run batch
	scale := mgl32.Vec3(*cfg.Scale)
	batchCfg := batch.Config{
		OutputDir: cfg.OutputDir,
		Model:     m,
		Tree:      tree,
		Motion:    mo,
		FrameRate: cfg.FrameRate,
		Textures:  texCache,
		Camera: viewmatrix.Camera{
			Yaw:         cfg.CameraYaw,
			Pitch:       cfg.CameraPitch,
			Perspective: cfg.Perspective,
			FOV:         cfg.FOV,
		},
		Position:    mgl32.Vec3(cfg.Position),
		Rotation:    mgl32.Vec3(cfg.Rotation),
		Scale:       scale,
		RenderSize:  cfg.RenderSize,
		Supersample: cfg.Supersample,
		Background:  background,
		Workers:     cfg.Workers,
	}

	results := batch.Run(batchCfg, frames)

	elapsed := time.Since(start)
	fmt.Println("------------------------------------------------------------")
	fmt.Printf("Done in %.1fs\n", elapsed.Seconds())

	// Count results
	success, failed := 0, 0
	var errors []batch.Result
	for _, r := range results {
		if r.Success {
			success++
		} else {
			failed++
			errors = append(errors, r)
		}
	}

	fmt.Printf("Rendered: %d/%d\n", success, len(frames))

	if len(errors) > 0 {
		fmt.Printf("\nFailed (%d):\n", failed)
		limit := 20
		if len(errors) < limit {
			limit = len(errors)
		}
		for _, e := range errors[:limit] {
			fmt.Printf("  frame %d: %s\n", e.Frame, e.Error)
		}
	}

	if misses := texCache.Misses(); len(misses) > 0 {
		fmt.Printf("\nMissing textures (%d):\n", len(misses))
		for _, name := range misses {
			fmt.Printf("  %s\n", name)
		}
	}

	// Write manifest
	manifestPath := filepath.Join(cfg.OutputDir, "manifest.json")
	os.MkdirAll(cfg.OutputDir, 0755)
	manifest := batch.Manifest{
		Model:     filepath.Base(cfg.Model),
		Motion:    filepath.Base(cfg.Motion),
		FrameRate: cfg.FrameRate,
		Size:      cfg.RenderSize,
	}
	if err := batch.WriteManifest(manifestPath, manifest, results); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: manifest write failed: %v\n", err)
	} else {
		fmt.Printf("Manifest: %s\n", manifestPath)
	}

	if failed > 0 {
		os.Exit(1)
	}
}

package batch

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HugoSmits86/nativewebp"
	"github.com/go-gl/mathgl/mgl32"

	"mmd-pose-renderer/internal/pmx"
	"mmd-pose-renderer/internal/pose"
	"mmd-pose-renderer/internal/postprocess"
	"mmd-pose-renderer/internal/raster"
	"mmd-pose-renderer/internal/skeleton"
	"mmd-pose-renderer/internal/texture"
	"mmd-pose-renderer/internal/viewmatrix"
	"mmd-pose-renderer/internal/vmd"
)

// Config holds all shared, read-only resources for a batch run.
type Config struct {
	OutputDir string

	Model     *pmx.Model
	Tree      *skeleton.Tree
	Motion    *vmd.Motion
	FrameRate float64
	Textures  texture.Resolver

	Camera   viewmatrix.Camera
	Position mgl32.Vec3
	Rotation mgl32.Vec3 // degrees
	Scale    mgl32.Vec3

	RenderSize  int
	Supersample int
	Background  color.NRGBA
	Workers     int

	// Framing keeps the camera still across frames. Nil fits the rest pose
	// with some headroom for motion.
	Framing *raster.Framing

	// Quiet disables the progress ticker.
	Quiet bool
}

var encodeWebP = func(w io.Writer, img image.Image) error {
	return nativewebp.Encode(w, img, nil)
}

// Result holds the outcome of rendering one frame.
type Result struct {
	Frame   int
	Image   string // path relative to OutputDir
	Success bool
	Error   string
}

// FrameName is the output file name of a frame.
func FrameName(frame int) string {
	return fmt.Sprintf("frame_%05d.webp", frame)
}

// Frames lists start..end inclusive in steps of step.
func Frames(start, end, step int) []int {
	if step < 1 {
		step = 1
	}
	var out []int
	for f := start; f <= end; f += step {
		out = append(out, f)
	}
	return out
}

// Run renders frames using a worker pool. Each worker owns an Evaluator;
// the model, tree and motion are shared read-only.
func Run(cfg Config, frames []int) []Result {
	total := len(frames)
	results := make([]Result, total)
	if total == 0 {
		return results
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Scale == (mgl32.Vec3{}) {
		cfg.Scale = mgl32.Vec3{1, 1, 1}
	}
	if cfg.Framing == nil {
		rest := scene(cfg, nil, nil, worldOf(cfg))
		f := rest.Fit(0.15)
		cfg.Framing = &f
	}

	var processed atomic.Int64
	start := time.Now()

	// Progress reporter
	done := make(chan struct{})
	if !cfg.Quiet {
		go func() {
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					p := processed.Load()
					if p > 0 {
						rate := float64(p) / time.Since(start).Seconds()
						fmt.Printf("  [%d/%d] %.1f frames/sec\n", p, total, rate)
					}
				}
			}
		}()
	}

	frameChan := make(chan int, cfg.Workers*2)
	var wg sync.WaitGroup

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev := pose.New(cfg.Tree, cfg.Motion, cfg.FrameRate)
			ev.SetRestPose(cfg.Position, cfg.Rotation, cfg.Scale)
			for idx := range frameChan {
				results[idx] = processFrame(cfg, ev, frames[idx])
				processed.Add(1)
			}
		}()
	}

	for i := range frames {
		frameChan <- i
	}
	close(frameChan)

	wg.Wait()
	close(done)

	return results
}

func worldOf(cfg Config) mgl32.Mat4 {
	ev := pose.New(cfg.Tree, nil, cfg.FrameRate)
	ev.SetRestPose(cfg.Position, cfg.Rotation, cfg.Scale)
	return ev.World()
}

func scene(cfg Config, pos, nrm []mgl32.Vec3, world mgl32.Mat4) raster.Scene {
	return raster.Scene{
		Model:       cfg.Model,
		Positions:   pos,
		Normals:     nrm,
		World:       world,
		Camera:      cfg.Camera,
		Textures:    cfg.Textures,
		Size:        cfg.RenderSize,
		Supersample: cfg.Supersample,
		Framing:     cfg.Framing,
	}
}

func processFrame(cfg Config, ev *pose.Evaluator, frame int) Result {
	res := Result{Frame: frame, Image: FrameName(frame)}

	ev.SeekFrame(frame)
	mats := ev.SkinMatrices()
	var pos, nrm []mgl32.Vec3
	if !skeleton.IsIdentity(mats) {
		pos, nrm = skeleton.Skin(cfg.Model.Vertices, mats)
	}

	img := raster.RenderModel(scene(cfg, pos, nrm, ev.World()))
	if cfg.Supersample > 1 {
		img = postprocess.Downsample(img, cfg.RenderSize)
	}
	img = postprocess.Composite(img, cfg.Background)

	outPath := filepath.Join(cfg.OutputDir, res.Image)
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		res.Error = err.Error()
		return res
	}

	f, err := os.Create(outPath)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	err = encodeWebP(f, img)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outPath)
		res.Error = fmt.Sprintf("WebP encode: %v", err)
		return res
	}

	res.Success = true
	return res
}

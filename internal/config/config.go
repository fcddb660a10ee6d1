package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config holds input paths, playback range and render settings.
type Config struct {
	// Paths
	Model     string `json:"model" yaml:"model"`
	Motion    string `json:"motion" yaml:"motion"`
	OutputDir string `json:"output_dir" yaml:"output_dir"`
	ToonDir   string `json:"toon_dir" yaml:"toon_dir"`

	// Playback
	MotionEncoding string  `json:"motion_encoding" yaml:"motion_encoding"`
	FrameRate      float64 `json:"frame_rate" yaml:"frame_rate"`
	StartFrame     int     `json:"start_frame" yaml:"start_frame"`
	EndFrame       *int    `json:"end_frame,omitempty" yaml:"end_frame,omitempty"` // nil or -1: last motion frame
	FrameStep      int     `json:"frame_step" yaml:"frame_step"`

	// Render settings
	RenderSize  int    `json:"render_size" yaml:"render_size"`
	Supersample int    `json:"supersample" yaml:"supersample"`
	WebPQuality int    `json:"webp_quality" yaml:"webp_quality"` // validated only; frames are lossless
	Workers     int    `json:"workers" yaml:"workers"`
	Background  string `json:"background" yaml:"background"` // "#rrggbb" or empty for transparent

	// Camera
	CameraYaw   float64 `json:"camera_yaw" yaml:"camera_yaw"`
	CameraPitch float64 `json:"camera_pitch" yaml:"camera_pitch"`
	Perspective bool    `json:"perspective" yaml:"perspective"`
	FOV         float64 `json:"fov" yaml:"fov"`

	// Model placement
	Position [3]float32  `json:"position" yaml:"position"`
	Rotation [3]float32  `json:"rotation" yaml:"rotation"` // degrees, X pitch, Y yaw, Z roll
	Scale    *[3]float32 `json:"scale,omitempty" yaml:"scale,omitempty"`

	dir string // directory of the loaded file, for relative paths
}

// Load reads a YAML (.yaml/.yml) or JSON config file.
// Fields not set in the file keep their zero values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Flags holds CLI flag values that override config file settings.
// Zero values and nil pointers leave the file value alone.
type Flags struct {
	Model      string
	Motion     string
	OutputDir  string
	ToonDir    string
	Encoding   string
	FrameRate  float64
	StartFrame *int
	EndFrame   *int
	FrameStep  int
	Size       int
	Quality    int
	Workers    int
	Yaw        *float64
	Pitch      *float64
}

// Resolve applies flag overrides, anchors file-relative paths at the
// config file's directory and fills defaults.
func (c *Config) Resolve(flags Flags) {
	c.Model = c.fromFile(c.Model)
	c.Motion = c.fromFile(c.Motion)
	c.OutputDir = c.fromFile(c.OutputDir)
	c.ToonDir = c.fromFile(c.ToonDir)

	// CLI flags override config file
	if flags.Model != "" {
		c.Model = flags.Model
	}
	if flags.Motion != "" {
		c.Motion = flags.Motion
	}
	if flags.OutputDir != "" {
		c.OutputDir = flags.OutputDir
	}
	if flags.ToonDir != "" {
		c.ToonDir = flags.ToonDir
	}
	if flags.Encoding != "" {
		c.MotionEncoding = flags.Encoding
	}
	if flags.FrameRate > 0 {
		c.FrameRate = flags.FrameRate
	}
	if flags.StartFrame != nil {
		c.StartFrame = *flags.StartFrame
	}
	if flags.EndFrame != nil {
		end := *flags.EndFrame
		c.EndFrame = &end
	}
	if flags.FrameStep > 0 {
		c.FrameStep = flags.FrameStep
	}
	if flags.Size > 0 {
		c.RenderSize = flags.Size
	}
	if flags.Quality > 0 {
		c.WebPQuality = flags.Quality
	}
	if flags.Workers > 0 {
		c.Workers = flags.Workers
	}
	if flags.Yaw != nil {
		c.CameraYaw = *flags.Yaw
	}
	if flags.Pitch != nil {
		c.CameraPitch = *flags.Pitch
	}

	if c.OutputDir == "" && c.Model != "" {
		c.OutputDir = filepath.Join(filepath.Dir(c.Model), "renders")
	}

	if c.MotionEncoding == "" {
		c.MotionEncoding = "Shift_JIS"
	}
	if c.FrameRate <= 0 {
		c.FrameRate = 30
	}
	if c.EndFrame == nil {
		end := -1
		c.EndFrame = &end
	}
	if c.FrameStep <= 0 {
		c.FrameStep = 1
	}
	if c.RenderSize <= 0 {
		c.RenderSize = 512
	}
	if c.Supersample <= 0 {
		c.Supersample = 2
	}
	if c.WebPQuality <= 0 {
		c.WebPQuality = 90
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.FOV <= 0 {
		c.FOV = 45
	}
	if c.Scale == nil {
		c.Scale = &[3]float32{1, 1, 1}
	}
}

func (c *Config) fromFile(p string) string {
	if p == "" || c.dir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

// FrameRange returns the inclusive frame range clamped to maxFrame.
func (c *Config) FrameRange(maxFrame int) (start, end int) {
	start, end = c.StartFrame, maxFrame
	if c.EndFrame != nil && *c.EndFrame >= 0 && *c.EndFrame < maxFrame {
		end = *c.EndFrame
	}
	if start < 0 {
		start = 0
	}
	return start, end
}

// BackgroundColor parses Background. Empty means transparent.
func (c *Config) BackgroundColor() (color.NRGBA, error) {
	s := strings.TrimPrefix(strings.TrimSpace(c.Background), "#")
	if s == "" {
		return color.NRGBA{}, nil
	}
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("config: background %q: %w", c.Background, ErrInvalid)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("config: background %q: %w", c.Background, ErrInvalid)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// Validate checks a resolved config. needMotion is false for tools that
// can work with the model alone.
func (c *Config) Validate(needMotion bool) error {
	switch {
	case c.Model == "":
		return fmt.Errorf("config: model path required: %w", ErrInvalid)
	case needMotion && c.Motion == "":
		return fmt.Errorf("config: motion path required: %w", ErrInvalid)
	case c.FrameRate <= 0:
		return fmt.Errorf("config: frame_rate %v: %w", c.FrameRate, ErrInvalid)
	case c.Supersample < 1:
		return fmt.Errorf("config: supersample %d: %w", c.Supersample, ErrInvalid)
	case c.WebPQuality > 100:
		return fmt.Errorf("config: webp_quality %d: %w", c.WebPQuality, ErrInvalid)
	case c.EndFrame != nil && *c.EndFrame >= 0 && *c.EndFrame < c.StartFrame:
		return fmt.Errorf("config: end_frame %d before start_frame %d: %w", *c.EndFrame, c.StartFrame, ErrInvalid)
	}
	_, err := c.BackgroundColor()
	return err
}

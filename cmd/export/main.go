package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mmd-pose-renderer/internal/config"
	"mmd-pose-renderer/internal/gltfexport"
	"mmd-pose-renderer/internal/pmx"
	"mmd-pose-renderer/internal/pose"
	"mmd-pose-renderer/internal/skeleton"
	"mmd-pose-renderer/internal/texture"
	"mmd-pose-renderer/internal/vmd"
)

func main() {
	configFile := flag.String("config", "", "Path to a YAML or JSON config file")
	model := flag.String("model", "", "Path to the .pmx model")
	motion := flag.String("motion", "", "Path to the .vmd motion (default: rest pose)")
	encoding := flag.String("encoding", "", "Motion bone name encoding (default: Shift_JIS)")
	frame := flag.Int("frame", 0, "Frame to export")
	output := flag.String("o", "", "Output .gltf or .glb file (default: <model>_<frame>.glb)")
	baked := flag.Bool("baked", false, "Write deformed vertices instead of a skinned mesh")
	noTextures := flag.Bool("no-textures", false, "Do not embed textures")
	flag.Parse()

	var cfg config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	cfg.Resolve(config.Flags{Model: *model, Motion: *motion, Encoding: *encoding})
	if err := cfg.Validate(false); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	m, err := pmx.Load(cfg.Model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading model: %v\n", err)
		os.Exit(1)
	}
	var mo *vmd.Motion
	if cfg.Motion != "" {
		mo, err = vmd.Load(cfg.Motion, vmd.Options{Encoding: cfg.MotionEncoding})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading motion: %v\n", err)
			os.Exit(1)
		}
	}
	tree, err := skeleton.Build(m.Bones)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building skeleton: %v\n", err)
		os.Exit(1)
	}

	ev := pose.New(tree, mo, cfg.FrameRate)
	ev.SeekFrame(*frame)

	opts := gltfexport.Options{Baked: *baked}
	if !*noTextures {
		opts.Textures = texture.NewCache(texture.BuildIndex(m.Dir), nil)
	}
	doc, err := gltfexport.Build(m, tree, ev, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	path := *output
	if path == "" {
		stem := strings.TrimSuffix(filepath.Base(cfg.Model), filepath.Ext(cfg.Model))
		path = filepath.Join(filepath.Dir(cfg.Model), fmt.Sprintf("%s_%05d.glb", stem, *frame))
	}
	if err := gltfexport.Save(doc, path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Exported frame %d: %d nodes, %d materials, %d images → %s\n",
		*frame, len(doc.Nodes), len(doc.Materials), len(doc.Images), path)
}

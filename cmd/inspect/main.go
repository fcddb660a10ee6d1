package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"mmd-pose-renderer/internal/pmx"
	"mmd-pose-renderer/internal/skeleton"
	"mmd-pose-renderer/internal/texture"
	"mmd-pose-renderer/internal/vmd"
)

func main() {
	motionPath := flag.String("motion", "", "Optional .vmd motion to check against the model")
	encoding := flag.String("encoding", "", "Motion bone name encoding (default: Shift_JIS)")
	toonDir := flag.String("toons", "", "Directory holding the shared toon ramps")
	dump := flag.Bool("dump", false, "Dump the parsed structures")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: inspect [-motion file.vmd] [-dump] model.pmx")
		os.Exit(2)
	}

	m, err := pmx.Load(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Model: %s / %s (PMX %.1f, %s)\n", m.Name, m.NameEnglish, m.Header.Version, m.Header.Encoding)
	fmt.Printf("Vertices: %d, Triangles: %d, Textures: %d, Materials: %d, Bones: %d\n",
		len(m.Vertices), len(m.Triangles), len(m.Textures), len(m.Materials), len(m.Bones))

	minX, minY, minZ := math.Inf(1), math.Inf(1), math.Inf(1)
	maxX, maxY, maxZ := math.Inf(-1), math.Inf(-1), math.Inf(-1)
	kinds := map[pmx.WeightKind]int{}
	for _, v := range m.Vertices {
		x, y, z := float64(v.Position[0]), float64(v.Position[1]), float64(v.Position[2])
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
		minZ, maxZ = math.Min(minZ, z), math.Max(maxZ, z)
		kinds[v.Weight.Kind]++
	}
	if len(m.Vertices) > 0 {
		fmt.Printf("  BBox: X[%.2f, %.2f] Y[%.2f, %.2f] Z[%.2f, %.2f]\n", minX, maxX, minY, maxY, minZ, maxZ)
	}
	for _, k := range []pmx.WeightKind{pmx.Rigid, pmx.Linear2, pmx.Linear4, pmx.Spherical} {
		if kinds[k] > 0 {
			fmt.Printf("  %s weights: %d\n", k, kinds[k])
		}
	}

	var toons *texture.Index
	if *toonDir != "" {
		toons = texture.BuildIndex(*toonDir)
	}
	cache := texture.NewCache(texture.BuildIndex(m.Dir), toons)

	fmt.Println("--- Materials ---")
	for _, run := range m.MaterialRuns() {
		mt := m.Materials[run.Material]
		tex := "-"
		if t := mt.Texture; t >= 0 && t < len(m.Textures) {
			tex = m.Textures[t]
			cache.Resolve(tex)
		}
		toon := "-"
		if mt.SharedToon {
			toon = texture.ToonName(mt.Toon)
			cache.ResolveToon(mt.Toon)
		} else if mt.Toon >= 0 && mt.Toon < len(m.Textures) {
			toon = m.Textures[mt.Toon]
			cache.Resolve(toon)
		}
		fmt.Printf("  [%2d] %-24s tris=%-6d diffuse=(%.2f %.2f %.2f %.2f) tex=%s toon=%s\n",
			run.Material, mt.Name, run.End-run.Start,
			mt.Diffuse[0], mt.Diffuse[1], mt.Diffuse[2], mt.Diffuse[3], tex, toon)
	}
	if misses := cache.Misses(); len(misses) > 0 {
		fmt.Printf("  Missing textures (%d):\n", len(misses))
		for _, name := range misses {
			fmt.Printf("    %s\n", name)
		}
	}

	tree, err := skeleton.Build(m.Bones)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("--- Bones ---")
	for _, i := range tree.Order {
		n := tree.Nodes[i]
		b := m.Bones[i]
		extra := ""
		if b.IK != nil {
			extra = fmt.Sprintf(" IK(target=%d links=%d)", b.IK.Target, len(b.IK.Links))
		}
		fmt.Printf("  %s%s [%d] (%.2f, %.2f, %.2f)%s\n",
			strings.Repeat("  ", tree.Depth(i)), n.Name, i, n.RestPos[0], n.RestPos[1], n.RestPos[2], extra)
	}

	var mo *vmd.Motion
	if *motionPath != "" {
		mo, err = vmd.Load(*motionPath, vmd.Options{Encoding: *encoding})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("--- Motion ---")
		fmt.Printf("Target model: %s\n", mo.ModelName)
		fmt.Printf("Keyframes: %d, Bones: %d, Last frame: %d\n", mo.KeyFrameCount(), len(mo.Bones), mo.MaxFrame)
		var unmatched []string
		for _, name := range mo.BoneNames() {
			if _, ok := tree.Lookup(name); !ok {
				unmatched = append(unmatched, name)
			}
		}
		if len(unmatched) > 0 {
			fmt.Printf("  Not in model (%d): %s\n", len(unmatched), strings.Join(unmatched, ", "))
		}
	}

	if *dump {
		cfg := spew.ConfigState{Indent: "  ", DisableCapacities: true, DisablePointerAddresses: true}
		cfg.Dump(m.Header, m.Materials, m.Bones)
		if mo != nil {
			cfg.Dump(mo.Bones)
		}
	}
}

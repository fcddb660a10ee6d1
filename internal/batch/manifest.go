package batch

import (
	"encoding/json"
	"os"
)

// Manifest describes a rendered frame sequence.
type Manifest struct {
	Model     string          `json:"model"`
	Motion    string          `json:"motion"`
	FrameRate float64         `json:"frame_rate"`
	Size      int             `json:"size"`
	Frames    []ManifestEntry `json:"frames"`
}

// ManifestEntry represents one successfully rendered frame.
type ManifestEntry struct {
	Frame int     `json:"frame"`
	Time  float64 `json:"time"`
	Image string  `json:"image"`
}

// WriteManifest writes the manifest for all successful results to path.
func WriteManifest(path string, m Manifest, results []Result) error {
	m.Frames = m.Frames[:0]
	for _, r := range results {
		if !r.Success {
			continue
		}
		m.Frames = append(m.Frames, ManifestEntry{
			Frame: r.Frame,
			Time:  float64(r.Frame) / m.FrameRate,
			Image: r.Image,
		})
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

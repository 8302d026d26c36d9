package canvas

import "strings"

// Integrity returns the percentage of cells not currently glitch-owned.
// The state map is sparse; cells absent from it are healthy by definition.
func Integrity(state map[string]Pixel) float64 {
	const total = Width * Height
	glitched := 0
	for _, pixel := range state {
		if pixel.Owner == GlitchOwner {
			glitched++
		}
	}
	return float64(total-glitched) / float64(total) * 100
}

// Completion returns the percentage of target cells whose live color matches
// the desired color, compared case-insensitively. An empty target is
// vacuously complete.
func Completion(state map[string]Pixel, target map[string]string) float64 {
	if len(target) == 0 {
		return 100
	}
	matched := 0
	for coord, desired := range target {
		live, ok := state[coord]
		if ok && strings.EqualFold(live.Color, desired) {
			matched++
		}
	}
	return float64(matched) / float64(len(target)) * 100
}

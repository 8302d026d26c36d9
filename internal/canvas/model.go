package canvas

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Canvas dimensions and sentinel pixel values shared with clients.
const (
	Width  = 50
	Height = 50

	DefaultColor = "#FFFFFF"
	GlitchColor  = "#FFFFFF"
	GlitchOwner  = "The Glitch"
	BlankOwner   = "Nobody"
)

// AllowedColors is the palette offered by the client picker. The server does
// not restrict paints to it; any well-formed hex color is accepted.
var AllowedColors = []string{
	"#FFFFFF",
	"#000000",
	"#FF4500",
	"#FFD635",
	"#7317FF",
	"#0079D3",
	"#46A508",
	"#F58AC8",
}

var (
	ErrInvalidCoord = errors.New("canvas: coordinate out of bounds")
	ErrInvalidColor = errors.New("canvas: color must be a 6-digit hex value")
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Pixel is a single canvas cell. Absent cells read as the default pixel.
type Pixel struct {
	Color string `json:"color"`
	Owner string `json:"owner"`
}

// DefaultPixel is the implicit value of every cell never painted or decayed.
func DefaultPixel() Pixel {
	return Pixel{Color: DefaultColor, Owner: BlankOwner}
}

// GlitchPixel is the value decay writes into corrupted cells.
func GlitchPixel() Pixel {
	return Pixel{Color: GlitchColor, Owner: GlitchOwner}
}

// InBounds reports whether (x, y) lies on the canvas.
func InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < Width && y < Height
}

// FormatCoord renders the canonical "x:y" key for a cell.
func FormatCoord(x, y int) string {
	return fmt.Sprintf("%d:%d", x, y)
}

// ParseCoord parses an "x:y" key and validates it against the canvas bounds.
func ParseCoord(coord string) (int, int, error) {
	parts := strings.SplitN(coord, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCoord, coord)
	}
	x, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCoord, coord)
	}
	y, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCoord, coord)
	}
	if !InBounds(x, y) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCoord, coord)
	}
	return x, y, nil
}

// ValidColor reports whether value is a "#RRGGBB" hex color.
func ValidColor(value string) bool {
	return colorPattern.MatchString(value)
}

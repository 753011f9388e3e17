// Package palette derives a per-subcategory color palette from a base color.
package palette

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidColor is returned for base colors that are neither hex nor rgb(a).
var ErrInvalidColor = errors.New("invalid color")

const (
	minLightness = 30
	maxLightness = 70
	hueStep      = 30
	lightStep    = 15
	lightOffset  = -10
)

// HSL is a color with hue in degrees and saturation/lightness in percent.
type HSL struct {
	H, S, L int
}

// String renders the color as a CSS hsl() value.
func (c HSL) String() string {
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", c.H, c.S, c.L)
}

// ParseColor accepts #RRGGBB, #RGB, rgb(r, g, b) and rgba(r, g, b, a).
// The alpha channel is ignored.
func ParseColor(s string) (HSL, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	var (
		r, g, b int
		err     error
	)
	switch {
	case strings.HasPrefix(s, "#"):
		r, g, b, err = parseHex(s[1:])
	case strings.HasPrefix(s, "rgba(") || strings.HasPrefix(s, "rgb("):
		r, g, b, err = parseRGB(s)
	default:
		err = fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	if err != nil {
		return HSL{}, err
	}
	return rgbToHSL(r, g, b), nil
}

func parseHex(h string) (int, int, int, error) {
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return 0, 0, 0, fmt.Errorf("%w: hex %q", ErrInvalidColor, h)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: hex %q", ErrInvalidColor, h)
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), nil
}

func parseRGB(s string) (int, int, int, error) {
	open := strings.IndexByte(s, '(')
	if !strings.HasSuffix(s, ")") || open < 0 {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	parts := strings.Split(s[open+1:len(s)-1], ",")
	if len(parts) != 3 && len(parts) != 4 {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	var ch [3]int
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || n < 0 || n > 255 {
			return 0, 0, 0, fmt.Errorf("%w: channel %q", ErrInvalidColor, parts[i])
		}
		ch[i] = n
	}
	if len(parts) == 4 {
		if _, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64); err != nil {
			return 0, 0, 0, fmt.Errorf("%w: alpha %q", ErrInvalidColor, parts[3])
		}
	}
	return ch[0], ch[1], ch[2], nil
}

func rgbToHSL(r8, g8, b8 int) HSL {
	r, g, b := float64(r8)/255, float64(g8)/255, float64(b8)/255
	mx := math.Max(r, math.Max(g, b))
	mn := math.Min(r, math.Min(g, b))
	l := (mx + mn) / 2

	var h, s float64
	if mx != mn {
		d := mx - mn
		if l > 0.5 {
			s = d / (2 - mx - mn)
		} else {
			s = d / (mx + mn)
		}
		switch mx {
		case r:
			h = (g - b) / d
			if g < b {
				h += 6
			}
		case g:
			h = (b-r)/d + 2
		default:
			h = (r-g)/d + 4
		}
		h /= 6
	}

	return HSL{
		H: int(math.Round(h*360)) % 360,
		S: int(math.Round(s * 100)),
		L: int(math.Round(l * 100)),
	}
}

// Derive assigns a color to each subcategory by rotating hue and stepping
// lightness from the base color. The i-th name gets
// hue = (H + 30i) mod 360 and lightness = clamp(L - 10 + 15i, 30, 70).
// The result depends on the order of names; a repeated name keeps the
// color of its last position.
func Derive(subcategories []string, base string) (map[string]string, error) {
	hsl, err := ParseColor(base)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(subcategories))
	for i, name := range subcategories {
		out[name] = Shade(hsl, i).String()
	}
	return out, nil
}

// Shade returns the color for position i relative to base.
func Shade(base HSL, i int) HSL {
	return HSL{
		H: (base.H + i*hueStep) % 360,
		S: base.S,
		L: clamp(base.L+lightOffset+i*lightStep, minLightness, maxLightness),
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

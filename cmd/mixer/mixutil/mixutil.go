// Package mixutil holds small formatting and color helpers shared by the
// mixer and its front ends.
package mixutil

import (
	"fmt"
	"html"
	"math"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lucasb-eyer/go-colorful"
)

type palette struct {
	hue        int
	satRange   [2]int
	lightRange [2]int
}

var softPalettes = []palette{
	{200, [2]int{60, 75}, [2]int{80, 90}},
	{150, [2]int{55, 70}, [2]int{82, 92}},
	{280, [2]int{50, 65}, [2]int{85, 93}},
	{30, [2]int{65, 80}, [2]int{80, 88}},
	{340, [2]int{60, 75}, [2]int{85, 92}},
	{180, [2]int{55, 70}, [2]int{83, 91}},
	{50, [2]int{70, 85}, [2]int{78, 86}},
	{260, [2]int{50, 65}, [2]int{84, 92}},
	{90, [2]int{60, 75}, [2]int{81, 89}},
	{320, [2]int{55, 70}, [2]int{86, 93}},
	{170, [2]int{60, 75}, [2]int{82, 90}},
	{40, [2]int{65, 80}, [2]int{79, 87}},
	{210, [2]int{55, 70}, [2]int{84, 92}},
	{300, [2]int{50, 65}, [2]int{85, 91}},
	{120, [2]int{60, 75}, [2]int{80, 88}},
}

// SoftColor picks a pastel color as a CSS hsl() string. A nil rng uses the
// global source.
func SoftColor(rng *rand.Rand) string {
	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}
	p := softPalettes[intN(len(softPalettes))]
	hue := (p.hue + intN(20) - 10 + 360) % 360
	sat := p.satRange[0] + intN(p.satRange[1]-p.satRange[0])
	light := p.lightRange[0] + intN(p.lightRange[1]-p.lightRange[0])
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", hue, sat, light)
}

var hslPattern = regexp.MustCompile(`hsl\((\d+),\s*(\d+)%,\s*(\d+)%\)`)

func parseHSL(color string) (h, s, l int, ok bool) {
	m := hslPattern.FindStringSubmatch(color)
	if m == nil {
		return 0, 0, 0, false
	}
	h, _ = strconv.Atoi(m[1])
	s, _ = strconv.Atoi(m[2])
	l, _ = strconv.Atoi(m[3])
	return h, s, l, true
}

// DarkerShade lowers an hsl() color's lightness by 15, not going below 50.
// Other colors are returned unchanged.
func DarkerShade(color string) string {
	h, s, l, ok := parseHSL(color)
	if !ok {
		return color
	}
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", h, s, max(l-15, 50))
}

// ColorHex converts an hsl() or #rrggbb color to #rrggbb.
func ColorHex(color string) (string, error) {
	color = strings.TrimSpace(color)
	if strings.HasPrefix(color, "#") {
		c, err := colorful.Hex(color)
		if err != nil {
			return "", err
		}
		return c.Hex(), nil
	}
	h, s, l, ok := parseHSL(color)
	if !ok {
		return "", fmt.Errorf("unsupported color %q", color)
	}
	return colorful.Hsl(float64(h), float64(s)/100, float64(l)/100).Clamped().Hex(), nil
}

// EscapeHTML escapes text for inclusion in HTML.
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}

// FormatDuration renders d as m:ss. Negative durations render as 0:00.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders a byte count with binary units, e.g. "1.5 KB".
func FormatFileSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	i = min(i, len(sizeUnits)-1)
	v := math.Round(float64(n)/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// Package render draws session snapshots. It only reads the immutable
// snapshot, so it can run on any goroutine.
package render

import (
	"image"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"arena-shooter/internal/game"
)

// Palette
var (
	colorBackground = color.RGBA{12, 12, 28, 255}
	colorGrid       = color.RGBA{30, 30, 45, 255}
	colorBorder     = color.RGBA{90, 90, 130, 255}
	colorEnemy      = color.RGBA{255, 82, 82, 255}
	colorFrozen     = color.RGBA{100, 181, 246, 255}
	colorPickup     = color.RGBA{105, 240, 174, 255}
	colorPlayer     = color.RGBA{255, 255, 255, 255}
	colorRemote     = color.RGBA{255, 213, 79, 255}
	colorDead       = color.RGBA{110, 110, 110, 255}
	colorHPBack     = color.RGBA{60, 0, 0, 255}
	colorHP         = color.RGBA{76, 175, 80, 255}
	colorText       = color.RGBA{220, 220, 235, 255}
)

const (
	// DefaultSize is the minimap edge in pixels.
	DefaultSize = 256
	// MaxSize caps caller-requested sizes.
	MaxSize = 1024

	margin    = 1.1 // world half-extent shown around the arena bound
	minRadius = 1.5 // pixels, so tiny entities stay visible
	labelMin  = 128 // smaller maps skip the score label
)

// Minimap renders the snapshot as a square top-down map centered on the
// arena origin. A size outside (0, MaxSize] falls back to DefaultSize.
func Minimap(snap *game.SessionSnapshot, size int) image.Image {
	return draw(snap, size).Image()
}

// WritePNG renders the snapshot and encodes it as PNG.
func WritePNG(w io.Writer, snap *game.SessionSnapshot, size int) error {
	return draw(snap, size).EncodePNG(w)
}

func draw(snap *game.SessionSnapshot, size int) *gg.Context {
	if size <= 0 || size > MaxSize {
		size = DefaultSize
	}
	dc := gg.NewContext(size, size)
	m := newMapper(snap.ArenaBound, size)

	dc.SetColor(colorBackground)
	dc.Clear()
	drawGrid(dc, m, snap.ArenaBound)

	dc.SetColor(colorBorder)
	dc.SetLineWidth(2)
	x0, y0 := m.point(-snap.ArenaBound, -snap.ArenaBound)
	dc.DrawRectangle(x0, y0, 2*snap.ArenaBound*m.scale, 2*snap.ArenaBound*m.scale)
	dc.Stroke()

	for _, p := range snap.Pickups {
		dc.SetColor(colorPickup)
		drawDot(dc, m, p.X, p.Y, p.Radius)
	}
	for _, p := range snap.Particles {
		setHex(dc, p.Color, p.Life)
		drawDot(dc, m, p.X, p.Y, 0.1)
	}
	for _, e := range snap.Enemies {
		if e.Frozen {
			dc.SetColor(colorFrozen)
		} else {
			dc.SetColor(colorEnemy)
		}
		drawDot(dc, m, e.X, e.Y, e.Radius)
	}
	for _, group := range [][]game.BulletView{snap.EnemyBullets, snap.RemoteBullets, snap.Bullets} {
		for _, b := range group {
			setHex(dc, b.Color, b.Alpha)
			drawDot(dc, m, b.X, b.Y, b.Radius)
		}
	}
	for _, rp := range snap.RemotePlayers {
		if rp.Dead {
			dc.SetColor(colorDead)
		} else {
			dc.SetColor(colorRemote)
		}
		drawDot(dc, m, rp.X, rp.Y, game.PlayerRadius)
	}

	drawPlayer(dc, m, snap.Player)
	drawHealthBar(dc, snap.Player, size)
	drawScore(dc, snap.Player, size)
	return dc
}

type mapper struct {
	center float64
	scale  float64
}

func newMapper(bound float64, size int) mapper {
	if bound <= 0 {
		bound = 1
	}
	return mapper{center: float64(size) / 2, scale: float64(size) / (2 * bound * margin)}
}

func (m mapper) point(x, y float64) (float64, float64) {
	return m.center + x*m.scale, m.center + y*m.scale
}

func (m mapper) radius(r float64) float64 {
	return math.Max(r*m.scale, minRadius)
}

func drawDot(dc *gg.Context, m mapper, x, y, r float64) {
	px, py := m.point(x, y)
	dc.DrawCircle(px, py, m.radius(r))
	dc.Fill()
}

func drawGrid(dc *gg.Context, m mapper, bound float64) {
	step := 5.0
	if bound > 50 {
		step = 10
	}
	dc.SetColor(colorGrid)
	dc.SetLineWidth(1)
	for v := -math.Floor(bound/step) * step; v <= bound; v += step {
		x1, y1 := m.point(v, -bound)
		x2, y2 := m.point(v, bound)
		dc.DrawLine(x1, y1, x2, y2)
		x1, y1 = m.point(-bound, v)
		x2, y2 = m.point(bound, v)
		dc.DrawLine(x1, y1, x2, y2)
	}
	dc.Stroke()
}

func drawPlayer(dc *gg.Context, m mapper, p game.PlayerView) {
	if p.Dead {
		dc.SetColor(colorDead)
	} else {
		dc.SetColor(colorPlayer)
	}
	drawDot(dc, m, p.X, p.Y, p.Radius)

	px, py := m.point(p.X, p.Y)
	r := m.radius(p.Radius)
	dc.SetLineWidth(2)
	dc.DrawLine(px, py, px+math.Cos(p.Aim)*r*2.5, py+math.Sin(p.Aim)*r*2.5)
	dc.Stroke()
}

func drawHealthBar(dc *gg.Context, p game.PlayerView, size int) {
	if p.MaxHP <= 0 {
		return
	}
	w := float64(size) * 0.3
	frac := math.Max(0, math.Min(1, p.HP/p.MaxHP))
	dc.SetColor(colorHPBack)
	dc.DrawRectangle(6, 6, w, 5)
	dc.Fill()
	dc.SetColor(colorHP)
	dc.DrawRectangle(6, 6, w*frac, 5)
	dc.Fill()
}

// drawScore writes the player's score in the top-right corner.
func drawScore(dc *gg.Context, p game.PlayerView, size int) {
	if size < labelMin {
		return
	}
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(colorText)
	dc.DrawStringAnchored("score "+strconv.Itoa(p.Score), float64(size)-6, 9, 1, 0.5)
}

// setHex sets a "#rrggbb" color with the given alpha. Unparseable colors
// fall back to white.
func setHex(dc *gg.Context, hex string, alpha float64) {
	r, g, b, ok := parseHex(hex)
	if !ok {
		r, g, b = 255, 255, 255
	}
	alpha = math.Max(0, math.Min(1, alpha))
	dc.SetRGBA255(int(r), int(g), int(b), int(alpha*255))
}

func parseHex(s string) (r, g, b uint8, ok bool) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), true
}

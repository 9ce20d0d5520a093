package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"arena-shooter/internal/game"
	"arena-shooter/internal/protocol"
)

func testSnapshot() *game.SessionSnapshot {
	return &game.SessionSnapshot{
		ArenaBound: 20,
		Player:     game.PlayerView{Username: "alice", X: 0, Y: 0, Radius: 0.5, HP: 50, MaxHP: 100, Aim: 0},
		Enemies: []game.EnemyView{
			{ID: "e1", X: 10, Y: 0, Radius: 0.6, HP: 20, MaxHP: 20},
			{ID: "e2", X: -10, Y: 0, Radius: 0.6, HP: 20, MaxHP: 20, Frozen: true},
		},
		Pickups:       []game.PickupView{{X: 0, Y: 10, Radius: 0.5, Amount: 10}},
		RemotePlayers: []protocol.PlayerState{{Username: "bob", X: 0, Y: -10, HP: 100, MaxHP: 100}},
		Bullets:       []game.BulletView{{X: 5, Y: 5, Radius: 0.3, Color: "#ffd54f", Alpha: 1}},
	}
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestMinimapPlacesEntities(t *testing.T) {
	// 220px over a 44-unit window: 5px per world unit, origin at (110,110).
	img := Minimap(testSnapshot(), 220)
	if b := img.Bounds(); b.Dx() != 220 || b.Dy() != 220 {
		t.Fatalf("Unexpected bounds %v", b)
	}

	tests := []struct {
		name string
		x, y int
		want color.RGBA
	}{
		{"enemy", 160, 110, colorEnemy},
		{"frozen enemy", 60, 110, colorFrozen},
		{"pickup", 110, 160, colorPickup},
		{"remote player", 110, 60, colorRemote},
		{"player", 110, 110, colorPlayer},
		{"bullet", 135, 135, color.RGBA{0xff, 0xd5, 0x4f, 255}},
		{"outside arena", 2, 218, colorBackground},
	}
	for _, tt := range tests {
		if got := rgbaAt(img, tt.x, tt.y); got != tt.want {
			t.Errorf("%s at (%d,%d): got %v, want %v", tt.name, tt.x, tt.y, got, tt.want)
		}
	}
}

func TestMinimapDeadPlayer(t *testing.T) {
	snap := testSnapshot()
	snap.Player.Dead = true
	img := Minimap(snap, 220)
	if got := rgbaAt(img, 110, 110); got != colorDead {
		t.Errorf("Dead player should be gray, got %v", got)
	}
}

func TestMinimapScoreLabel(t *testing.T) {
	low := testSnapshot()
	high := testSnapshot()
	high.Player.Score = 98765

	changed := func(size int) bool {
		a, b := Minimap(low, size), Minimap(high, size)
		for y := 0; y < 18; y++ {
			for x := size / 2; x < size; x++ {
				if rgbaAt(a, x, y) != rgbaAt(b, x, y) {
					return true
				}
			}
		}
		return false
	}
	if !changed(220) {
		t.Error("Expected the score label to change the top-right corner")
	}
	if changed(labelMin - 1) {
		t.Error("Small maps should not draw the score label")
	}
}

func TestMinimapSizeFallback(t *testing.T) {
	for _, size := range []int{0, -5, MaxSize + 1} {
		img := Minimap(testSnapshot(), size)
		if img.Bounds().Dx() != DefaultSize {
			t.Errorf("size %d: expected fallback to %d, got %d", size, DefaultSize, img.Bounds().Dx())
		}
	}
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, testSnapshot(), 64); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Bounds().Dx() != 64 {
		t.Errorf("Unexpected width %d", img.Bounds().Dx())
	}
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		r, g, b uint8
		ok      bool
	}{
		{"#ff1744", 0xff, 0x17, 0x44, true},
		{"4fc3f7", 0x4f, 0xc3, 0xf7, true},
		{"#fff", 0, 0, 0, false},
		{"#zzzzzz", 0, 0, 0, false},
	}
	for _, tt := range tests {
		r, g, b, ok := parseHex(tt.in)
		if ok != tt.ok || r != tt.r || g != tt.g || b != tt.b {
			t.Errorf("parseHex(%q) = %d,%d,%d,%v", tt.in, r, g, b, ok)
		}
	}
}

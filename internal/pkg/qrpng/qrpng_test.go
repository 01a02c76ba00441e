package qrpng

import (
	"bytes"
	"image/png"
	"testing"
)

func TestEncode(t *testing.T) {
	data, err := Encode("https://www.google.com/maps/search/?api=1&query=41.715100,44.827100", 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("not a png: %v", err)
	}
	if w := img.Bounds().Dx(); w != 200 {
		t.Errorf("expected 200px wide, got %d", w)
	}
}

func TestEncode_DefaultSize(t *testing.T) {
	data, err := Encode("fuelmap", 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	img, _ := png.Decode(bytes.NewReader(data))
	if w := img.Bounds().Dx(); w != DefaultSize {
		t.Errorf("expected %d px, got %d", DefaultSize, w)
	}
}

func TestEncode_Empty(t *testing.T) {
	if _, err := Encode("", 256); err == nil {
		t.Error("expected error for empty content")
	}
}

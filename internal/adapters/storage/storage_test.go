package storage

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestValidateImage(t *testing.T) {
	pngData := testPNG(t, 4, 3)

	tests := []struct {
		name    string
		data    []byte
		max     int64
		want    string
		wantErr bool
	}{
		{"png accepted", pngData, 0, "image/png", false},
		{"empty", nil, 0, "", true},
		{"too large", pngData, 10, "", true},
		{"text rejected", []byte("hello world, definitely not an image"), 0, "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateImage(tc.data, tc.max)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("ValidateImage() = %q, %v; want %q", got, err, tc.want)
			}
		})
	}
}

func TestDimensionsAndInspect(t *testing.T) {
	data := testPNG(t, 4, 3)

	w, h, format := Dimensions(data)
	if w != 4 || h != 3 || format != "png" {
		t.Fatalf("Dimensions() = %d, %d, %q", w, h, format)
	}

	meta := InspectPhoto(data)
	if len(meta.ContentHash) != 64 {
		t.Fatalf("expected 32-byte hex hash, got %q", meta.ContentHash)
	}
	if meta.CapturedAt != nil || meta.GPSLat != nil {
		t.Fatal("png without EXIF must not report capture data")
	}
	if again := InspectPhoto(data); again.ContentHash != meta.ContentHash {
		t.Fatal("hash must be deterministic")
	}
}

func TestObjectKeyIsNamespacedAndUnique(t *testing.T) {
	a := ObjectKey("pickups/abc", "My Photo.JPG")
	b := ObjectKey("pickups/abc", "My Photo.JPG")

	if !strings.HasPrefix(a, "pickups/abc/My-Photo_") || !strings.HasSuffix(a, ".jpg") {
		t.Fatalf("unexpected key %q", a)
	}
	if a == b {
		t.Fatal("keys must be unique per upload")
	}
	if got := ObjectKey("x", "../../etc/passwd"); !strings.HasPrefix(got, "x/passwd_") {
		t.Fatalf("path traversal not stripped: %q", got)
	}
}

package storage

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"  // register decoder for DecodeConfig
	_ "image/jpeg" // register decoder for DecodeConfig
	_ "image/png"  // register decoder for DecodeConfig
	"net/http"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/crypto/blake2b"
)

// DefaultMaxPhotoSize is the upload limit for a single photo.
const DefaultMaxPhotoSize = 10 << 20

// AllowedImageTypes is the allow-list for pickup photos, keyed by sniffed MIME.
var AllowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// PhotoMeta is derived from the photo bytes at upload time.
type PhotoMeta struct {
	ContentHash string     `json:"contentHash"`
	CapturedAt  *time.Time `json:"capturedAt,omitempty"`
	GPSLat      *float64   `json:"gpsLat,omitempty"`
	GPSLng      *float64   `json:"gpsLng,omitempty"`
}

// ValidateImage sniffs the content type of data and checks it against the
// allow-list and the size limit. The sniffed type is returned; the client's
// declared type is never trusted.
func ValidateImage(data []byte, maxSize int64) (string, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxPhotoSize
	}
	if len(data) == 0 {
		return "", fmt.Errorf("file is empty")
	}
	if int64(len(data)) > maxSize {
		return "", fmt.Errorf("file size %d bytes exceeds maximum of %d bytes", len(data), maxSize)
	}

	sniffed := strings.TrimSpace(strings.Split(http.DetectContentType(data), ";")[0])
	if _, ok := AllowedImageTypes[sniffed]; !ok {
		return "", fmt.Errorf("content type %q is not an allowed image type", sniffed)
	}
	return sniffed, nil
}

// Dimensions reads width, height and format from the image header. Unknown
// formats report zeros.
func Dimensions(data []byte) (int, int, string) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, formatFromSniff(data)
	}
	return cfg.Width, cfg.Height, format
}

// InspectPhoto hashes the bytes and extracts EXIF capture time and GPS when
// present.
func InspectPhoto(data []byte) PhotoMeta {
	sum := blake2b.Sum256(data)
	meta := PhotoMeta{ContentHash: hex.EncodeToString(sum[:])}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return meta
	}
	if taken, err := x.DateTime(); err == nil {
		utc := taken.UTC()
		meta.CapturedAt = &utc
	}
	if lat, lng, err := x.LatLong(); err == nil {
		meta.GPSLat = &lat
		meta.GPSLng = &lng
	}
	return meta
}

func formatFromSniff(data []byte) string {
	sniffed := strings.Split(http.DetectContentType(data), ";")[0]
	if strings.HasPrefix(sniffed, "image/") {
		return strings.TrimPrefix(sniffed, "image/")
	}
	return ""
}

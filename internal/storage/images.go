package storage

import (
	"net/url"
	"strconv"
	"strings"
)

// PlaceholderURL stands in for a method without an image.
const PlaceholderURL = "https://placehold.co/400x300"

// Variants renders image URLs with transformation parameters
// (width, height, quality, format, resize) for images under Base. URLs
// from anywhere else are returned untouched, since nobody else understands
// the parameters.
type Variants struct {
	Base string
}

// Thumbnail is a 400x300 AVIF at quality 50, cropped to cover.
func (v Variants) Thumbnail(imageURL string) string {
	if imageURL == "" {
		return PlaceholderURL
	}
	return v.transform(imageURL, map[string]string{
		"width":   "400",
		"height":  "300",
		"quality": "50",
		"format":  "avif",
		"resize":  "cover",
	}, imageURL)
}

// LQIP is a tiny quality-10 AVIF for blur-up loading. It is "" when there is
// no image or the image is not ours.
func (v Variants) LQIP(imageURL string) string {
	if imageURL == "" {
		return ""
	}
	return v.transform(imageURL, map[string]string{
		"width":   "20",
		"height":  "9",
		"quality": "10",
		"format":  "avif",
	}, "")
}

// FullSize keeps the dimensions and asks for AVIF at the given quality
// (80 when quality <= 0).
func (v Variants) FullSize(imageURL string, quality int) string {
	if imageURL == "" {
		return PlaceholderURL
	}
	if quality <= 0 {
		quality = 80
	}
	return v.transform(imageURL, map[string]string{
		"quality": strconv.Itoa(quality),
		"format":  "avif",
	}, imageURL)
}

func (v Variants) transform(imageURL string, params map[string]string, fallback string) string {
	base := strings.TrimRight(v.Base, "/")
	if base == "" || !strings.HasPrefix(imageURL, base+"/") {
		return fallback
	}
	u, err := url.Parse(imageURL)
	if err != nil {
		return fallback
	}
	q := u.Query()
	for k, val := range params {
		q.Set(k, val)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

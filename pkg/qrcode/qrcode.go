// Package qrcode builds pass verification URLs and renders them as coloured
// QR PNGs.
package qrcode

import (
	"errors"
	"fmt"
	"image/color"
	"net/url"
	"strings"

	"github.com/google/go-querystring/query"
	goqr "github.com/skip2/go-qrcode"
)

const (
	DefaultSize = 400
	minSize     = 64
	maxSize     = 2048
)

var ErrInvalidColor = errors.New("invalid hex colour")

type verifyQuery struct {
	ID string `url:"id"`
}

// VerifyURL returns <baseURL>/verify?id=<id>.
func VerifyURL(baseURL, id string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base url %q: scheme and host required", baseURL)
	}
	v, err := query.Values(verifyQuery{ID: id})
	if err != nil {
		return "", err
	}
	u.Path += "/verify"
	u.RawQuery = v.Encode()
	return u.String(), nil
}

// ParseHexColor parses "#RRGGBB".
func ParseHexColor(s string) (color.RGBA, error) {
	var c color.RGBA
	if len(s) != 7 || s[0] != '#' {
		return c, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	c.A = 0xff
	return c, nil
}

// PNG encodes content as a QR code drawn in fg on white. size is clamped to
// a sane range; zero means DefaultSize.
func PNG(content, fg string, size int) ([]byte, error) {
	fgColor, err := ParseHexColor(fg)
	if err != nil {
		return nil, err
	}
	switch {
	case size == 0:
		size = DefaultSize
	case size < minSize:
		size = minSize
	case size > maxSize:
		size = maxSize
	}

	q, err := goqr.New(content, goqr.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr: %w", err)
	}
	q.ForegroundColor = fgColor
	q.BackgroundColor = color.White
	return q.PNG(size)
}

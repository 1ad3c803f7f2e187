package qrcode

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyURL(t *testing.T) {
	got, err := VerifyURL("https://gate.example.edu/", "3f0c8a7e-5b7a-4c1e-9a52-0e2d7d2f1b11")
	require.NoError(t, err)
	assert.Equal(t, "https://gate.example.edu/verify?id=3f0c8a7e-5b7a-4c1e-9a52-0e2d7d2f1b11", got)

	got, err = VerifyURL("http://localhost:8080/app", "a b")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/app/verify?id=a+b", got)

	_, err = VerifyURL("not a url", "x")
	assert.Error(t, err)
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#800000")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x80), c.R)
	assert.Equal(t, uint8(0), c.G)

	for _, bad := range []string{"", "800000", "#80000", "#zzzzzz"} {
		_, err := ParseHexColor(bad)
		assert.ErrorIs(t, err, ErrInvalidColor, bad)
	}
}

func TestPNGUsesForeground(t *testing.T) {
	data, err := PNG("http://localhost/verify?id=1", "#007BFF", 200)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())

	found := false
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y && !found; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r>>8 == 0x00 && g>>8 == 0x7b && bl>>8 == 0xff {
				found = true
				break
			}
		}
	}
	assert.True(t, found, "expected a module drawn in #007BFF")
}

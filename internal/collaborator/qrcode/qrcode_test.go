package qrcode

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tableside/internal/config"
)

func TestLinkNormalisesBase(t *testing.T) {
	cases := map[string]string{
		"bar.example.com":          "http://bar.example.com/#/client?table=3",
		"https://bar.example.com/": "https://bar.example.com/#/client?table=3",
		" http://10.0.0.2:3000 ":   "http://10.0.0.2:3000/#/client?table=3",
	}
	for base, want := range cases {
		assert.Equal(t, want, Link(base, 3), base)
	}
}

func TestCodeBuildsImageURL(t *testing.T) {
	g := New(config.Config{QRCode: config.QRCode{
		BaseURL:       "https://bar.example.com",
		ImageEndpoint: "https://api.qrserver.com/v1/create-qr-code/",
		Size:          400,
	}})

	code := g.Code("", 7)
	assert.Equal(t, "https://bar.example.com/#/client?table=7", code.Link)

	u, err := url.Parse(code.ImageURL)
	require.NoError(t, err)
	assert.Equal(t, "api.qrserver.com", u.Host)
	assert.Equal(t, "400x400", u.Query().Get("size"))
	assert.Equal(t, code.Link, u.Query().Get("data"))

	assert.Equal(t, "http://other/#/client?table=7", g.Code("other/", 7).Link)
}

package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosterURL(t *testing.T) {
	u, err := PosterURL("http://127.0.0.1:8080")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080/event?poster=1", u)

	u, err = PosterURL("https://laguincheuse.fr/anything?x=1#top")
	require.NoError(t, err)
	assert.Equal(t, "https://laguincheuse.fr/event?poster=1", u)

	_, err = PosterURL("ftp://example.com")
	assert.Error(t, err)
	_, err = PosterURL("://bad")
	assert.Error(t, err)
}

func TestPosterOptionsDefaults(t *testing.T) {
	o := PosterOptions{BaseURL: "http://x", OutputPath: "out.png"}
	require.NoError(t, o.normalize())
	assert.Equal(t, DefaultWidth, o.Width)
	assert.Equal(t, DefaultHeight, o.Height)
	assert.Equal(t, 30*time.Second, o.Timeout)
}

func TestCapturePosterValidatesBeforeLaunching(t *testing.T) {
	err := CapturePoster(context.Background(), PosterOptions{OutputPath: "out.png"})
	assert.ErrorContains(t, err, "BaseURL")

	err = CapturePoster(context.Background(), PosterOptions{BaseURL: "http://x"})
	assert.ErrorContains(t, err, "OutputPath")

	err = CapturePoster(context.Background(), PosterOptions{BaseURL: "gopher://x", OutputPath: "out.png"})
	assert.ErrorContains(t, err, "unsupported scheme")
}

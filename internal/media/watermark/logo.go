package watermark

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "golang.org/x/image/webp"
)

const maxLogoBytes = 8 << 20

// LogoLoader fetches and decodes logo images by URL, keeping recently used
// logos decoded in memory.
type LogoLoader struct {
	client *http.Client
	cache  *lru.Cache[string, image.Image]
}

func NewLogoLoader(client *http.Client, cacheSize int) (*LogoLoader, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cacheSize <= 0 {
		cacheSize = 16
	}
	cache, err := lru.New[string, image.Image](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("logo cache: %w", err)
	}
	return &LogoLoader{client: client, cache: cache}, nil
}

// Load returns the logo for s, or nil when s does not need one.
func (l *LogoLoader) Load(ctx context.Context, s Settings) (image.Image, error) {
	if !s.Enabled || s.Type != TypeLogo || s.LogoURL == "" {
		return nil, nil
	}
	if img, ok := l.cache.Get(s.LogoURL); ok {
		return img, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.LogoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("logo request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch logo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch logo: unexpected status %d", resp.StatusCode)
	}

	img, err := imaging.Decode(io.LimitReader(resp.Body, maxLogoBytes))
	if err != nil {
		return nil, fmt.Errorf("decode logo: %w", err)
	}
	l.cache.Add(s.LogoURL, img)
	return img, nil
}

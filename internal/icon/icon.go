package icon

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
)

//go:embed assets/*.svg
var assetFiles embed.FS

// Supersampling factor. Shapes are rasterized larger and scaled down,
// which smooths the small notification badge.
const oversample = 4

type cacheKey struct {
	name string
	size int
}

var (
	cache   = map[cacheKey][]byte{}
	cacheMu sync.RWMutex
)

// Render rasterizes the named asset (without extension) to a size×size
// RGBA image.
func Render(name string, size int) (image.Image, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid icon size %d", size)
	}
	data, err := assetFiles.ReadFile("assets/" + name + ".svg")
	if err != nil {
		return nil, fmt.Errorf("read icon %s: %w", name, err)
	}
	ic, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse icon %s: %w", name, err)
	}

	big := size * oversample
	ic.SetTarget(0, 0, float64(big), float64(big))
	src := image.NewRGBA(image.Rect(0, 0, big, big))
	scanner := rasterx.NewScannerGV(big, big, src, src.Bounds())
	ic.Draw(rasterx.NewDasher(big, big, scanner), 1.0)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst, nil
}

// PNG returns the encoded icon, cached per name and size.
func PNG(name string, size int) ([]byte, error) {
	key := cacheKey{name: name, size: size}
	cacheMu.RLock()
	b, ok := cache[key]
	cacheMu.RUnlock()
	if ok {
		return b, nil
	}
	img, err := Render(name, size)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode icon: %w", err)
	}
	b = buf.Bytes()
	cacheMu.Lock()
	cache[key] = b
	cacheMu.Unlock()
	return b, nil
}

// DataURI returns the icon as a base64 data URI for notification payloads.
func DataURI(name string, size int) (string, error) {
	b, err := PNG(name, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b), nil
}

// Speaker is the badge shown on plugin notifications.
func Speaker() string {
	uri, err := DataURI("speaker", 32)
	if err != nil {
		return ""
	}
	return uri
}

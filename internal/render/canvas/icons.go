package canvas

import (
	"fmt"
	"image"
	"image/png"
	"os"
)

// iconCache holds the icons decoded during one Render call.
type iconCache map[string]image.Image

func (c iconCache) get(path string) (image.Image, error) {
	if img, ok := c[path]; ok {
		return img, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open icon: %w", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode icon %s: %w", path, err)
	}
	c[path] = img
	return img, nil
}

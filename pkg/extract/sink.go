package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/anthonynsimon/bild/imgio"

	"github.com/goopsie/glacierFileTools/pkg/texture"
)

// TextureOutput selects how DirSink writes decoded textures.
type TextureOutput int

const (
	// TextureRaw writes textures like any other resource.
	TextureRaw TextureOutput = iota
	// TexturePNG writes the top mip of every slice as PNG.
	TexturePNG
	// TextureDDS writes the pixel payload with a DDS header.
	TextureDDS
	// TextureTony writes the top level in the TONY container.
	TextureTony
)

// DirSink returns a Sink that writes each resource's decoded bytes to
// dir/<TYPE>/<id>.<type>. Textures decoded by the run are additionally
// written in the requested form.
func DirSink(dir string, textures TextureOutput) Sink {
	dirs := &dirCache{created: make(map[string]struct{})}
	return func(ctx context.Context, out *Output) error {
		typ := out.Item.Type.String()
		basePath := filepath.Join(dir, typ)
		if err := dirs.mkdir(basePath); err != nil {
			return err
		}
		base := filepath.Join(basePath, out.Item.ID.String())

		filePath := base + "." + strings.ToLower(typ)
		if err := os.WriteFile(filePath, out.Resource.Data, 0644); err != nil {
			return fmt.Errorf("write file %s: %w", filePath, err)
		}

		if out.Image == nil {
			return nil
		}
		switch textures {
		case TexturePNG:
			return writePNG(base, out.Image)
		case TextureDDS:
			return writeDDS(base+".dds", out.Header)
		case TextureTony:
			return writeTony(base+".tony", out.Header, out.Image)
		}
		return nil
	}
}

func writePNG(base string, img *texture.Image) error {
	top := img.Mips[0]
	for s := 0; s < img.Slices; s++ {
		path := base + ".png"
		if img.Slices > 1 {
			path = fmt.Sprintf("%s_%d.png", base, s)
		}
		if err := imgio.Save(path, top.NRGBA(s), imgio.PNGEncoder()); err != nil {
			return fmt.Errorf("write png %s: %w", path, err)
		}
	}
	return nil
}

func writeDDS(path string, h *texture.Header) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := texture.WriteDDS(f, h.Descriptor, h.Pixels); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeTony(path string, h *texture.Header, img *texture.Image) error {
	t, err := texture.NewTony(h, img)
	if err != nil {
		return err
	}
	data, err := t.Serialize()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write file %s: %w", path, err)
	}
	return nil
}

// dirCache avoids repeated MkdirAll calls across goroutines.
type dirCache struct {
	mu      sync.Mutex
	created map[string]struct{}
}

func (c *dirCache) mkdir(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.created[path]; ok {
		return nil
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", path, err)
	}
	c.created[path] = struct{}{}
	return nil
}

package resource

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
)

var ErrTemplateNotFound = errors.New("template not found")

// DirLoader loads PNG templates named <id>.png from a directory.
type DirLoader struct {
	Root string
}

func (l DirLoader) LoadTemplate(_ context.Context, id string) (image.Image, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return nil, fmt.Errorf("invalid template id %q", id)
	}

	f, err := os.Open(filepath.Join(l.Root, id+".png"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
		}

		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", id, err)
	}

	return img, nil
}

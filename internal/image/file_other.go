//go:build !unix

package image

import (
	"fmt"
	"io"
)

// mapFile reads the image into memory, it is written back on sync.
func (img *Image) mapFile(size int) error {
	data := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(img.file, 0, int64(size)), data); err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	img.data = data
	return nil
}

func (img *Image) sync() error {
	if _, err := img.file.WriteAt(img.data, 0); err != nil {
		return err
	}
	return img.file.Sync()
}

func (img *Image) unmap() error {
	return nil
}

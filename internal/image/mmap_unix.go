//go:build unix

package image

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mapFile maps the image file shared, writes to the slice go to the file.
func (img *Image) mapFile(size int) error {
	data, err := unix.Mmap(int(img.file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mapping image: %w", err)
	}
	img.data = data
	return nil
}

func (img *Image) sync() error {
	return unix.Msync(img.data, unix.MS_SYNC)
}

func (img *Image) unmap() error {
	return unix.Munmap(img.data)
}

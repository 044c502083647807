// Package image provides a flash image file as backing memory for an
// emulated flash chip.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"os"
)

// ErrSize is returned when an existing image does not match the device size.
var ErrSize = errors.New("image size does not match device size")

// Image is a flash image file opened for reading and writing.
type Image struct {
	path string
	file *os.File
	data []byte
}

// Open opens the image file at path. A missing or empty file is created as a
// freshly erased image of the given size.
func Open(path string, size uint32) (*Image, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}

	if err := prepare(file, size); err != nil {
		_ = file.Close()
		return nil, err
	}

	img := &Image{
		path: path,
		file: file,
	}
	if err := img.mapFile(int(size)); err != nil {
		_ = file.Close()
		return nil, err
	}
	return img, nil
}

// prepare fills an empty file with erased bytes and checks the size of an
// existing one.
func prepare(file *os.File, size uint32) error {
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("getting image file info: %w", err)
	}

	switch info.Size() {
	case 0:
		blank := bytes.Repeat([]byte{0xFF}, int(size))
		if _, err := file.WriteAt(blank, 0); err != nil {
			return fmt.Errorf("creating blank image: %w", err)
		}
		return nil

	case int64(size):
		return nil

	default:
		return fmt.Errorf("%w: '%s' has %d bytes, expected %d", ErrSize, file.Name(), info.Size(), size)
	}
}

// Path returns the file name of the image.
func (img *Image) Path() string {
	return img.path
}

// Bytes returns the image content. Changes are written back to the file on
// Sync and Close.
func (img *Image) Bytes() []byte {
	return img.data
}

// Sync flushes the image content to the file.
func (img *Image) Sync() error {
	if err := img.sync(); err != nil {
		return fmt.Errorf("syncing image: %w", err)
	}
	return nil
}

// Close flushes and closes the image. The byte slice returned by Bytes must
// not be used afterwards.
func (img *Image) Close() error {
	err := img.Sync()
	if unmapErr := img.unmap(); unmapErr != nil {
		err = errors.Join(err, fmt.Errorf("unmapping image: %w", unmapErr))
	}
	if closeErr := img.file.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("closing image: %w", closeErr))
	}
	img.data = nil
	return err
}

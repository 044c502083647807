package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

// run executes the command line against the image in dir and returns the
// console output.
func run(t *testing.T, image string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := New(Version{Version: "test"})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"-q", "--image", image}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVariables(t *testing.T) {
	image := filepath.Join(t.TempDir(), "flash.bin")

	_, err := run(t, image, "write", "0x0001", "0102030405060708")
	assert.NoError(t, err)
	_, err = run(t, image, "write", "2", "AA")
	assert.NoError(t, err)

	out, err := run(t, image, "read", "1")
	assert.NoError(t, err)
	assert.Equal(t, "01 02 03 04 05 06 07 08\n", out)

	out, err = run(t, image, "read", "0x0002")
	assert.NoError(t, err)
	assert.Equal(t, "AA FF FF FF FF FF FF FF\n", out)

	out, err = run(t, image, "dump")
	assert.NoError(t, err)
	assert.Equal(t, "0x0001: 01 02 03 04 05 06 07 08\n0x0002: AA FF FF FF FF FF FF FF\n", out)

	out, err = run(t, image, "info")
	assert.NoError(t, err)
	assert.True(t, strings.Contains(out, "frames:      2/2047 used, 0 torn"))
	assert.True(t, strings.Contains(out, "identity:    BF:B4 (sst39sf512)"))

	_, err = run(t, image, "format")
	assert.NoError(t, err)
	out, err = run(t, image, "dump")
	assert.NoError(t, err)
	assert.Equal(t, "", out)

	info, err := os.Stat(image)
	assert.NoError(t, err)
	assert.Equal(t, int64(0x10000), info.Size())
}

func TestSRAM(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "flash.bin")
	input := filepath.Join(dir, "save.bin")
	output := filepath.Join(dir, "out.bin")
	data := []byte("save game data")
	assert.NoError(t, os.WriteFile(input, data, 0o600))

	_, err := run(t, image, "sram-write", "--offset", "0x8FF8", "--file", input)
	assert.NoError(t, err)

	_, err = run(t, image, "sram-read", "--offset", "0x8FF8", "--size", "14", "-o", output)
	assert.NoError(t, err)
	actual, err := os.ReadFile(output)
	assert.NoError(t, err)
	assert.Equal(t, data, actual)

	_, err = run(t, image, "sram-write", "--offset", "0x8FF8", "--file", input, "--unchecked")
	assert.NoError(t, err)

	out, err := run(t, image, "sram-read", "--offset", "0x8FF8", "--size", "4")
	assert.NoError(t, err)
	assert.True(t, strings.Contains(out, "73 61 76 65"))

	_, err = run(t, image, "sram-read", "--offset", "0x10", "--size", "4000000000")
	assert.ErrorContains(t, err, "range exceeds device size: 0x10+0xEE6B2800, device size 0x10000")

	_, err = run(t, image, "sram-write", "--offset", "0xFFFA", "--file", input)
	assert.ErrorContains(t, err, "writing range failed at address 0x0FFFA")
	_, err = run(t, image, "sram-write", "--offset", "0xFFFA", "--file", input, "--unchecked")
	assert.ErrorContains(t, err, "status 0x80FF")
}

func TestInfoCustomProfile(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "flash.bin")
	profile := filepath.Join(dir, "custom.yaml")
	assert.NoError(t, os.WriteFile(profile, []byte("base: mx29l010\nname: custom\nids: {maker: 0x12, device: 0x34}\n"), 0o600))

	out, err := run(t, image, "--profile", profile, "info")
	assert.NoError(t, err)
	assert.True(t, strings.Contains(out, "device:      custom: 128 KiB"))
	assert.True(t, strings.Contains(out, "identity:    12:34 (no reference profile)"))

	out, err = run(t, image, "--device", "mx29l010", "info")
	assert.NoError(t, err)
	assert.True(t, strings.Contains(out, "identity:    C2:09 (mx29l010)"))
}

func TestUsageErrors(t *testing.T) {
	image := filepath.Join(t.TempDir(), "flash.bin")

	tests := []struct {
		name string
		args []string
	}{
		{"invalid address", []string{"read", "key"}},
		{"address too large", []string{"read", "0x10000"}},
		{"invalid value", []string{"write", "1", "xyz"}},
		{"value too long", []string{"write", "1", "010203040506070809"}},
		{"unknown device", []string{"--device", "unknown", "info"}},
		{"unknown flag", []string{"info", "--unknown"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, image, tt.args...)
			var usageErr *UsageError
			assert.True(t, errors.As(err, &usageErr))
		})
	}
}

func TestDevicesAndVersion(t *testing.T) {
	image := filepath.Join(t.TempDir(), "flash.bin")

	out, err := run(t, image, "devices")
	assert.NoError(t, err)
	assert.True(t, strings.Contains(out, "mx29l010: 128 KiB, 32 sectors of 4096 bytes, 2 bank(s)"))

	out, err = run(t, image, "version")
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "flashpatch "))

	// neither command touches the image
	_, err = os.Stat(image)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestMultibankDevice(t *testing.T) {
	image := filepath.Join(t.TempDir(), "flash.bin")

	_, err := run(t, image, "--device", "mx29l010", "write", "5", "55")
	assert.NoError(t, err)
	out, err := run(t, image, "--device", "mx29l010", "read", "5")
	assert.NoError(t, err)
	assert.Equal(t, "55 FF FF FF FF FF FF FF\n", out)

	// the image size does not match another device
	_, err = run(t, image, "read", "5")
	assert.ErrorContains(t, err, "image size does not match")
}

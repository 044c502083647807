// Package cli handles command line interface logic
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/retroenv/flashpatch/internal/config"
	"github.com/retroenv/flashpatch/internal/emulator"
	"github.com/retroenv/flashpatch/internal/image"
	"github.com/retroenv/flashpatch/internal/options"
	"github.com/retroenv/flashpatch/internal/patch"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"
	"github.com/spf13/cobra"
)

// Version contains the build information of the binary.
type Version struct {
	Version string
	Commit  string
	Date    string
}

// String returns the formatted build information.
func (v Version) String() string {
	return buildinfo.Version(v.Version, v.Commit, v.Date)
}

// UsageError represents an error that should show usage information
type UsageError struct {
	cmd *cobra.Command
	msg string
}

func (e *UsageError) Error() string {
	return e.msg
}

// ShowUsage prints the usage of the command that failed.
func (e *UsageError) ShowUsage() {
	if e.cmd == nil {
		return
	}
	fmt.Fprintf(e.cmd.ErrOrStderr(), "\n%s", e.cmd.UsageString())
}

type runner struct {
	opts    options.Program
	logger  *log.Logger
	version Version
}

// New returns the root command of the flash tool.
func New(version Version) *cobra.Command {
	r := &runner{
		opts:    options.New(),
		version: version,
	}

	root := &cobra.Command{
		Use:           "flashpatch",
		Short:         "NOR flash variable store and save memory tool",
		Long:          "flashpatch operates an emulated NOR flash chip backed by an image file: it formats and inspects the variable journal and reads or writes byte ranges of the chip.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			r.logger = config.CreateLogger(r.opts.Debug, r.opts.Quiet)
			r.printBanner(cmd)
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{cmd: cmd, msg: err.Error()}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&r.opts.Image, "image", r.opts.Image, "flash image file, created when missing")
	flags.StringVar(&r.opts.Device, "device", r.opts.Device, "device profile name, see the devices command")
	flags.StringVar(&r.opts.Profile, "profile", "", "YAML device profile file, overrides --device")
	flags.BoolVar(&r.opts.Debug, "debug", false, "enable debugging options for extended logging")
	flags.BoolVarP(&r.opts.Quiet, "quiet", "q", false, "perform operations quietly")

	root.AddCommand(
		r.devicesCommand(),
		r.formatCommand(),
		r.infoCommand(),
		r.readCommand(),
		r.writeCommand(),
		r.dumpCommand(),
		r.sramWriteCommand(),
		r.sramReadCommand(),
		r.versionCommand(),
	)
	return root
}

func (r *runner) printBanner(cmd *cobra.Command) {
	if r.opts.Quiet || cmd.Name() == "version" {
		return
	}

	versionString := r.version.Version
	if commit := r.version.Commit; commit != "" {
		if len(commit) > 7 {
			commit = commit[:7]
		}
		versionString += fmt.Sprintf(" (%s)", commit)
	}
	r.logger.Debug("flashpatch", log.String("version", versionString))
}

// withDevice opens the image, boots the device and runs fn. Changes are
// written back to the image afterwards, also when fn failed.
func (r *runner) withDevice(cmd *cobra.Command, fn func(dev *patch.Device) error) (err error) {
	if err := cmd.Context().Err(); err != nil {
		return err
	}

	geo, err := config.Geometry(r.opts)
	if err != nil {
		return &UsageError{cmd: cmd, msg: err.Error()}
	}

	img, err := image.Open(r.opts.Image, geo.RomSize)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := img.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("closing image '%s': %w", img.Path(), closeErr))
		}
	}()

	chip, err := emulator.New(geo, img.Bytes())
	if err != nil {
		return fmt.Errorf("creating flash chip: %w", err)
	}

	r.logger.Debug("Opened flash image",
		log.String("path", img.Path()),
		log.String("device", geo.Name))

	dev := patch.New(r.logger, chip, geo)
	if err := dev.Boot(); err != nil {
		return fmt.Errorf("booting device: %w", err)
	}
	return fn(dev)
}

// parseKey parses a variable address in decimal or 0x prefixed hex.
func parseKey(cmd *cobra.Command, s string) (uint16, error) {
	key, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, &UsageError{cmd: cmd, msg: fmt.Sprintf("invalid variable address '%s'", s)}
	}
	return uint16(key), nil
}

// statusError converts a non zero status code of an entry point to an error.
func statusError(action string, code uint16) error {
	if code == 0 {
		return nil
	}
	return fmt.Errorf("%s failed with status 0x%04X", action, code)
}

func formatValue(value [8]byte) string {
	return strings.ToUpper(fmt.Sprintf("% x", value[:]))
}

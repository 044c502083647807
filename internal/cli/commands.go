package cli

import (
	"encoding/hex"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/retroenv/flashpatch/internal/geometry"
	"github.com/retroenv/flashpatch/internal/options"
	"github.com/retroenv/flashpatch/internal/patch"
	"github.com/retroenv/flashpatch/internal/sector"
	"github.com/retroenv/retrogolib/log"
	"github.com/spf13/cobra"
)

func (r *runner) devicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the supported device profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, name := range geometry.Names() {
				geo, err := geometry.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, geo)
			}
			return nil
		},
	}
}

func (r *runner) formatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "format",
		Short: "Erase the chip and start an empty variable journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withDevice(cmd, func(dev *patch.Device) error {
				if err := dev.Format(); err != nil {
					return fmt.Errorf("formatting device: %w", err)
				}
				r.logger.Info("Formatted device", log.String("image", r.opts.Image))
				return nil
			})
		},
	}
}

func (r *runner) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the device and journal usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withDevice(cmd, func(dev *patch.Device) error {
				stats, err := dev.Stats()
				if err != nil {
					return err
				}
				maker, device := dev.Identify()
				profile := "no reference profile"
				if known, ok := geometry.ByID(maker, device); ok {
					profile = known.Name
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "device:      %s\n", dev.Driver().Geometry())
				fmt.Fprintf(out, "identity:    %02X:%02X (%s)\n", maker, device, profile)
				fmt.Fprintf(out, "partitions:  %s, %s\n", stats.States[0], stats.States[1])
				fmt.Fprintf(out, "current:     %d\n", stats.Current)
				fmt.Fprintf(out, "frames:      %d/%d used, %d torn\n", stats.UsedFrames, stats.Capacity, stats.TornFrames)
				fmt.Fprintf(out, "variables:   %d\n", stats.LiveKeys)
				return nil
			})
		},
	}
}

func (r *runner) readCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "read <address>",
		Short: "Read an 8 byte variable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(cmd, args[0])
			if err != nil {
				return err
			}

			return r.withDevice(cmd, func(dev *patch.Device) error {
				var value [8]byte
				if code := dev.EEPROMRead(key, &value); code != 0 {
					return statusError("reading variable", code)
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatValue(value))
				return nil
			})
		},
	}
}

func (r *runner) writeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "write <address> <hex value>",
		Short: "Write an 8 byte variable",
		Long:  "Write an 8 byte variable. Shorter values are padded with 0xFF.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(cmd, args[0])
			if err != nil {
				return err
			}
			value, err := parseValue(cmd, args[1])
			if err != nil {
				return err
			}

			return r.withDevice(cmd, func(dev *patch.Device) error {
				return statusError("writing variable", dev.EEPROMWrite(key, value))
			})
		},
	}
}

func parseValue(cmd *cobra.Command, s string) ([8]byte, error) {
	value := [8]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	data, err := hex.DecodeString(s)
	if err != nil || len(data) == 0 || len(data) > len(value) {
		return value, &UsageError{cmd: cmd, msg: fmt.Sprintf("invalid value '%s', expected 1 to 8 hex encoded bytes", s)}
	}
	copy(value[:], data)
	return value, nil
}

func (r *runner) dumpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print all written variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withDevice(cmd, func(dev *patch.Device) error {
				vars, err := dev.Vars()
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, key := range slices.Sorted(maps.Keys(vars)) {
					fmt.Fprintf(out, "0x%04X: %s\n", key, formatValue(vars[key]))
				}
				return nil
			})
		},
	}
}

func (r *runner) sramWriteCommand() *cobra.Command {
	var opts options.SRAMWrite
	cmd := &cobra.Command{
		Use:   "sram-write",
		Short: "Write a file to a byte range of the chip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(opts.File)
			if err != nil {
				return fmt.Errorf("reading file '%s': %w", opts.File, err)
			}

			return r.withDevice(cmd, func(dev *patch.Device) error {
				if opts.Unchecked {
					return statusError("writing range", dev.SRAMWriteUnchecked(opts.Offset, data))
				}
				if address, ok := dev.SRAMWrite(opts.Offset, data); !ok {
					return fmt.Errorf("writing range failed at address 0x%05X", address)
				}
				r.logger.Info("Wrote range",
					log.Hex("offset", opts.Offset),
					log.Int("size", len(data)))
				return nil
			})
		},
	}

	cmd.Flags().Uint32Var(&opts.Offset, "offset", 0, "chip offset to write to")
	cmd.Flags().StringVar(&opts.File, "file", "", "file containing the data to write")
	cmd.Flags().BoolVar(&opts.Unchecked, "unchecked", false, "skip the verification of written sectors")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (r *runner) sramReadCommand() *cobra.Command {
	var opts options.SRAMRead
	cmd := &cobra.Command{
		Use:   "sram-read",
		Short: "Read a byte range of the chip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withDevice(cmd, func(dev *patch.Device) error {
				romSize := dev.Driver().Geometry().RomSize
				if uint64(opts.Offset)+uint64(opts.Size) > uint64(romSize) {
					return fmt.Errorf("%w: 0x%X+0x%X, device size 0x%X",
						sector.ErrOutOfRange, opts.Offset, opts.Size, romSize)
				}

				data := make([]byte, opts.Size)
				if err := dev.SRAMRead(data, opts.Offset); err != nil {
					return err
				}

				if opts.Output == "" {
					fmt.Fprint(cmd.OutOrStdout(), hex.Dump(data))
					return nil
				}
				if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
					return fmt.Errorf("writing file '%s': %w", opts.Output, err)
				}
				return nil
			})
		},
	}

	cmd.Flags().Uint32Var(&opts.Offset, "offset", 0, "chip offset to read from")
	cmd.Flags().Uint32Var(&opts.Size, "size", 0x100, "number of bytes to read")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "file to write to, hex dump on console if not given")
	return cmd
}

func (r *runner) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "flashpatch %s\n", r.version)
			return nil
		},
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sigreer/blkdevctl/internal/blkdev"
	"github.com/sigreer/blkdevctl/internal/tagindex"
)

// DeviceResult is the JSON shape of the device lookup commands
type DeviceResult struct {
	Device    string `json:"device"`
	Base      string `json:"base,omitempty"`
	Display   string `json:"display,omitempty"`
	Partition string `json:"partition,omitempty"`
	Property  string `json:"property,omitempty"`
	Value     *int64 `json:"value,omitempty"`
	Supported *bool  `json:"supported,omitempty"`
	Bytes     *int64 `json:"bytes,omitempty"`
}

var baseCmd = &cobra.Command{
	Use:   "base <device>",
	Short: "Print the whole-disk base device of a device or partition",
	Long: `Resolve a device node (or a symlink to one) to its whole-disk base device
as named under /sys/block. Nested names use '!' in place of '/'.

Examples:
  blkdevctl base /dev/sda3            # sda
  blkdevctl base /dev/cciss/c0d1p2    # cciss!c0d1
  blkdevctl base /dev/disk/by-id/wwn-0x5000c500a1b2c3d4-part1`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := resolver().BaseDevice(args[0])
		if err != nil {
			return err
		}
		printResult(cmd, DeviceResult{Device: args[0], Base: base, Display: blkdev.DisplayName(base)}, func() {
			fmt.Fprintln(cmd.OutOrStdout(), blkdev.DisplayName(base))
		})
		return nil
	},
}

var attrCmd = &cobra.Command{
	Use:   "attr <device> <property>",
	Short: "Read an integer queue attribute of a device's base device",
	Long: `Read /sys/block/<base>/queue/<property> as an integer.

Examples:
  blkdevctl attr /dev/sda1 rotational
  blkdevctl attr /dev/nvme0n1p2 discard_granularity`,
	Args: exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := resolver().IntProperty(args[0], args[1])
		if err != nil {
			return err
		}
		printResult(cmd, DeviceResult{Device: args[0], Property: args[1], Value: &v}, func() {
			fmt.Fprintln(cmd.OutOrStdout(), v)
		})
		return nil
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard <device>",
	Short: "Report discard support, or discard a byte range",
	Long: `Without --length, report whether the device supports discard
(discard_granularity > 0). With --length, issue BLKDISCARD for the range
starting at --offset. Discarded data is lost.`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, _ := cmd.Flags().GetInt64("offset")
		length, _ := cmd.Flags().GetInt64("length")
		if length == 0 {
			ok := resolver().SupportsDiscard(args[0])
			printResult(cmd, DeviceResult{Device: args[0], Supported: &ok}, func() {
				fmt.Fprintln(cmd.OutOrStdout(), ok)
			})
			return nil
		}
		if offset < 0 || length < 0 {
			return usagef("offset and length must not be negative")
		}

		f, err := os.OpenFile(args[0], os.O_WRONLY, 0)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := blkdev.Discard(f, offset, length); err != nil {
			return fmt.Errorf("discard %s: %w", args[0], err)
		}
		log.WithField("device", args[0]).Infof("discarded %s at offset %d", humanize.IBytes(uint64(length)), offset)
		return nil
	},
}

var rotationalCmd = &cobra.Command{
	Use:   "rotational <device>",
	Short: "Report whether the device is rotational",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rot := resolver().IsRotational(args[0])
		printResult(cmd, DeviceResult{Device: args[0], Supported: &rot}, func() {
			fmt.Fprintln(cmd.OutOrStdout(), rot)
		})
		return nil
	},
}

var sizeCmd = &cobra.Command{
	Use:   "size <device>",
	Short: "Print the size of a block device",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		size, err := blkdev.Size(f)
		if err != nil {
			return fmt.Errorf("size of %s: %w", args[0], err)
		}
		printResult(cmd, DeviceResult{Device: args[0], Bytes: &size}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes)\n", humanize.IBytes(uint64(size)), size)
		})
		return nil
	},
}

var byUUIDCmd = &cobra.Command{
	Use:   "by-uuid <uuid>",
	Short: "Find the device holding a filesystem or partition UUID",
	Long: `Look up the partition tagged with a UUID and print it with its whole-disk
base device. --tag selects which tag carries the UUID (UUID or PARTUUID).

Examples:
  blkdevctl by-uuid 2f4ca112-c476-4b4b-9b0e-5a0c4e2a51d7
  blkdevctl by-uuid --tag PARTUUID 2f4ca112-c476-4b4b-9b0e-5a0c4e2a51d7`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return usagef("invalid uuid %q: %v", args[0], err)
		}
		tag, _ := cmd.Flags().GetString("tag")

		idx, err := tagindex.New(cfg.TagIndex, cfg.Root)
		if err != nil {
			return err
		}

		part, dev, err := resolver().DeviceByUUID(cmd.Context(), idx, id, tag)
		if err != nil {
			return err
		}
		printResult(cmd, DeviceResult{Device: args[0], Partition: part, Base: dev, Display: blkdev.DisplayName(dev)}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", part, blkdev.DisplayName(dev))
		})
		return nil
	},
}

var bySymlinkCmd = &cobra.Command{
	Use:   "by-symlink <link>",
	Short: "Follow a symlink chain to the base device it names",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := resolver().DeviceBySymlink(args[0])
		if err != nil {
			return err
		}
		printResult(cmd, DeviceResult{Device: args[0], Base: dev, Display: blkdev.DisplayName(dev)}, func() {
			fmt.Fprintln(cmd.OutOrStdout(), blkdev.DisplayName(dev))
		})
		return nil
	},
}

func resolver() *blkdev.Resolver {
	return blkdev.NewResolver(cfg.Root)
}

func init() {
	discardCmd.Flags().Int64("offset", 0, "byte offset of the range to discard")
	discardCmd.Flags().Int64("length", 0, "byte length of the range to discard")
	byUUIDCmd.Flags().String("tag", tagindex.TagUUID, "tag carrying the UUID (UUID, PARTUUID)")

	rootCmd.AddCommand(baseCmd)
	rootCmd.AddCommand(attrCmd)
	rootCmd.AddCommand(discardCmd)
	rootCmd.AddCommand(rotationalCmd)
	rootCmd.AddCommand(sizeCmd)
	rootCmd.AddCommand(byUUIDCmd)
	rootCmd.AddCommand(bySymlinkCmd)
}

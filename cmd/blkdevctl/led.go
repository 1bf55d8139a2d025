package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigreer/blkdevctl/internal/blkdev"
	"github.com/sigreer/blkdevctl/internal/hba"
	"github.com/sigreer/blkdevctl/internal/ledctl"
	"github.com/sigreer/blkdevctl/internal/localdisk"
	"github.com/sigreer/blkdevctl/internal/lsm"
	"github.com/sigreer/blkdevctl/internal/lsm/sim"
)

// LEDResponse is the JSON response structure for application integration
type LEDResponse struct {
	Success   bool   `json:"success"`
	Operation string `json:"operation"`
	LEDState  string `json:"led_state"` // "on", "off", "unknown"
	Device    string `json:"device"`
	URI       string `json:"uri,omitempty"`
	Code      int    `json:"code"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

var ledCmd = &cobra.Command{
	Use:   "led",
	Short: "Control the locate LED of a disk",
	Long: `Find the managed volume or disk behind a block device and set its locate LED.

The endpoint URI selects the plugin:
  sim:///var/lib/blkdevctl/sim.db   simulated array (see 'blkdevctl sim')
  megaraid://                        MegaRAID controllers through storcli
  sas3ircu://                        LSI SAS HBAs through sas3ircu

Without a URI the LED of the local disk is driven directly through its
enclosure slot.`,
}

var ledUpdateCmd = &cobra.Command{
	Use:   "update <locate_enable|locate_disable|locate_status> <device>",
	Short: "Apply a locate operation, matching by VPD-83 identifier",
	Long: `Apply a locate operation to the device, matching managed volumes and disks
by their VPD-83 identifier. The password is sent to the endpoint.

Examples:
  blkdevctl led update locate_enable /dev/sdb --uri megaraid://
  blkdevctl led update locate_status /dev/sdb --uri sim:///tmp/sim.db
  blkdevctl led update locate_disable /dev/sdb     # local enclosure slot`,
	Args: exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, dev := args[0], args[1]
		uri, password := endpoint(cmd)
		status, err := controller().UpdateLocateLED(cmd.Context(), uri, password, op, dev)
		return reportLED(cmd, op, uri, dev, status, err)
	},
}

var ledOnCmd = &cobra.Command{
	Use:   "on <device>",
	Short: "Turn the locate LED on, matching by SD path",
	Long: `Turn the locate LED on for the volume or disk whose reported SD path has
the same base device as <device>. megaraid:// and sas3ircu:// disks report
the node linked from /dev/disk/by-id/wwn-0x<wwn>; disks without that link
never match.`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uri, _ := endpoint(cmd)
		err := controller().EnableLocateLED(cmd.Context(), uri, args[0])
		return reportLED(cmd, string(ledctl.OpLocateEnable), uri, args[0], lsm.LEDOn, err)
	},
}

var ledOffCmd = &cobra.Command{
	Use:   "off <device>",
	Short: "Turn the locate LED off, matching by SD path",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uri, _ := endpoint(cmd)
		err := controller().DisableLocateLED(cmd.Context(), uri, args[0])
		return reportLED(cmd, string(ledctl.OpLocateDisable), uri, args[0], lsm.LEDOff, err)
	},
}

// endpoint returns the URI and password from flags, falling back to config.
func endpoint(cmd *cobra.Command) (string, string) {
	uri, password := cfg.LSM.URI, cfg.LSM.Password
	if cmd.Flags().Changed("uri") {
		uri, _ = cmd.Flags().GetString("uri")
	}
	if cmd.Flags().Changed("password") {
		password, _ = cmd.Flags().GetString("password")
	}
	return uri, password
}

// registry returns every plugin this binary ships.
func registry() *lsm.Registry {
	reg := lsm.NewRegistry()
	reg.Register(sim.Scheme, &sim.Connector{State: cfg.Sim.State, Log: log})
	hba.Register(reg, cfg.Root, log)
	return reg
}

func controller() *ledctl.Controller {
	return &ledctl.Controller{
		Connector: registry(),
		Local:     localdisk.New(cfg.Root, log),
		Resolver:  blkdev.NewResolver(cfg.Root),
		Timeout:   cfg.LSM.Timeout,
		Log:       log,
	}
}

func reportLED(cmd *cobra.Command, op, uri, dev string, status lsm.LEDStatus, err error) error {
	if err != nil {
		status = lsm.LEDUnknown
	}
	resp := LEDResponse{
		Success:   err == nil,
		Operation: op,
		LEDState:  status.String(),
		Device:    dev,
		URI:       uri,
		Code:      blkdev.Code(err),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	if jsonOutput(cmd) {
		printResult(cmd, resp, nil)
		return err
	}
	if err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "LED %s for %s\n", status, dev)
	}
	return err
}

func init() {
	ledCmd.PersistentFlags().String("uri", "", "management endpoint URI (default from config)")
	ledUpdateCmd.Flags().String("password", "", "management endpoint password (default from config)")

	ledCmd.AddCommand(ledUpdateCmd)
	ledCmd.AddCommand(ledOnCmd)
	ledCmd.AddCommand(ledOffCmd)
	rootCmd.AddCommand(ledCmd)
}

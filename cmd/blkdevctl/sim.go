package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sigreer/blkdevctl/internal/lsm/sim"
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Manage the simulated storage endpoint",
	Long: `The sim:// plugin serves systems, volumes and disks from a SQLite state
file. 'load' replaces the state with a YAML seed; 'show' prints it back.

Seed format:
  password: secret
  systems:
    - id: sim-raid
      name: Simulated RAID
      mode: hardware_raid
      capabilities: [sys_mode_get, volumes, volume_led, volume_vpd83_get]
      volumes:
        - id: v0
          vpd83: 600508b1001c5e0b
          sd_path: /dev/sdb
      leds_on: [v0]`,
}

var simLoadCmd = &cobra.Command{
	Use:   "load <seed.yaml>",
	Short: "Replace the simulator state with a YAML seed",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		seed, err := sim.ParseSeed(f)
		if err != nil {
			return err
		}

		store, err := sim.Open(statePath(cmd))
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Load(cmd.Context(), seed); err != nil {
			return err
		}
		log.WithField("state", store.Path()).Infof("loaded %d systems", len(seed.Systems))
		return nil
	},
}

var simShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the simulator state",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := sim.Open(statePath(cmd))
		if err != nil {
			return err
		}
		defer store.Close()

		seed, err := store.Dump(cmd.Context())
		if err != nil {
			return err
		}

		var outErr error
		printResult(cmd, seed, func() {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(seed); err != nil {
				outErr = fmt.Errorf("encode state: %w", err)
			}
			enc.Close()
		})
		return outErr
	},
}

func statePath(cmd *cobra.Command) string {
	if cmd.Flags().Changed("state") {
		p, _ := cmd.Flags().GetString("state")
		return p
	}
	return cfg.Sim.State
}

func init() {
	simCmd.PersistentFlags().String("state", "", "state file (default from config)")

	simCmd.AddCommand(simLoadCmd)
	simCmd.AddCommand(simShowCmd)
	rootCmd.AddCommand(simCmd)
}

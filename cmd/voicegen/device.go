package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"voicegen/internal/pkg/voicegen/engine"
)

func deviceCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Show the compute device models would be loaded on",
		RunE: func(cmd *cobra.Command, args []string) error {
			override, err := engine.ParseDevice(c.cfg.Device)
			if err != nil {
				return err
			}
			probe := engine.HostProbe{}
			sel := engine.DeviceSelector{Override: override, Probe: probe}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "selected: %s\n", sel.Select())
			if override != "" {
				fmt.Fprintf(out, "override: %s\n", override)
			}
			fmt.Fprintf(out, "mps:      %t\n", probe.MPSAvailable())
			fmt.Fprintf(out, "cuda:     %t\n", probe.CUDAAvailable())
			fmt.Fprintf(out, "backends: %v\n", engine.ListBackends())
			return nil
		},
	}
}

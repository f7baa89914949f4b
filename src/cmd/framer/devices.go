// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"io"

	"github.com/devblok/framer/src/device"
	"github.com/spf13/cobra"
)

var devicesBackend string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Show how every physical device scores",
	Long: `Devices prints, as JSON, every physical device seen against a hidden
window surface: whether it is suitable, why not, and its score.`,
	RunE: runDevices,
}

func init() {
	devicesCmd.Flags().StringVar(&devicesBackend, "backend", "", "overrides renderer.backend")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg := configuration.Renderer
	if devicesBackend != "" {
		cfg.Backend = devicesBackend
	}
	b, err := openBackend(cfg, "Framer devices", false)
	if err != nil {
		return err
	}
	defer b.Release()
	return writeReports(cmd.OutOrStdout(), device.Explain(b.candidates))
}

func writeReports(w io.Writer, reports []device.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

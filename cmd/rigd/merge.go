package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/serialport"
	"github.com/KevinKickass/OpenRigCore/internal/telemetry"
	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge the controller and current logger lines into per-cycle summaries",
	Long: `merge reads telemetry records from one or more serial lines (or files)
and prints one summary per machine cycle: cycle counters, peak tension force
and the peak motor currents while tensioning and crimping.`,
	Example: `  rigd merge --port /dev/ttyUSB0 --port /dev/ttyUSB2
  rigd merge --file controller.log --file current.log --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, _ := cmd.Flags().GetStringSlice("port")
		files, _ := cmd.Flags().GetStringSlice("file")
		baud, _ := cmd.Flags().GetInt("baud")
		asJSON, _ := cmd.Flags().GetBool("json")

		if len(ports)+len(files) == 0 {
			return fmt.Errorf("at least one --port or --file is required")
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		var sources []io.Reader
		for _, name := range ports {
			port, err := serialport.Open(name, baud)
			if err != nil {
				return err
			}
			defer port.Close()
			sources = append(sources, port)
		}
		for _, name := range files {
			f, err := os.Open(name)
			if err != nil {
				return err
			}
			defer f.Close()
			sources = append(sources, f)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		enc := json.NewEncoder(out)
		return telemetry.Merge(ctx, sources, telemetry.NewMerger(time.Now), func(s telemetry.Summary) {
			if asJSON {
				_ = enc.Encode(s)
				return
			}
			fmt.Fprintln(out, s.String())
		}, logger)
	},
}

func init() {
	mergeCmd.Flags().StringSlice("port", nil, "Serial port to read, repeatable")
	mergeCmd.Flags().StringSlice("file", nil, "Recorded log file to read, repeatable")
	mergeCmd.Flags().IntP("baud", "b", 115200, "Baud rate of the serial ports")
	mergeCmd.Flags().Bool("json", false, "Print summaries as JSON lines")
}

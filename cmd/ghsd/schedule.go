package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/srg/ghsd/internal/gatt"
	"github.com/srg/ghsd/internal/ghs"
)

// scheduleCmd groups the schedule descriptor helpers
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Encode or decode GHS schedule descriptor values",
}

var scheduleEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Print the descriptor bytes of a schedule",
	Long: `Encodes a schedule the way a collector writes it to the schedule descriptor (0x7F35).

Examples:
  # Default pulse oximeter schedule
  ghsd schedule encode

  # Two second measurements every five seconds
  ghsd schedule encode --duration 2 --interval 5`,
	Args: cobra.NoArgs,
	RunE: runScheduleEncode,
}

var scheduleDecodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Validate and print a schedule descriptor value",
	Long: `Decodes a schedule descriptor value and applies the same validation as the peripheral.
A rejected value is reported with the ATT status a collector would receive.

Examples:
  ghsd schedule decode b84b02000a0000ff0a0000ff
  ghsd schedule decode "b8 4b 02 00 14 00 00 ff 32 00 00 ff"`,
	Args: cobra.ExactArgs(1),
	RunE: runScheduleDecode,
}

var (
	scheduleDuration   float32
	scheduleInterval   float32
	scheduleSensorType uint32
)

func init() {
	scheduleEncodeCmd.Flags().Float32Var(&scheduleDuration, "duration", 1.0, "Measurement duration in seconds")
	scheduleEncodeCmd.Flags().Float32Var(&scheduleInterval, "interval", 1.0, "Update interval in seconds")
	scheduleCmd.PersistentFlags().Uint32Var(&scheduleSensorType, "sensor-type", ghs.MDCPulseOximSatO2, "MDC sensor type code")

	scheduleCmd.AddCommand(scheduleEncodeCmd)
	scheduleCmd.AddCommand(scheduleDecodeCmd)
}

func runScheduleEncode(cmd *cobra.Command, _ []string) error {
	schedule := ghs.Schedule{
		SensorType:          scheduleSensorType,
		MeasurementDuration: scheduleDuration,
		UpdateInterval:      scheduleInterval,
	}
	raw := schedule.Encode()

	// flag schedules the peripheral would reject
	if _, err := ghs.DecodeSchedule(raw, scheduleSensorType); err != nil {
		return fmt.Errorf("schedule %s would be rejected: %w", schedule, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(raw))
	return nil
}

func runScheduleDecode(cmd *cobra.Command, args []string) error {
	raw, err := parseHex(args[0])
	if err != nil {
		return err
	}

	schedule, err := ghs.DecodeSchedule(raw, scheduleSensorType)
	if err != nil {
		return fmt.Errorf("rejected with status %s: %w", gatt.StatusOf(err), err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sensor type:          %d\n", schedule.SensorType)
	fmt.Fprintf(out, "Measurement duration: %.1fs\n", schedule.MeasurementDuration)
	fmt.Fprintf(out, "Update interval:      %.1fs\n", schedule.UpdateInterval)
	return nil
}

// parseHex accepts hex with optional spaces, colons or a 0x prefix.
func parseHex(s string) ([]byte, error) {
	clean := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	clean = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(clean)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidHex, s, err)
	}
	return b, nil
}

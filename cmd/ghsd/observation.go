package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/ghsd/internal/gatt"
	"github.com/srg/ghsd/internal/ghs"
)

// observationCmd previews what a subscriber receives for one observation
var observationCmd = &cobra.Command{
	Use:   "observation",
	Short: "Encode an observation and show its notification segments",
	Long: `Encodes one live observation and splits it into the notification frames sent
to subscribers with the given payload size.

Examples:
  # Default ATT MTU (23 byte payload)
  ghsd observation --value 96.5

  # Large MTU, fixed timestamp
  ghsd observation --value 97 --payload 185 --time 2024-01-01T00:00:00Z`,
	Args: cobra.NoArgs,
	RunE: runObservation,
}

var (
	observationValue    float32
	observationDuration float32
	observationPayload  int
	observationTime     string
)

func init() {
	observationCmd.Flags().Float32Var(&observationValue, "value", 96.0, "SpO2 value in percent")
	observationCmd.Flags().Float32Var(&observationDuration, "duration", 1.0, "Measurement duration in seconds")
	observationCmd.Flags().IntVar(&observationPayload, "payload", gatt.DefaultPayloadSize, "Notification payload size")
	observationCmd.Flags().StringVar(&observationTime, "time", "", "Observation time (RFC3339); now by default")
}

var roleColors = map[ghs.Role]*color.Color{
	ghs.RoleSingle: color.New(color.FgGreen),
	ghs.RoleFirst:  color.New(color.FgCyan),
	ghs.RoleMiddle: color.New(color.FgYellow),
	ghs.RoleLast:   color.New(color.FgMagenta),
}

func runObservation(cmd *cobra.Command, _ []string) error {
	now := time.Now().UTC()
	if observationTime != "" {
		t, err := time.Parse(time.RFC3339, observationTime)
		if err != nil {
			return fmt.Errorf("invalid --time: %w", err)
		}
		now = t
	}
	if now.Unix() < ghs.Epoch2000 {
		return fmt.Errorf("observation time %s is before 2000-01-01", now.Format(time.RFC3339))
	}

	record := ghs.EncodeObservation(ghs.MDCPulseOximSatO2, observationValue, observationDuration, now)

	frames := ghs.NewSegmenter(gatt.DefaultPayloadSize).Segment(record, observationPayload)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Record (%d bytes): %s\n", len(record), hex.EncodeToString(record))
	writeFrames(out, frames)
	return nil
}

func writeFrames(w io.Writer, frames [][]byte) {
	fmt.Fprintf(w, "Segments: %d\n", len(frames))
	for i, f := range frames {
		counter, role := ghs.ParseHeader(f[0])
		label := roleColors[role].Sprintf("%-6s", role)
		fmt.Fprintf(w, "  [%d] %s counter=%-2d %s\n", i, label, counter, hex.EncodeToString(f))
	}
}

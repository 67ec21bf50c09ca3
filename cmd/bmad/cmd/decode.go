package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/nmea0183"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/nmea2000"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/pipeline"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/processor"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode sentences from stdin and print them as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		allowMissing, _ := cmd.Flags().GetBool("allow-missing-checksum")
		return decodeLines(cmd.InOrStdin(), cmd.OutOrStdout(), allowMissing)
	},
}

func init() {
	decodeCmd.Flags().Bool("allow-missing-checksum", false, "accept sentences without a checksum")
	rootCmd.AddCommand(decodeCmd)
}

type decodedLine struct {
	Line    string          `json:"line"`
	Error   string          `json:"error,omitempty"`
	Type    string          `json:"type,omitempty"`
	Talker  string          `json:"talker,omitempty"`
	Fields  types.Fields    `json:"fields,omitempty"`
	Updates []decodedUpdate `json:"updates,omitempty"`
}

type decodedUpdate struct {
	SensorType types.SensorType `json:"sensorType"`
	Instance   uint32           `json:"instance"`
	Source     string           `json:"source"`
	Priority   int              `json:"priority"`
	Data       types.Fields     `json:"data"`
}

// decodeLines runs every line through decode and process without a registry,
// so no claims are consulted.
func decodeLines(r io.Reader, w io.Writer, allowMissingChecksum bool) error {
	ascii := nmea0183.NewDecoder(nmea0183.Options{AllowMissingChecksum: allowMissingChecksum})
	binary := nmea2000.NewDecoder()
	proc := processor.New(processor.Options{})
	enc := json.NewEncoder(w)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		out := decodedLine{Line: line}
		msg, err := pipeline.DecodeLine(ascii, binary, line)
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Type, out.Talker, out.Fields = msg.Type, msg.Talker, msg.Fields
			updates, err := proc.Process(msg, time.Now())
			if err != nil {
				out.Error = err.Error()
			}
			for _, u := range updates {
				out.Updates = append(out.Updates, decodedUpdate{
					SensorType: u.SensorType,
					Instance:   u.Instance,
					Source:     u.Source,
					Priority:   u.Priority,
					Data:       u.Data,
				})
			}
		}
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return sc.Err()
}

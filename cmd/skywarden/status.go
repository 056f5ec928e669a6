package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zypherlabs/skywarden/internal/flight"
	"github.com/zypherlabs/skywarden/internal/model"
)

var statusFlags struct {
	telemetry bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show drone identity and vehicle telemetry",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusFlags.telemetry, "telemetry", false, "connect to the vehicle and show live telemetry")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Printf("Drone ID:     %s\n", a.droneID())
	fmt.Printf("Organization: %s\n", a.identity.OrgID())
	fmt.Printf("Fingerprint:  %s\n", a.identity.Fingerprint())

	active, err := a.store.ListMissions(model.StatusActive)
	if err != nil {
		return err
	}
	fmt.Printf("Active missions: %d\n", len(active))

	if !statusFlags.telemetry {
		return nil
	}

	fc := flight.NewController(logger)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Flight.HeartbeatTimeoutS)*time.Second)
	defer cancel()
	if err := fc.Connect(ctx, cfg.Flight.Connection); err != nil {
		return fmt.Errorf("connecting to vehicle: %w", err)
	}
	defer fc.Disconnect()

	// Let a round of telemetry arrive.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := fc.DrainTelemetry(); err != nil {
			return err
		}
		t := fc.Telemetry()
		if t.HasPosition() && t.BatteryKnown {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	t := fc.Telemetry()
	fmt.Println()
	fmt.Printf("Mode:     %s (armed: %v)\n", t.Mode, t.Armed)
	fmt.Printf("Position: %.6f, %.6f @ %.1fm\n", t.Lat, t.Lon, t.AltM)
	fmt.Printf("Battery:  %.0f%% (%.2fV)\n", t.BatteryPct, t.BatteryVoltage)
	fmt.Printf("GPS:      fix type %d, %d satellites\n", t.GPSFixType, t.Satellites)
	fmt.Printf("Speed:    %.1f m/s, heading %.0f\n", t.GroundspeedMS, t.HeadingDeg)
	return nil
}

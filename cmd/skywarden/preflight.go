package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zypherlabs/skywarden/internal/flight"
	"github.com/zypherlabs/skywarden/internal/mission"
	"github.com/zypherlabs/skywarden/internal/model"
	"github.com/zypherlabs/skywarden/internal/vision"
)

var preflightFlags struct {
	waypoints string
}

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Run launch checks and report every failing condition",
	RunE:  runPreflight,
}

func init() {
	rootCmd.AddCommand(preflightCmd)

	preflightCmd.Flags().StringVar(&preflightFlags.waypoints, "waypoints", "", "waypoint file to validate against")
}

func runPreflight(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	fc := flight.NewController(logger)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Flight.HeartbeatTimeoutS)*time.Second)
	defer cancel()
	if err := fc.Connect(ctx, cfg.Flight.Connection); err != nil {
		logger.Warn("vehicle connection failed", zap.Error(err))
	} else {
		defer fc.Disconnect()
		// A couple of drain rounds so battery and GPS state arrive.
		for i := 0; i < 20; i++ {
			if err := fc.DrainTelemetry(); err != nil {
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
	}

	m := &model.Mission{Parameters: model.Parameters{AltitudeM: cfg.Surveillance.DefaultAltitudeM}}
	if preflightFlags.waypoints != "" {
		wps, err := mission.LoadWaypoints(preflightFlags.waypoints, cfg.Surveillance.DefaultAltitudeM)
		if err != nil {
			return err
		}
		m.Waypoints = wps
	}

	cam, det := buildVision()
	ctrl := mission.NewController(missionConfig(), fc, cam, det, nil, a.store, a.auditor, nil, logger)
	failures := ctrl.Preflight(m)
	if len(failures) == 0 {
		fmt.Println("Preflight passed.")
		return nil
	}
	fmt.Printf("Preflight failed, %d condition(s):\n", len(failures))
	for _, f := range failures {
		fmt.Printf("  - %s\n", f)
	}
	return fmt.Errorf("%d preflight condition(s) not met", len(failures))
}

// buildVision assembles the capture and detection collaborators from
// config. Without a frame directory there is no camera and preflight
// reports it.
func buildVision() (vision.Camera, vision.Detector) {
	var cam vision.Camera
	if cfg.Vision.FrameDir != "" {
		fileCam, err := vision.NewFileCamera(cfg.Vision.FrameDir)
		if err != nil {
			logger.Warn("camera unavailable", zap.Error(err))
		} else {
			cam = fileCam
		}
	}
	return cam, vision.NopDetector{}
}

func missionConfig() mission.Config {
	return mission.Config{
		WaypointToleranceM: cfg.Flight.WaypointToleranceM,
		HoverDuration:      time.Duration(cfg.Surveillance.WaypointHoverS * float64(time.Second)),
		LoiterDuration:     time.Duration(cfg.Surveillance.DetectionLoiterS * float64(time.Second)),
		RTLBatteryPct:      float64(cfg.Surveillance.RTLBatteryPct),
		MinBatteryPct:      float64(cfg.Surveillance.MinBatteryPct),
	}
}

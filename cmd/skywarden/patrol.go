package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zypherlabs/skywarden/internal/alert"
	"github.com/zypherlabs/skywarden/internal/comms"
	"github.com/zypherlabs/skywarden/internal/flight"
	"github.com/zypherlabs/skywarden/internal/logging"
	"github.com/zypherlabs/skywarden/internal/mission"
	"github.com/zypherlabs/skywarden/internal/model"
)

var patrolFlags struct {
	waypoints string
	altitude  float64
	speed     float64
	loop      bool
}

var patrolCmd = &cobra.Command{
	Use:   "patrol",
	Short: "Fly a surveillance patrol over a waypoint route",
	RunE:  runPatrol,
}

func init() {
	rootCmd.AddCommand(patrolCmd)

	patrolCmd.Flags().StringVar(&patrolFlags.waypoints, "waypoints", "", "waypoint file (required)")
	patrolCmd.Flags().Float64Var(&patrolFlags.altitude, "altitude", 0, "patrol altitude in meters (default from config)")
	patrolCmd.Flags().Float64Var(&patrolFlags.speed, "speed", 0, "cruise speed in m/s (default from config)")
	patrolCmd.Flags().BoolVar(&patrolFlags.loop, "loop", false, "restart the route after the last waypoint")
	patrolCmd.MarkFlagRequired("waypoints")
}

func runPatrol(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	altitude := patrolFlags.altitude
	if altitude <= 0 {
		altitude = cfg.Surveillance.DefaultAltitudeM
	}
	speed := patrolFlags.speed
	if speed <= 0 {
		speed = cfg.Surveillance.DefaultSpeedMS
	}
	wps, err := mission.LoadWaypoints(patrolFlags.waypoints, altitude)
	if err != nil {
		return err
	}

	m := &model.Mission{
		ID:        a.ids.New(),
		Type:      "patrol",
		Status:    model.StatusDraft,
		CreatedAt: model.Now(),
		CreatedBy: a.droneID(),
		Waypoints: wps,
		Parameters: model.Parameters{
			AltitudeM:        altitude,
			SpeedMS:          speed,
			Loop:             patrolFlags.loop,
			DetectionClasses: cfg.Vision.TargetClasses,
		},
	}
	if err := a.store.SaveMission(m); err != nil {
		return fmt.Errorf("saving mission: %w", err)
	}
	logger.Info("mission created", logging.MissionID(m.ID), zap.Int("waypoints", len(wps)))

	fc := flight.NewController(logger)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Flight.HeartbeatTimeoutS)*time.Second)
	defer cancel()
	if err := fc.Connect(ctx, cfg.Flight.Connection); err != nil {
		return fmt.Errorf("connecting to vehicle: %w", err)
	}
	defer fc.Disconnect()

	var publisher *comms.Client
	if cfg.MQTT.Broker != "" {
		client := comms.NewClient(comms.Config{
			Broker:      cfg.MQTT.Broker,
			Port:        cfg.MQTT.Port,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			DroneID:     a.droneID(),
			UseTLS:      cfg.MQTT.UseTLS,
			QoS:         byte(cfg.MQTT.QoS),
		}, logger)
		if err := client.Connect(); err != nil {
			// Patrols fly without a broker; findings still persist.
			logger.Warn("broker unavailable, continuing offline", zap.Error(err))
		} else {
			publisher = client
			defer publisher.Close()
		}
	}

	cam, det := buildVision()
	var alertPub alert.Publisher
	var statusPub mission.StatusPublisher
	if publisher != nil {
		alertPub = publisher
		statusPub = publisher
	}
	pipeline := alert.NewPipeline(alert.Config{
		DroneID:             a.droneID(),
		DetectionsDir:       cfg.Data.DetectionsDir,
		ConfidenceThreshold: cfg.Vision.ConfidenceThreshold,
		TargetClasses:       cfg.Vision.TargetClasses,
		Cooldown:            time.Duration(cfg.Surveillance.AlertCooldownS * float64(time.Second)),
	}, a.store, a.auditor, a.engine, a.ids, alertPub, logger)

	ctrl := mission.NewController(missionConfig(), fc, cam, det, pipeline, a.store, a.auditor, statusPub, logger)

	if publisher != nil {
		if err := publisher.OnCommand(commandHandler(a, ctrl)); err != nil {
			logger.Warn("command subscription failed", zap.Error(err))
		}
		stopTelemetry := publishTelemetry(publisher, fc, a.droneID())
		defer stopTelemetry()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		s := <-sigCh
		logger.Warn("signal received, aborting mission", zap.String("signal", s.String()))
		if err := ctrl.Abort("operator signal"); err != nil {
			logger.Error("abort failed", zap.Error(err))
		}
	}()

	if err := ctrl.Start(m); err != nil {
		var pf *mission.ErrPreflight
		if errors.As(err, &pf) {
			fmt.Printf("Preflight failed, %d condition(s):\n", len(pf.Failures))
			for _, f := range pf.Failures {
				fmt.Printf("  - %s\n", f)
			}
		}
		return err
	}
	fmt.Printf("Mission %s finished: %s, %d finding(s)\n", m.ID, ctrl.State(), ctrl.Findings())
	return nil
}

// commandHandler verifies inbound operator commands and applies the
// accepted ones to the running mission.
func commandHandler(a *app, ctrl *mission.Controller) comms.CommandHandler {
	maxAge := time.Duration(cfg.Surveillance.CommandMaxAgeS) * time.Second
	return func(cmd comms.Command) {
		payload := map[string]any{
			"action":      cmd.Action,
			"operator_id": cmd.OperatorID,
			"timestamp":   cmd.Timestamp,
		}
		if len(cmd.Params) > 0 {
			payload["params"] = cmd.Params
		}
		ok, reason := a.engine.VerifyCommand(payload, cmd.OperatorID, cmd.Secret, cmd.MAC, maxAge)
		if _, err := a.auditor.Log("command_received", map[string]any{
			"action":      cmd.Action,
			"operator_id": cmd.OperatorID,
			"accepted":    ok,
			"reason":      reason,
		}); err != nil {
			logger.Error("audit command failed", zap.Error(err))
		}
		if !ok {
			logger.Warn("command rejected",
				logging.Action(cmd.Action),
				logging.Actor(cmd.OperatorID),
				zap.String("reason", reason))
			return
		}

		var err error
		switch cmd.Action {
		case "pause":
			err = ctrl.Pause()
		case "resume":
			err = ctrl.Resume()
		case "abort", "rtl":
			err = ctrl.Abort("operator command")
		default:
			logger.Warn("unsupported command action", logging.Action(cmd.Action))
			return
		}
		if err != nil {
			logger.Warn("command not applied", logging.Action(cmd.Action), zap.Error(err))
		}
	}
}

// publishTelemetry streams telemetry snapshots to the broker until
// the returned stop function is called.
func publishTelemetry(pub *comms.Client, fc *flight.Controller, droneID string) func() {
	done := make(chan struct{})
	go func() {
		tick := time.NewTicker(time.Second)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				t := fc.Telemetry()
				if !t.HasPosition() {
					continue
				}
				err := pub.PublishTelemetry(comms.TelemetryPayload{
					DroneID:    droneID,
					Timestamp:  model.Now(),
					Lat:        t.Lat,
					Lon:        t.Lon,
					Alt:        t.AltM,
					Heading:    t.HeadingDeg,
					Speed:      t.GroundspeedMS,
					BatteryPct: t.BatteryPct,
					Mode:       t.Mode,
					Armed:      t.Armed,
				})
				if err != nil {
					logger.Debug("telemetry publish failed", zap.Error(err))
				}
			}
		}
	}()
	return func() { close(done) }
}

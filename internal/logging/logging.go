// Package logging provides structured logging configuration.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration options.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New creates a new configured zap logger.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "console"
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("service", "skywarden"))

	return logger, nil
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// MissionID returns a zap field for a mission identifier.
func MissionID(id string) zap.Field { return zap.String("mission_id", id) }

// FindingID returns a zap field for a finding identifier.
func FindingID(id string) zap.Field { return zap.String("finding_id", id) }

// Actor returns a zap field for an audit actor.
func Actor(actor string) zap.Field { return zap.String("actor", actor) }

// Action returns a zap field for an audit action tag.
func Action(action string) zap.Field { return zap.String("action", action) }

// Waypoint returns a zap field for a waypoint index.
func Waypoint(i int) zap.Field { return zap.Int("waypoint", i) }

// Mode returns a zap field for a flight mode name.
func Mode(mode string) zap.Field { return zap.String("mode", mode) }

// BatteryPct returns a zap field for a battery percentage.
func BatteryPct(pct int) zap.Field { return zap.Int("battery_pct", pct) }

// Lat returns a zap field for a latitude in degrees.
func Lat(lat float64) zap.Field { return zap.Float64("lat", lat) }

// Lon returns a zap field for a longitude in degrees.
func Lon(lon float64) zap.Field { return zap.Float64("lon", lon) }

// Alt returns a zap field for an altitude in meters.
func Alt(alt float64) zap.Field { return zap.Float64("alt", alt) }

// Class returns a zap field for a detection class name.
func Class(class string) zap.Field { return zap.String("class", class) }

// Confidence returns a zap field for a detection confidence.
func Confidence(conf float64) zap.Field { return zap.Float64("confidence", conf) }

// Command returns a zap field for a protocol command id.
func Command(id uint16) zap.Field { return zap.Uint16("command", id) }

// Conn returns a zap field for a link connection string.
func Conn(conn string) zap.Field { return zap.String("conn", conn) }

// Topic returns a zap field for an MQTT topic.
func Topic(topic string) zap.Field { return zap.String("topic", topic) }

// DroneID returns a zap field for the device identifier.
func DroneID(id string) zap.Field { return zap.String("drone_id", id) }

// Package config loads daemon configuration from YAML and environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the mission-control core.
type Config struct {
	Drone        DroneConfig
	Flight       FlightConfig
	Data         DataConfig
	Vision       VisionConfig
	MQTT         MQTTConfig
	Surveillance SurveillanceConfig
	Log          LogConfig
}

// DroneConfig holds device identity settings.
type DroneConfig struct {
	IdentityDir string
	OrgID       string
}

// FlightConfig holds flight-controller link settings.
type FlightConfig struct {
	Connection         string
	HeartbeatTimeoutS  int
	WaypointToleranceM float64
}

// DataConfig holds persistence settings.
type DataConfig struct {
	DBPath        string
	DetectionsDir string
}

// VisionConfig holds detection settings consumed at the vision boundary.
type VisionConfig struct {
	ConfidenceThreshold float64
	TargetClasses       []string
	FrameDir            string
}

// MQTTConfig holds pub/sub transport settings. An empty Broker disables
// the transport entirely; patrols run without it.
type MQTTConfig struct {
	Broker      string
	Port        int
	TopicPrefix string
	UseTLS      bool
	QoS         int
}

// SurveillanceConfig holds patrol-loop tuning.
type SurveillanceConfig struct {
	AlertCooldownS   float64
	WaypointHoverS   float64
	DetectionLoiterS float64
	RTLBatteryPct    int
	MinBatteryPct    int
	CommandMaxAgeS   int
	DefaultAltitudeM float64
	DefaultSpeedMS   float64
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from the config file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("drone.identity_dir", "/etc/skywarden/identity")
	v.SetDefault("drone.org_id", "zypher-prototype")
	v.SetDefault("flight.connection", "udp:127.0.0.1:14550")
	v.SetDefault("flight.heartbeat_timeout_s", 5)
	v.SetDefault("flight.waypoint_tolerance_m", 2.0)
	v.SetDefault("data.db_path", "/var/skywarden/missions.db")
	v.SetDefault("data.detections_dir", "/var/skywarden/detections")
	v.SetDefault("vision.confidence_threshold", 0.5)
	v.SetDefault("vision.target_classes", []string{"person", "vehicle"})
	v.SetDefault("vision.frame_dir", "")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.topic_prefix", "drone")
	v.SetDefault("mqtt.use_tls", false)
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("surveillance.alert_cooldown_s", 30.0)
	v.SetDefault("surveillance.waypoint_hover_s", 5.0)
	v.SetDefault("surveillance.detection_loiter_s", 10.0)
	v.SetDefault("surveillance.rtl_battery_pct", 25)
	v.SetDefault("surveillance.min_battery_pct", 30)
	v.SetDefault("surveillance.command_max_age_s", 30)
	v.SetDefault("surveillance.default_altitude_m", 30.0)
	v.SetDefault("surveillance.default_speed_ms", 5.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/skywarden")
	v.AddConfigPath(".")

	if configPath := os.Getenv("SKYWARDEN_CONFIG_PATH"); configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK - defaults plus env vars apply.
	}

	v.SetEnvPrefix("SKYWARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Drone: DroneConfig{
			IdentityDir: v.GetString("drone.identity_dir"),
			OrgID:       v.GetString("drone.org_id"),
		},
		Flight: FlightConfig{
			Connection:         v.GetString("flight.connection"),
			HeartbeatTimeoutS:  v.GetInt("flight.heartbeat_timeout_s"),
			WaypointToleranceM: v.GetFloat64("flight.waypoint_tolerance_m"),
		},
		Data: DataConfig{
			DBPath:        v.GetString("data.db_path"),
			DetectionsDir: v.GetString("data.detections_dir"),
		},
		Vision: VisionConfig{
			ConfidenceThreshold: v.GetFloat64("vision.confidence_threshold"),
			TargetClasses:       v.GetStringSlice("vision.target_classes"),
			FrameDir:            v.GetString("vision.frame_dir"),
		},
		MQTT: MQTTConfig{
			Broker:      v.GetString("mqtt.broker"),
			Port:        v.GetInt("mqtt.port"),
			TopicPrefix: v.GetString("mqtt.topic_prefix"),
			UseTLS:      v.GetBool("mqtt.use_tls"),
			QoS:         v.GetInt("mqtt.qos"),
		},
		Surveillance: SurveillanceConfig{
			AlertCooldownS:   v.GetFloat64("surveillance.alert_cooldown_s"),
			WaypointHoverS:   v.GetFloat64("surveillance.waypoint_hover_s"),
			DetectionLoiterS: v.GetFloat64("surveillance.detection_loiter_s"),
			RTLBatteryPct:    v.GetInt("surveillance.rtl_battery_pct"),
			MinBatteryPct:    v.GetInt("surveillance.min_battery_pct"),
			CommandMaxAgeS:   v.GetInt("surveillance.command_max_age_s"),
			DefaultAltitudeM: v.GetFloat64("surveillance.default_altitude_m"),
			DefaultSpeedMS:   v.GetFloat64("surveillance.default_speed_ms"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Flight.Connection == "" {
		return fmt.Errorf("flight.connection is required")
	}
	if cfg.Flight.HeartbeatTimeoutS <= 0 {
		return fmt.Errorf("flight.heartbeat_timeout_s must be greater than 0")
	}
	if cfg.Flight.WaypointToleranceM <= 0 {
		return fmt.Errorf("flight.waypoint_tolerance_m must be greater than 0")
	}
	if cfg.Surveillance.RTLBatteryPct < 0 || cfg.Surveillance.RTLBatteryPct > 100 {
		return fmt.Errorf("surveillance.rtl_battery_pct must be 0-100")
	}
	if cfg.Surveillance.MinBatteryPct < 0 || cfg.Surveillance.MinBatteryPct > 100 {
		return fmt.Errorf("surveillance.min_battery_pct must be 0-100")
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1, or 2")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Log.Level)
	}

	return nil
}

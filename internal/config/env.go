package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STREAM_TRACKER_"

// LoadEnv loads envFile (if it exists) into the process environment without
// overriding variables already set, then applies STREAM_TRACKER_* overrides
// to cfg.
func LoadEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	ApplyEnv(cfg)
	return Validate(cfg)
}

// ApplyEnv overrides cfg fields from STREAM_TRACKER_* variables. Values
// that do not parse are ignored.
func ApplyEnv(cfg *Config) {
	cfg.Sources = getEnvAsInt("SOURCES", cfg.Sources)
	cfg.Devices = getEnvAsInt("DEVICES", cfg.Devices)
	cfg.Model = getEnv("MODEL", cfg.Model)
	cfg.Postprocess = getEnv("POSTPROCESS", cfg.Postprocess)
	cfg.Crop = getEnv("CROP", cfg.Crop)
	cfg.DetectEveryN = getEnvAsInt("DETECTION_EVERY_N_FRAMES", cfg.DetectEveryN)
	cfg.Display = getEnvAsBool("DISPLAY", cfg.Display)
	cfg.PollIntervalMS = getEnvAsInt("POLL_INTERVAL_MS", cfg.PollIntervalMS)
	cfg.Capture.Kind = getEnv("CAPTURE_KIND", cfg.Capture.Kind)
	if v := getEnv("CAPTURE_LOCATIONS", ""); v != "" {
		cfg.Capture.Locations = strings.Split(v, ",")
	}
	cfg.Inference.TensorMetaAPI = getEnv("TENSOR_META_API", cfg.Inference.TensorMetaAPI)
	cfg.Report.MQTT.Broker = getEnv("MQTT_BROKER", cfg.Report.MQTT.Broker)
	cfg.Report.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", cfg.Report.MQTT.TopicPrefix)
	cfg.Report.WebSocket.Listen = getEnv("WEBSOCKET_LISTEN", cfg.Report.WebSocket.Listen)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

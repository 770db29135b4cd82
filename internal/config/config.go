package config

import (
	"fmt"
	"os"
	"time"

	"wisefido-iop/internal/camera"
	"wisefido-iop/internal/capture"
	commoncfg "wisefido-iop/internal/common/config"
	"wisefido-iop/internal/connectivity"
)

// Config wisefido-iop 服务配置
type Config struct {
	HTTP struct {
		Addr string
	}

	DBEnabled    bool
	Database     commoncfg.DatabaseConfig
	RedisEnabled bool
	Redis        commoncfg.RedisConfig
	MQTTEnabled  bool
	MQTT         commoncfg.MQTTConfig

	IOP struct {
		Topics struct {
			DeviceStatus string // 设备状态广播主题
		}
		Keys struct {
			Connected string // 持久化键：连接状态
			Busy      string // 持久化键：校准中
		}
		MeasurementStream string // 测量记录 Redis Stream
		HandoffTTL        time.Duration
	}

	Camera struct {
		Env            camera.Environment
		PreviewURL     string
		Surface        string
		AcquireTimeout time.Duration
		SimulateDenied bool
	}

	Capture struct {
		Dwell  time.Duration
		Settle time.Duration
	}

	Calibration struct {
		Duration time.Duration
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8090")

	// 默认值，再由 DB_* / REDIS_* / MQTT_* 覆盖
	cfg.DBEnabled = getEnv("DB_ENABLED", "false") == "true"
	cfg.Database = commoncfg.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "owlrd",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  2,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.RedisEnabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis = commoncfg.RedisConfig{
		Addr:        "localhost:6379",
		PoolSize:    10,
		DialTimeout: 3 * time.Second,
		ReadTimeout: 3 * time.Second,
	}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTTEnabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT = commoncfg.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "wisefido-iop",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.IOP.Topics.DeviceStatus = getEnv("IOP_TOPIC_DEVICE_STATUS", "iop/device/status")
	cfg.IOP.Keys.Connected = getEnv("IOP_KEY_CONNECTED", connectivity.DefaultConnectedKey)
	cfg.IOP.Keys.Busy = getEnv("IOP_KEY_BUSY", connectivity.DefaultBusyKey)
	cfg.IOP.MeasurementStream = getEnv("IOP_MEASUREMENT_STREAM", "iop:measurement:stream")
	cfg.IOP.HandoffTTL = parseDuration(getEnv("IOP_HANDOFF_TTL", "10m"), 10*time.Minute)

	cfg.Camera.Env = camera.Environment(getEnv("CAMERA_ENV", string(camera.EnvMediaStream)))
	cfg.Camera.PreviewURL = getEnv("CAMERA_PREVIEW_URL", "")
	cfg.Camera.Surface = getEnv("CAMERA_SURFACE", capture.DefaultSurface)
	cfg.Camera.AcquireTimeout = parseDuration(getEnv("CAMERA_ACQUIRE_TIMEOUT", "10s"), 10*time.Second)
	cfg.Camera.SimulateDenied = getEnv("CAMERA_SIMULATE_DENIED", "false") == "true"

	cfg.Capture.Dwell = parseDuration(getEnv("CAPTURE_DWELL", "2s"), capture.DefaultDwell)
	cfg.Capture.Settle = parseDuration(getEnv("CAPTURE_SETTLE", "500ms"), capture.DefaultSettle)
	cfg.Calibration.Duration = parseDuration(getEnv("CALIBRATION_DURATION", "2s"), connectivity.DefaultCalibrationDuration)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Camera.Env {
	case camera.EnvMediaStream:
	case camera.EnvNative:
		if c.Camera.PreviewURL == "" {
			return fmt.Errorf("CAMERA_PREVIEW_URL is required when CAMERA_ENV=%s", camera.EnvNative)
		}
	default:
		return fmt.Errorf("invalid CAMERA_ENV: %q", c.Camera.Env)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

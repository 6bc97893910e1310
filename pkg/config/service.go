package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/NotCoffee418/vitals_rig/pkg/errors"
	"github.com/NotCoffee418/vitals_rig/pkg/pathing"
)

var ActiveRigConfig *RigConfig

func DefaultRigConfig() *RigConfig {
	return &RigConfig{
		Serial: SerialConfig{
			Device:           "",
			Baudrate:         115200,
			ReadTimeoutMs:    100,
			WriteTimeoutMs:   1000,
			PollIntervalMs:   10,
			BacklogThreshold: 100,
			JoinTimeoutMs:    2000,
			SubscriberBuffer: 64,
		},
		BP: BPConfig{
			RowSpreadThreshold: 50,
			HistorySize:        5,
			NoiseFloor:         5,
			LeadingDigitFloor:  10,
			StableFrames:       4,
			DeadBand:           1,
		},
		HTTP: HTTPConfig{
			ListenAddress:    "0.0.0.0",
			ListenPort:       9040,
			StreamIntervalMs: 250,
		},
		Vision: VisionConfig{
			FeedHost: "localhost:9041",
		},
		Journal: JournalConfig{
			Enabled: false,
			Path:    pathing.GetJournalDbPath(),
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Broker:      "tcp://localhost:1883",
			ClientID:    "vitals-rig",
			TopicPrefix: "vitals_rig",
			QoS:         1,
		},
	}
}

// LoadRigConfig loads the config at path, writing defaults there first
// if the file does not exist.
func LoadRigConfig(path string) (*RigConfig, error) {
	errFactory := errors.New()

	// Create default if not exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultRigConfig()
		if err := pathing.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, errFactory.Wrap(errors.ErrWriteConfig, err)
		}
		cfgFile, err := os.Create(path)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrWriteConfig, err)
		}
		defer cfgFile.Close()
		if err := toml.NewEncoder(cfgFile).Encode(cfg); err != nil {
			return nil, errFactory.Wrap(errors.ErrWriteConfig, err)
		}
		ActiveRigConfig = cfg
		return cfg, nil
	}

	// Unset keys keep their defaults
	cfg := DefaultRigConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ActiveRigConfig = cfg
	return cfg, nil
}

func (c *RigConfig) Validate() error {
	errFactory := errors.New()

	switch {
	case c.Serial.Baudrate == 0:
		return errFactory.WithData(errors.ErrInvalidConfig, "serial.baudrate must be positive")
	case c.Serial.ReadTimeoutMs < 100:
		// VTIME granularity on Linux is a tenth of a second
		return errFactory.WithData(errors.ErrInvalidConfig, "serial.read_timeout_ms must be at least 100")
	case c.Serial.BacklogThreshold < 0:
		return errFactory.WithData(errors.ErrInvalidConfig, "serial.backlog_threshold must not be negative")
	case c.Serial.SubscriberBuffer <= 0:
		return errFactory.WithData(errors.ErrInvalidConfig, "serial.subscriber_buffer must be positive")
	case c.BP.RowSpreadThreshold <= 0:
		return errFactory.WithData(errors.ErrInvalidConfig, "bp.row_spread_threshold must be positive")
	case c.BP.HistorySize <= 0:
		return errFactory.WithData(errors.ErrInvalidConfig, "bp.history_size must be positive")
	case c.BP.StableFrames <= 0:
		return errFactory.WithData(errors.ErrInvalidConfig, "bp.stable_frames must be positive")
	case c.BP.DeadBand < 0:
		return errFactory.WithData(errors.ErrInvalidConfig, "bp.dead_band must not be negative")
	case c.Journal.Enabled && c.Journal.Path == "":
		return errFactory.WithData(errors.ErrInvalidConfig, "journal.path is required when the journal is enabled")
	case c.MQTT.Enabled && c.MQTT.Broker == "":
		return errFactory.WithData(errors.ErrInvalidConfig, "mqtt.broker is required when mqtt is enabled")
	case c.MQTT.QoS > 2:
		return errFactory.WithData(errors.ErrInvalidConfig, "mqtt.qos must be 0, 1 or 2")
	}
	return nil
}

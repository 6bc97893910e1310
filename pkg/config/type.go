package config

// RigConfig is the daemon configuration, stored as TOML.
type RigConfig struct {
	Serial  SerialConfig  `toml:"serial"`
	BP      BPConfig      `toml:"bp"`
	HTTP    HTTPConfig    `toml:"http"`
	Vision  VisionConfig  `toml:"vision"`
	Journal JournalConfig `toml:"journal"`
	MQTT    MQTTConfig    `toml:"mqtt"`
	Log     LogConfig     `toml:"log"`
}

type SerialConfig struct {
	// Leave empty to auto-discover the microcontroller
	Device           string `toml:"device"`
	Baudrate         uint   `toml:"baudrate"`
	ReadTimeoutMs    uint   `toml:"read_timeout_ms"`
	WriteTimeoutMs   uint   `toml:"write_timeout_ms"`
	PollIntervalMs   uint   `toml:"poll_interval_ms"`
	BacklogThreshold int    `toml:"backlog_threshold"`
	JoinTimeoutMs    uint   `toml:"join_timeout_ms"`
	SubscriberBuffer int    `toml:"subscriber_buffer"`
}

type BPConfig struct {
	// Vertical pixel spread separating one running number from a stacked
	// SYS/DIA pair. Depends on the camera's framing and resolution.
	RowSpreadThreshold float64 `toml:"row_spread_threshold"`
	HistorySize        int     `toml:"history_size"`
	NoiseFloor         int     `toml:"noise_floor"`
	LeadingDigitFloor  int     `toml:"leading_digit_floor"`
	StableFrames       int     `toml:"stable_frames"`
	DeadBand           int     `toml:"dead_band"`
}

type HTTPConfig struct {
	ListenAddress    string `toml:"listen_address"`
	ListenPort       int    `toml:"listen_port"`
	StreamIntervalMs uint   `toml:"stream_interval_ms"`
}

type VisionConfig struct {
	// host:port of the vision process publishing glyph frames on /glyphs
	FeedHost string `toml:"feed_host"`
}

type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type MQTTConfig struct {
	Enabled     bool   `toml:"enabled"`
	Broker      string `toml:"broker"`
	ClientID    string `toml:"client_id"`
	TopicPrefix string `toml:"topic_prefix"`
	QoS         byte   `toml:"qos"`
}

type LogConfig struct {
	Debug   bool `toml:"debug"`
	Verbose bool `toml:"verbose"`
}

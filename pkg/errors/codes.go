package errors

const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrWriteConfig     ErrorCode = "write_config_failed"

	// Serial link errors
	ErrPortNotFound      ErrorCode = "port_not_found"
	ErrConnectionFailure ErrorCode = "connection_failed"
	ErrWriteFailure      ErrorCode = "write_failed"
	ErrNotConnected      ErrorCode = "not_connected"
	ErrThreadJoinTimeout ErrorCode = "thread_join_timeout"
	ErrSubscriberExists  ErrorCode = "subscriber_exists"
	ErrLinkClosed        ErrorCode = "link_closed"

	// Data-level anomalies, swallowed by design
	ErrParseIgnored   ErrorCode = "parse_ignored"
	ErrNoiseRejected  ErrorCode = "noise_rejected"
	ErrUnknownMessage ErrorCode = "unknown_message"

	// Journal errors
	ErrJournalOpen    ErrorCode = "journal_open_failed"
	ErrJournalWrite   ErrorCode = "journal_write_failed"
	ErrJournalRead    ErrorCode = "journal_read_failed"
	ErrSessionMissing ErrorCode = "journal_session_missing"

	// Outbound errors
	ErrPublishFailed ErrorCode = "publish_failed"
	ErrFeedFailed    ErrorCode = "glyph_feed_failed"
)

var errorMessages = map[ErrorCode]string{
	ErrInternal:          "Internal error occurred",
	ErrInvalidArgument:   "Invalid argument provided",
	ErrInvalidConfig:     "Invalid configuration",
	ErrReadConfig:        "Failed to read configuration",
	ErrWriteConfig:       "Failed to write default configuration",
	ErrPortNotFound:      "No matching serial device found",
	ErrConnectionFailure: "Failed to open serial port",
	ErrWriteFailure:      "Failed to send command",
	ErrNotConnected:      "Serial link not connected",
	ErrThreadJoinTimeout: "Reader did not stop in time",
	ErrSubscriberExists:  "Subscriber already registered",
	ErrLinkClosed:        "Serial link closed",
	ErrParseIgnored:      "Telemetry payload could not be parsed",
	ErrNoiseRejected:     "Reading below validity floor",
	ErrUnknownMessage:    "Unrecognized telemetry line",
	ErrJournalOpen:       "Failed to open journal",
	ErrJournalWrite:      "Failed to write journal entry",
	ErrJournalRead:       "Failed to read journal",
	ErrSessionMissing:    "Journal session not found",
	ErrPublishFailed:     "Failed to publish measurement",
	ErrFeedFailed:        "Glyph feed failed",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}

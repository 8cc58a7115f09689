package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"uartviewer/serial"
)

// ValidationError contains details about configuration validation failures
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors
func Validate(cfg *Config) error {
	var errors ValidationErrors

	devicesSeen := make(map[string]bool)
	for i, port := range cfg.Ports {
		portErrors := validatePort(port, i, devicesSeen)
		errors = append(errors, portErrors...)
	}

	// Validate timestamp
	if cfg.Timestamp.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timestamp.Timezone); err != nil {
			errors = append(errors, ValidationError{
				Field:   "timestamp.timezone",
				Message: fmt.Sprintf("unknown timezone: %s", cfg.Timestamp.Timezone),
			})
		}
	}

	errors = append(errors, validateSession(&cfg.Session)...)

	// Validate logging
	if !containsString([]string{"debug", "info", "warn", "error"}, strings.ToLower(cfg.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level: %s", cfg.Logging.Level),
		})
	}
	if cfg.Logging.BasePath != "" {
		if info, err := os.Stat(cfg.Logging.BasePath); err != nil || !info.IsDir() {
			errors = append(errors, ValidationError{
				Field:   "logging.base_path",
				Message: fmt.Sprintf("directory does not exist: %s", cfg.Logging.BasePath),
			})
		}
	}

	// Validate monitoring
	if !cfg.Monitoring.Disabled && (cfg.Monitoring.Port < 1 || cfg.Monitoring.Port > 65535) {
		errors = append(errors, ValidationError{
			Field:   "monitoring.port",
			Message: "must be between 1 and 65535",
		})
	}

	// Validate MQTT
	if cfg.MQTT.Enabled() {
		if !strings.Contains(cfg.MQTT.Broker, "://") {
			errors = append(errors, ValidationError{
				Field:   "mqtt.broker",
				Message: fmt.Sprintf("broker must be a URL such as tcp://host:1883: %s", cfg.MQTT.Broker),
			})
		}
		if cfg.MQTT.QoS > 2 {
			errors = append(errors, ValidationError{
				Field:   "mqtt.qos",
				Message: "must be 0, 1 or 2",
			})
		}
		if strings.ContainsAny(cfg.MQTT.TopicPrefix, "#+") {
			errors = append(errors, ValidationError{
				Field:   "mqtt.topic_prefix",
				Message: "must not contain wildcards",
			})
		}
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func validatePort(port PortConfig, index int, devicesSeen map[string]bool) ValidationErrors {
	var errors ValidationErrors
	prefix := fmt.Sprintf("ports[%d]", index)

	// Check device
	if port.Device == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".device",
			Message: "device path is required",
		})
	} else if devicesSeen[port.Device] {
		errors = append(errors, ValidationError{
			Field:   prefix + ".device",
			Message: fmt.Sprintf("duplicate device: %s", port.Device),
		})
	} else {
		devicesSeen[port.Device] = true
	}

	// Check baud rate
	if !serial.ValidBaud(port.BaudRate) {
		errors = append(errors, ValidationError{
			Field:   prefix + ".baud_rate",
			Message: fmt.Sprintf("invalid baud rate: %d", port.BaudRate),
		})
	}

	if port.DataBits < 5 || port.DataBits > 8 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".data_bits",
			Message: "must be between 5 and 8",
		})
	}

	if port.StopBits != 1 && port.StopBits != 2 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".stop_bits",
			Message: "must be 1 or 2",
		})
	}

	validParity := []string{"none", "odd", "even", "mark", "space"}
	if !containsString(validParity, strings.ToLower(port.Parity)) {
		errors = append(errors, ValidationError{
			Field:   prefix + ".parity",
			Message: fmt.Sprintf("invalid parity: %s (must be one of %s)", port.Parity, strings.Join(validParity, ", ")),
		})
	}

	validBackends := []string{serial.BackendBugst, serial.BackendTarm}
	if !containsString(validBackends, strings.ToLower(port.Backend)) {
		errors = append(errors, ValidationError{
			Field:   prefix + ".backend",
			Message: fmt.Sprintf("unknown backend: %s (available: %s)", port.Backend, strings.Join(validBackends, ", ")),
		})
	}

	return errors
}

func validateSession(s *SessionConfig) ValidationErrors {
	var errors ValidationErrors

	if s.DrainIntervalMs < 1 || s.DrainIntervalMs > 10000 {
		errors = append(errors, ValidationError{
			Field:   "session.drain_interval_ms",
			Message: "must be between 1 and 10000",
		})
	}

	if s.ReadTimeoutMs < 1 || s.ReadTimeoutMs > 5000 {
		errors = append(errors, ValidationError{
			Field:   "session.read_timeout_ms",
			Message: "must be between 1 and 5000",
		})
	}

	if s.IdleSleepMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "session.idle_sleep_ms",
			Message: "must not be negative",
		})
	}

	if s.JoinTimeoutMs < s.ReadTimeoutMs {
		errors = append(errors, ValidationError{
			Field:   "session.join_timeout_ms",
			Message: "must be greater than or equal to read_timeout_ms",
		})
	}

	if s.ReadBufferBytes < 64 || s.ReadBufferBytes > 1<<20 {
		errors = append(errors, ValidationError{
			Field:   "session.read_buffer_bytes",
			Message: "must be between 64 and 1048576",
		})
	}

	return errors
}

func containsString(slice []string, val string) bool {
	for _, item := range slice {
		if item == val {
			return true
		}
	}
	return false
}

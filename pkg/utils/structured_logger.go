// Package utils provides structured logging shared by all tiercache components.
package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the logging level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a string log level
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s", level)
	}
}

// LogFormat defines the output format for logs
type LogFormat int

const (
	FormatText LogFormat = iota
	FormatJSON
)

// ParseLogFormat parses a string log format
func ParseLogFormat(format string) (LogFormat, error) {
	switch strings.ToLower(format) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("invalid log format: %s", format)
	}
}

// LogEntry represents a complete log entry
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// StructuredLogger provides leveled logging with structured fields
type StructuredLogger struct {
	mu            sync.Mutex
	level         LogLevel
	output        io.Writer
	format        LogFormat
	contextFields map[string]interface{}
}

// StructuredLoggerConfig holds configuration for the logger
type StructuredLoggerConfig struct {
	Level  LogLevel
	Output io.Writer
	Format LogFormat
}

// DefaultStructuredLoggerConfig returns default configuration
func DefaultStructuredLoggerConfig() *StructuredLoggerConfig {
	return &StructuredLoggerConfig{
		Level:  INFO,
		Output: os.Stdout,
		Format: FormatText,
	}
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(config *StructuredLoggerConfig) (*StructuredLogger, error) {
	if config == nil {
		config = DefaultStructuredLoggerConfig()
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}

	return &StructuredLogger{
		level:         config.Level,
		output:        config.Output,
		format:        config.Format,
		contextFields: make(map[string]interface{}),
	}, nil
}

// WithField returns a new logger with an additional context field
func (sl *StructuredLogger) WithField(key string, value interface{}) *StructuredLogger {
	return sl.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a new logger with multiple context fields
func (sl *StructuredLogger) WithFields(fields map[string]interface{}) *StructuredLogger {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	newFields := make(map[string]interface{}, len(sl.contextFields)+len(fields))
	for k, v := range sl.contextFields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &StructuredLogger{
		level:         sl.level,
		output:        sl.output,
		format:        sl.format,
		contextFields: newFields,
	}
}

// WithComponent returns a logger with a component field
func (sl *StructuredLogger) WithComponent(component string) *StructuredLogger {
	return sl.WithField("component", component)
}

// SetLevel changes the minimum level that will be written
func (sl *StructuredLogger) SetLevel(level LogLevel) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.level = level
}

// Debug logs a debug message with optional fields
func (sl *StructuredLogger) Debug(message string, fields map[string]interface{}) {
	sl.log(DEBUG, message, fields)
}

// Info logs an info message with optional fields
func (sl *StructuredLogger) Info(message string, fields map[string]interface{}) {
	sl.log(INFO, message, fields)
}

// Warn logs a warning message with optional fields
func (sl *StructuredLogger) Warn(message string, fields map[string]interface{}) {
	sl.log(WARN, message, fields)
}

// Error logs an error message with optional fields
func (sl *StructuredLogger) Error(message string, fields map[string]interface{}) {
	sl.log(ERROR, message, fields)
}

func (sl *StructuredLogger) log(level LogLevel, message string, fields map[string]interface{}) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if level < sl.level {
		return
	}

	merged := make(map[string]interface{}, len(sl.contextFields)+len(fields))
	for k, v := range sl.contextFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	if len(merged) == 0 {
		merged = nil
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   message,
		Fields:    merged,
	}

	switch sl.format {
	case FormatJSON:
		data, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(sl.output, "{\"level\":\"ERROR\",\"message\":\"failed to marshal log entry: %s\"}\n", err)
			return
		}
		fmt.Fprintf(sl.output, "%s\n", data)
	default:
		var parts []string
		parts = append(parts, entry.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
		parts = append(parts, fmt.Sprintf("[%s]", entry.Level))
		parts = append(parts, entry.Message)
		for k, v := range merged {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
		fmt.Fprintln(sl.output, strings.Join(parts, " "))
	}
}

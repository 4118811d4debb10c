package stdout

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"reportfetcher/shared/application/ports"
)

// Log levels in increasing severity
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[string]int{
	"debug": LevelDebug,
	"info":  LevelInfo,
	"warn":  LevelWarn,
	"error": LevelError,
}

// LoggerOptions configures a stdout logger
type LoggerOptions struct {
	Level  string    // debug, info, warn, error; defaults to info
	JSON   bool      // one JSON object per line instead of text
	Output io.Writer // defaults to os.Stdout
}

// Logger implements ports.Logger on a plain writer
type Logger struct {
	fields map[string]interface{}
	logger *log.Logger
	level  int
	json   bool
}

// NewLogger creates a new stdout logger
func NewLogger(opts LoggerOptions) ports.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	level, ok := levelNames[strings.ToLower(opts.Level)]
	if !ok {
		level = LevelInfo
	}

	return &Logger{
		fields: make(map[string]interface{}),
		logger: log.New(out, "", 0), // No prefix, we'll format ourselves
		level:  level,
		json:   opts.JSON,
	}
}

func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.log(LevelDebug, "DEBUG", msg, fields...)
}

// Info logs informational messages
func (l *Logger) Info(msg string, fields ...interface{}) {
	l.log(LevelInfo, "INFO", msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.log(LevelWarn, "WARN", msg, fields...)
}

// Error logs error messages
func (l *Logger) Error(msg string, fields ...interface{}) {
	l.log(LevelError, "ERROR", msg, fields...)
}

// WithFields returns a new Logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) ports.Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))

	// Copy existing fields
	for k, v := range l.fields {
		newFields[k] = v
	}

	// Add new fields
	for k, v := range fields {
		newFields[k] = v
	}

	return &Logger{
		fields: newFields,
		logger: l.logger,
		level:  l.level,
		json:   l.json,
	}
}

// log is the internal logging method
func (l *Logger) log(level int, levelName string, msg string, fields ...interface{}) {
	if level < l.level {
		return
	}

	entry := l.createLogEntry(levelName, msg, fields...)

	if l.json {
		l.logJSON(entry)
	} else {
		l.logText(entry)
	}
}

// createLogEntry builds the log entry
func (l *Logger) createLogEntry(level string, msg string, fields ...interface{}) map[string]interface{} {
	entry := make(map[string]interface{}, len(l.fields)+len(fields)/2+3)

	// Add persistent fields
	for k, v := range l.fields {
		entry[k] = v
	}

	// Parse variadic fields (key1, value1, key2, value2, ...)
	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}

		// Errors are not JSON friendly
		if err, ok := fields[i+1].(error); ok && err != nil {
			entry[key] = err.Error()
		} else {
			entry[key] = fields[i+1]
		}
	}

	// Standard fields win over caller fields
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	entry["level"] = level
	entry["message"] = msg

	return entry
}

// logJSON outputs the entry as JSON
func (l *Logger) logJSON(entry map[string]interface{}) {
	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("Failed to marshal log entry: %v", err)
		return
	}
	l.logger.Println(string(jsonBytes))
}

// logText outputs the entry as formatted text
func (l *Logger) logText(entry map[string]interface{}) {
	timestamp := entry["timestamp"]
	level := entry["level"]
	message := entry["message"]
	delete(entry, "timestamp")
	delete(entry, "level")
	delete(entry, "message")

	keys := make([]string, 0, len(entry))
	for k := range entry {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fieldStrs := make([]string, 0, len(keys))
	for _, k := range keys {
		fieldStrs = append(fieldStrs, fmt.Sprintf("%s=%v", k, entry[k]))
	}

	// Build final log line
	logLine := fmt.Sprintf("%s [%s] %s", timestamp, level, message)
	if len(fieldStrs) > 0 {
		logLine += " | " + strings.Join(fieldStrs, " ")
	}

	l.logger.Println(logLine)
}

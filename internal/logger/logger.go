package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// Info logs informational messages. The last argument may be a []Field to
// switch to structured output.
func Info(format string, args ...interface{}) {
	if fields, ok := trailingFields(args); ok {
		logStructured("INFO", format, fields...)
		return
	}
	log.Printf("INFO: "+format, args...)
}

// Warn logs warning messages
func Warn(format string, args ...interface{}) {
	if fields, ok := trailingFields(args); ok {
		logStructured("WARN", format, fields...)
		return
	}
	log.Printf("WARN: "+format, args...)
}

// Error logs error messages
func Error(format string, args ...interface{}) {
	if fields, ok := trailingFields(args); ok {
		logStructured("ERROR", format, fields...)
		return
	}
	log.Printf("ERROR: "+format, args...)
}

// Debug logs debug messages. Suppressed unless LOG_LEVEL=debug.
func Debug(format string, args ...interface{}) {
	if os.Getenv("LOG_LEVEL") != "debug" {
		return
	}
	if fields, ok := trailingFields(args); ok {
		logStructured("DEBUG", format, fields...)
		return
	}
	log.Printf("DEBUG: "+format, args...)
}

func trailingFields(args []interface{}) ([]Field, bool) {
	if len(args) == 0 {
		return nil, false
	}
	fields, ok := args[len(args)-1].([]Field)
	return fields, ok
}

func logStructured(level, msg string, fields ...Field) {
	if os.Getenv("LOG_FORMAT") == "json" {
		entry := map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"level":     level,
			"message":   msg,
		}
		for _, field := range fields {
			entry[field.Key] = field.Value
		}
		data, _ := json.Marshal(entry)
		log.Println(string(data))
		return
	}

	fieldStr := ""
	for _, field := range fields {
		fieldStr += fmt.Sprintf(" %s=%v", field.Key, field.Value)
	}
	log.Printf("%s: %s%s", level, msg, fieldStr)
}

// Helper functions for common field types

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Err(key string, err error) Field {
	if err == nil {
		return Field{Key: key, Value: nil}
	}
	return Field{Key: key, Value: err.Error()}
}

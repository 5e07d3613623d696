package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync/atomic"
)

// Level controls which records are emitted.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var currentLevel atomic.Int32

func init() {
	currentLevel.Store(int32(LevelInfo))
	log.SetFlags(log.LstdFlags | log.LUTC)
}

// SetLevel sets the global log level by name ("debug", "info", "warn", "error").
func SetLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		currentLevel.Store(int32(LevelDebug))
	case "warn", "warning":
		currentLevel.Store(int32(LevelWarn))
	case "error":
		currentLevel.Store(int32(LevelError))
	default:
		currentLevel.Store(int32(LevelInfo))
	}
}

func emit(level Level, tag, component, msg string, fields map[string]interface{}) {
	if level < Level(currentLevel.Load()) {
		return
	}
	var b strings.Builder
	b.WriteString(tag)
	b.WriteString(" [")
	b.WriteString(component)
	b.WriteString("] ")
	b.WriteString(msg)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(" ")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(fieldValue(fields[k]))
		}
	}
	log.Output(3, b.String())
}

func fieldValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " \t\"") {
			raw, _ := json.Marshal(val)
			return string(raw)
		}
		return val
	case error:
		return fieldValue(val.Error())
	default:
		return fmt.Sprintf("%v", val)
	}
}

// DebugCF logs a debug record for a component with structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	emit(LevelDebug, "DEBUG", component, msg, fields)
}

// InfoCF logs an info record for a component with structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	emit(LevelInfo, "INFO", component, msg, fields)
}

// WarnCF logs a warning record for a component with structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	emit(LevelWarn, "WARN", component, msg, fields)
}

// ErrorCF logs an error record for a component with structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	emit(LevelError, "ERROR", component, msg, fields)
}

// Fatal logs and exits. Reserved for cmd wiring; library code returns errors.
func Fatal(component, msg string, fields map[string]interface{}) {
	emit(LevelError, "FATAL", component, msg, fields)
	os.Exit(1)
}

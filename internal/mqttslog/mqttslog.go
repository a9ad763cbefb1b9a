// Package mqttslog adapts a [*slog.Logger] to the [mqtt.Logger] interface
// used by the paho MQTT client for its package-level loggers.
package mqttslog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// LevelCritical is the slog level used for paho's CRITICAL logger. It sits
// above [slog.LevelError].
const LevelCritical = slog.LevelError + 4

// New returns an [mqtt.Logger] that writes every line to logger at level.
func New(logger *slog.Logger, level slog.Level) mqtt.Logger {
	return &adapter{logger: logger, level: level}
}

// Install points paho's ERROR, CRITICAL, WARN and DEBUG loggers at logger.
// Debug output is only wired when logger has debug enabled, since paho is very
// chatty at that level.
func Install(logger *slog.Logger) {
	mqtt.ERROR = New(logger, slog.LevelError)
	mqtt.CRITICAL = New(logger, LevelCritical)
	mqtt.WARN = New(logger, slog.LevelWarn)
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		mqtt.DEBUG = New(logger, slog.LevelDebug)
	} else {
		mqtt.DEBUG = mqtt.NOOPLogger{}
	}
}

type adapter struct {
	logger *slog.Logger
	level  slog.Level
}

func (a *adapter) Println(v ...any) {
	a.log(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (a *adapter) Printf(format string, v ...any) {
	a.log(fmt.Sprintf(format, v...))
}

// log splits paho's "[component]   message" convention into an attribute.
func (a *adapter) log(line string) {
	ctx := context.Background()
	if !a.logger.Enabled(ctx, a.level) {
		return
	}
	if rest, ok := strings.CutPrefix(line, "["); ok {
		if name, msg, ok := strings.Cut(rest, "]"); ok {
			a.logger.Log(ctx, a.level, strings.TrimSpace(msg), "mqtt_component", strings.TrimSpace(name))
			return
		}
	}
	a.logger.Log(ctx, a.level, strings.TrimSpace(line))
}

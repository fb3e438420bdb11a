package quac

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Verbosity mirrors the four-level enum the boundary's set_log_verbosity
// hook accepts, mapped onto zerolog's level filtering.
type Verbosity int

const (
	LogNone Verbosity = iota
	LogMinimal
	LogDebug
	LogDebugDiag
)

func (v Verbosity) zerologLevel() zerolog.Level {
	switch v {
	case LogNone:
		return zerolog.Disabled
	case LogMinimal:
		return zerolog.InfoLevel
	case LogDebug:
		return zerolog.DebugLevel
	case LogDebugDiag:
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

func newRootLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// componentLoggers holds the per-component child loggers an Instance hands
// to its parser, builder, controller, and solver stages.
type componentLoggers struct {
	instance   zerolog.Logger
	parser     zerolog.Logger
	builder    zerolog.Logger
	controller zerolog.Logger
	solver     zerolog.Logger
}

func newComponentLoggers(root zerolog.Logger) componentLoggers {
	return componentLoggers{
		instance:   root.With().Str("component", "instance").Logger(),
		parser:     root.With().Str("component", "ham").Logger(),
		builder:    root.With().Str("component", "superop").Logger(),
		controller: root.With().Str("component", "pulse").Logger(),
		solver:     root.With().Str("component", "solver").Logger(),
	}
}

func (c *componentLoggers) setLevel(level zerolog.Level) {
	c.instance = c.instance.Level(level)
	c.parser = c.parser.Level(level)
	c.builder = c.builder.Level(level)
	c.controller = c.controller.Level(level)
	c.solver = c.solver.Level(level)
}

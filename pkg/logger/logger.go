// Package logx configures the global zerolog logger.
package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug        bool   `split_words:"true" default:"false"`
	Level        string `split_words:"true"`
	PrettyFormat bool   `split_words:"true" default:"false"`
	Service      string `split_words:"true" default:"finance-assistant"`
}

var DefaultConfig = &Config{Service: "finance-assistant"}

func safe(opts ...Config) *Config {
	if len(opts) == 0 {
		return DefaultConfig
	}
	return &opts[0]
}

// level resolves LOG_LEVEL first, then LOG_DEBUG. Unknown names fall back to info.
func (c *Config) level() zerolog.Level {
	if name := strings.TrimSpace(c.Level); name != "" {
		if lvl, err := zerolog.ParseLevel(strings.ToLower(name)); err == nil && lvl != zerolog.NoLevel {
			return lvl
		}
	}
	if c.Debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// New builds a logger writing to out. PrettyFormat wraps out in a console writer.
func New(out io.Writer, opts ...Config) zerolog.Logger {
	conf := safe(opts...)
	if conf.PrettyFormat {
		out = zerolog.ConsoleWriter{Out: out}
	}

	ctx := zerolog.New(out).Level(conf.level()).With().Timestamp()
	if svc := strings.TrimSpace(conf.Service); svc != "" {
		ctx = ctx.Str("service", svc)
	}
	return ctx.Caller().Stack().Logger()
}

// Init replaces the global logger with one writing to stdout.
func Init(opts ...Config) {
	log.Logger = New(os.Stdout, opts...)
}

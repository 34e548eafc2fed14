package logger

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

func init() {
	// .Stack() on an event renders the pkg/errors stack of the attached error.
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		return zpkgerrors.MarshalStack(errors.WithStack(err))
	}
	zerolog.ErrorMarshalFunc = func(err error) interface{} { return err.Error() }
}

// New returns a JSON logger on stdout tagged with the service name.
func New(service string) zerolog.Logger {
	return NewWithWriter(os.Stdout, service, "info")
}

// NewWithWriter builds a logger on w at the named level; unknown levels fall back to info.
func NewWithWriter(w io.Writer, service, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).
		Level(lvl).
		With().
		Str("service", service).
		Timestamp().
		Logger()
}

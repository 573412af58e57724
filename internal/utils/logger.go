package utils

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func InitLogger(debug bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// SetLogOutput redirects the global logger, used while the live display owns
// the terminal. Loggers from GetLogger taken before the call keep the old sink.
func SetLogOutput(w io.Writer) {
	output := zerolog.ConsoleWriter{
		Out:        zerolog.SyncWriter(w),
		TimeFormat: time.DateTime,
		NoColor:    true,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

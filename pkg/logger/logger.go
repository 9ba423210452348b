package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init builds the base logger: JSON to stdout in production, colored console
// writer everywhere else. The returned logger carries service and env fields.
func Init(serviceName, env string) *zerolog.Logger {

	const prodStr string = "production"

	switch env {
	case prodStr:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	var baseLogger zerolog.Logger

	if env == prodStr {
		baseLogger = zerolog.New(os.Stdout)
	} else {
		baseLogger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
			NoColor:    false,
			PartsOrder: []string{
				"time", "level", "caller", "service", "env", "message", "err",
			},
			FormatLevel: func(i any) string {
				return strings.ToUpper(fmt.Sprintf("[%s]", i))
			},
			FormatCaller: func(caller any) string {
				return fmt.Sprintf("(%s)", caller)
			},
		})
	}

	baseLogger = baseLogger.With().
		Timestamp().
		Str("service", serviceName).
		Str("env", env).
		Logger()

	if env != prodStr {
		baseLogger = baseLogger.With().Caller().Logger()
	}

	log.Logger = baseLogger

	return &baseLogger
}

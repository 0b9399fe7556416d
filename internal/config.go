package internal

import (
	"fmt"
	"time"
)

type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	MaxContentLength int    `env:"MAX_CONTENT_LENGTH,required=true"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,required=true"`
	ForbiddenWords   string `env:"FORBIDDEN_WORDS"`

	// Redis URL for the relay and the inbound frame channel. The server
	// refuses to start without it; only chatctl tolerates it being unset.
	BrokerURL string `env:"BROKER_URL"`

	AuthTokenSecret   string        `env:"AUTH_TOKEN_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	MetricInterval   time.Duration `env:"METRIC_INTERVAL,required=true"`
	TimelineCapacity int           `env:"TIMELINE_CAPACITY"`

	DebugPort        int  `env:"DEBUG_PORT"`
	EnableDebugViews bool `env:"ENABLE_DEBUG_VIEWS"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

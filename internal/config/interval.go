package config

import (
	"fmt"
	"time"

	"optrix/internal/scheduler"
)

func parseInterval(s string) (time.Duration, error) {
	d, ok := scheduler.ParseIntervalDuration(s)
	if !ok {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return d, nil
}

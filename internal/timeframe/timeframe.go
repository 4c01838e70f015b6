// Package timeframe defines the fixed set of rollup timeframes and their
// bucketing/retention durations.
package timeframe

import (
	"fmt"
	"time"
)

// TimeFrame identifies one of the six supported rollup resolutions.
type TimeFrame string

const (
	M5  TimeFrame = "5m"
	M15 TimeFrame = "15m"
	M30 TimeFrame = "30m"
	H1  TimeFrame = "1h"
	H4  TimeFrame = "4h"
	D1  TimeFrame = "1d"
)

var all = []TimeFrame{M5, M15, M30, H1, H4, D1}

// All returns every supported timeframe in ascending duration order.
func All() []TimeFrame {
	out := make([]TimeFrame, len(all))
	copy(out, all)
	return out
}

// Duration returns the lookback window the timeframe represents.
func (tf TimeFrame) Duration() time.Duration {
	switch tf {
	case M5:
		return 5 * time.Minute
	case M15:
		return 15 * time.Minute
	case M30:
		return 30 * time.Minute
	case H1:
		return time.Hour
	case H4:
		return 4 * time.Hour
	case D1:
		return 24 * time.Hour
	}
	return 0
}

// Retention returns how long rollup rows for this timeframe are kept before
// the sweep deletes them.
func (tf TimeFrame) Retention() time.Duration {
	switch tf {
	case M5:
		return time.Hour
	case M15:
		return 6 * time.Hour
	case M30:
		return 12 * time.Hour
	case H1:
		return 24 * time.Hour
	case H4:
		return 3 * 24 * time.Hour
	case D1:
		return 7 * 24 * time.Hour
	}
	return 0
}

// Table returns the rollup table name backing this timeframe.
func (tf TimeFrame) Table() string {
	return "market_data_" + string(tf)
}

// Valid reports whether tf is one of the supported timeframes.
func (tf TimeFrame) Valid() bool {
	return tf.Duration() > 0
}

// Parse converts a string label into a TimeFrame.
func Parse(s string) (TimeFrame, error) {
	tf := TimeFrame(s)
	if !tf.Valid() {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var errMissingTimestamp = errors.New("missing timestamp")

// legacyLayouts are the string forms earlier writers used for capture times.
var legacyLayouts = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// decodeTimestamp converts any stored representation of a capture time into UTC.
// Integers are Unix seconds, or milliseconds when too large to be seconds.
func decodeTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, errMissingTimestamp
	case time.Time:
		return t.UTC(), nil
	case int64:
		return fromUnix(t), nil
	case float64:
		return fromUnix(int64(t)), nil
	case []byte:
		return decodeTimestamp(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, errMissingTimestamp
		}
		for _, layout := range legacyLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromUnix(n), nil
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func fromUnix(n int64) time.Time {
	if n > 1e11 || n < -1e11 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

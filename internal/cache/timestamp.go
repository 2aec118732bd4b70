package cache

import (
	"encoding/json"
	"math"
	"time"
)

// flexTime absorbs the timestamp encodings a cold-store round trip can
// produce: numeric epoch (seconds or milliseconds, possibly fractional),
// RFC 3339 strings, and structured seconds/fractional-seconds pairs.
// Decoding never fails; an unrecognized shape leaves ok=false and the
// caller substitutes a fallback.
type flexTime struct {
	t  time.Time
	ok bool
}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	f.ok = false

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		f.t = epochToTime(num)
		f.ok = true
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, str); err == nil {
				f.t = t.UTC()
				f.ok = true
				return nil
			}
		}
		return nil
	}

	var pair struct {
		Seconds      *float64 `json:"seconds"`
		Nanos        *float64 `json:"nanos"`
		Nanoseconds  *float64 `json:"nanoseconds"`
		USeconds     *float64 `json:"_seconds"`
		UNanoseconds *float64 `json:"_nanoseconds"`
	}
	if err := json.Unmarshal(data, &pair); err == nil {
		secs, frac := pair.Seconds, pair.Nanos
		if frac == nil {
			frac = pair.Nanoseconds
		}
		if secs == nil {
			secs, frac = pair.USeconds, pair.UNanoseconds
		}
		if secs != nil {
			var nanos int64
			if frac != nil {
				nanos = int64(*frac)
			}
			f.t = time.Unix(int64(*secs), nanos).UTC()
			f.ok = true
		}
	}
	return nil
}

// epochToTime interprets large magnitudes as milliseconds, everything else
// as (possibly fractional) seconds.
func epochToTime(v float64) time.Time {
	const msCutoff = 1e11
	if math.Abs(v) >= msCutoff {
		return time.UnixMilli(int64(v)).UTC()
	}
	secs := math.Trunc(v)
	nanos := (v - secs) * float64(time.Second)
	return time.Unix(int64(secs), int64(nanos)).UTC()
}

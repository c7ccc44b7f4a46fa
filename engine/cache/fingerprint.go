package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"tacklens/engine/models"
)

// Fingerprint derives the identity of a cached computation from a prefix
// and its parameter set: prefix + "_" + md5(canonical JSON). Two parameter
// sets share a fingerprint exactly when their canonical encodings match.
func Fingerprint(prefix string, parameters map[string]any) string {
	sum := md5.Sum([]byte(CanonicalJSON(parameters)))
	return prefix + "_" + hex.EncodeToString(sum[:])
}

// CanonicalJSON encodes a value deterministically: object keys sorted
// ascending, no whitespace, floats at full precision. It covers the value
// shapes that reach cache keys (JSON scalars, slices, string-keyed maps,
// time instants); anything else falls back to fmt formatting.
func CanonicalJSON(v any) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(x))
	case string:
		b.WriteString(strconv.Quote(x))
	case int:
		b.WriteString(strconv.Itoa(x))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case float64:
		writeCanonicalFloat(b, x)
	case float32:
		writeCanonicalFloat(b, float64(x))
	case time.Time:
		b.WriteString(strconv.Quote(x.UTC().Format(time.RFC3339Nano)))
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')
	case []string:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(e))
		}
		b.WriteByte(']')
	case []float64:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonicalFloat(b, e)
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeCanonical(b, x[k])
		}
		b.WriteByte('}')
	default:
		fmt.Fprintf(b, "%q", fmt.Sprint(x))
	}
}

func writeCanonicalFloat(b *strings.Builder, f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		b.WriteString("null")
		return
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		// Integral floats print without an exponent so that 5 and 5.0
		// fingerprint identically regardless of the decoder that produced
		// them.
		b.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		return
	}
	b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
}

// TrackFingerprint approximates a track's identity from its first and last
// samples, row count and sorted column names. This is deliberately not a
// content hash: it trades exactness for speed on large tracks.
func TrackFingerprint(t *models.Track) string {
	if t == nil || t.Len() == 0 {
		return "empty_track"
	}
	names := t.ColumnNames()
	sort.Strings(names)
	first := t.Sample(0)
	last := t.Sample(t.Len() - 1)
	payload := map[string]any{
		"first_row":    sampleMap(first),
		"last_row":     sampleMap(last),
		"row_count":    t.Len(),
		"column_names": names,
	}
	sum := md5.Sum([]byte(CanonicalJSON(payload)))
	return hex.EncodeToString(sum[:])
}

func sampleMap(s models.Sample) map[string]any {
	return map[string]any{
		"timestamp": s.Time.UTC().Format(time.RFC3339Nano),
		"latitude":  s.Lat,
		"longitude": s.Lon,
		"course":    s.Course,
		"speed":     s.Speed,
	}
}

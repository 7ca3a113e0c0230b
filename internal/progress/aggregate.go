package progress

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"github.com/ariefcatur/go-course-checkout/internal/metrics"
)

// Row adalah log playback mentah, append-only. CoveredSegments bisa berupa
// nested array, string ter-encode JSON, atau object {start,end} — data kotor
// dari player ditoleransi, entry rusak di-drop diam-diam.
type Row struct {
	CourseID             string          `json:"course_id"`
	UnitID               string          `json:"unit_id,omitempty"`
	VideoID              string          `json:"video_id,omitempty"`
	VideoDurationSeconds float64         `json:"video_duration_seconds,omitempty"`
	CoveredSegments      json.RawMessage `json:"covered_segments"`
}

type CourseProgress struct {
	WatchedSeconds   int64 `json:"watched_seconds"`
	AvailableSeconds int64 `json:"available_seconds"`
}

type interval struct{ start, end float64 }

// Aggregate menghitung watched/available time per course dari log mentah.
// Pure & deterministic: input sama = hasil sama, tanpa I/O.
func Aggregate(rows []Row) map[string]CourseProgress {
	metrics.ProgressAggregations.Inc()

	type unitKey struct{ course, unit string }
	type unitAcc struct {
		segments []interval
		duration float64
	}

	units := map[unitKey]*unitAcc{}
	order := []unitKey{}
	for _, row := range rows {
		unit := row.UnitID
		if unit == "" {
			unit = row.VideoID
		}
		if unit == "" {
			unit = "default"
		}
		k := unitKey{row.CourseID, unit}
		acc, ok := units[k]
		if !ok {
			acc = &unitAcc{}
			units[k] = acc
			order = append(order, k)
		}
		acc.segments = append(acc.segments, decodeSegments(row.CoveredSegments)...)
		if row.VideoDurationSeconds > acc.duration {
			acc.duration = row.VideoDurationSeconds
		}
	}

	type courseAcc struct{ watched, available float64 }
	courses := map[string]*courseAcc{}
	for _, k := range order {
		acc := units[k]
		watched := mergedLength(acc.segments)
		// clamp: log korup bisa melaporkan watched > panjang video
		if acc.duration > 0 && watched > acc.duration {
			watched = acc.duration
		}
		available := acc.duration
		if watched > available {
			available = watched
		}

		c, ok := courses[k.course]
		if !ok {
			c = &courseAcc{}
			courses[k.course] = c
		}
		c.watched += watched
		c.available += available
	}

	out := make(map[string]CourseProgress, len(courses))
	for id, c := range courses {
		out[id] = CourseProgress{
			WatchedSeconds:   int64(math.Round(c.watched)),
			AvailableSeconds: int64(math.Round(c.available)),
		}
	}
	return out
}

// mergedLength: standard interval merge, sweep kiri-ke-kanan sekali jalan.
func mergedLength(iv []interval) float64 {
	if len(iv) == 0 {
		return 0
	}
	sort.Slice(iv, func(i, j int) bool { return iv[i].start < iv[j].start })

	total := 0.0
	cur := iv[0]
	for _, next := range iv[1:] {
		if next.start <= cur.end {
			if next.end > cur.end {
				cur.end = next.end
			}
			continue
		}
		total += cur.end - cur.start
		cur = next
	}
	total += cur.end - cur.start
	return total
}

// decodeSegments menormalisasi bentuk-bentuk payload segment jadi satu tipe
// interval. Entry yang tidak bisa diparse di-drop, bukan error.
func decodeSegments(raw json.RawMessage) []interval {
	if len(raw) == 0 {
		return nil
	}

	// string ter-encode JSON? unquote lalu decode ulang
	var quoted string
	if err := json.Unmarshal(raw, &quoted); err == nil {
		return decodeSegments(json.RawMessage(quoted))
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil
	}

	out := make([]interval, 0, len(elems))
	for _, el := range elems {
		if iv, ok := decodeOne(el); ok {
			out = append(out, iv)
		}
	}
	return out
}

func decodeOne(raw json.RawMessage) (interval, bool) {
	// bentuk pair: [start, end] (angka bisa berupa string)
	var pair []any
	if err := json.Unmarshal(raw, &pair); err == nil {
		if len(pair) < 2 {
			return interval{}, false
		}
		start, ok1 := toFloat(pair[0])
		end, ok2 := toFloat(pair[1])
		if ok1 && ok2 {
			return normalize(start, end)
		}
		return interval{}, false
	}

	// bentuk object: {"start": ..., "end": ...}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		start, ok1 := toFloat(obj["start"])
		end, ok2 := toFloat(obj["end"])
		if ok1 && ok2 {
			return normalize(start, end)
		}
		return interval{}, false
	}

	// elemen berupa string ter-encode: coba sekali lagi
	var quoted string
	if err := json.Unmarshal(raw, &quoted); err == nil {
		return decodeOne(json.RawMessage(quoted))
	}

	return interval{}, false
}

func normalize(start, end float64) (interval, bool) {
	if math.IsNaN(start) || math.IsNaN(end) || math.IsInf(start, 0) || math.IsInf(end, 0) {
		return interval{}, false
	}
	if start > end {
		start, end = end, start
	}
	return interval{start, end}, true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

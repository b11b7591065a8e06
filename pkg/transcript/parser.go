// Package transcript reconstructs clean subtitle timelines from raw,
// possibly malformed subtitle payloads. Parse never fails: malformed
// input degrades to a lenient line scan, and the worst case is an empty
// segment list.
package transcript

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Segment is one subtitle cue with millisecond timing.
type Segment struct {
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Text    string `json:"text"`
}

var (
	// timestampRe matches a single SRT timestamp, tolerating missing
	// leading zeros in any component (e.g. "0:01:0,359").
	timestampRe = regexp.MustCompile(`(\d{1,2}):(\d{1,2}):(\d{1,2})[,.](\d{1,3})`)

	// rangeRe matches a full cue timing line.
	rangeRe = regexp.MustCompile(
		`(\d{1,2}:\d{1,2}:\d{1,2}[,.]\d{1,3})\s*-->\s*(\d{1,2}:\d{1,2}:\d{1,2}[,.]\d{1,3})`)

	// sequenceRe matches a cue sequence number line.
	sequenceRe = regexp.MustCompile(`^\d+$`)
)

// Parse converts raw subtitle text into an ordered, non-overlapping
// segment list. The result may be empty but is never nil.
func Parse(raw string) []Segment {
	lines := preprocess(raw)

	segments, err := parseStrict(lines)
	if err != nil {
		segments = parseLenient(lines)
	}

	for i := range segments {
		segments[i].Text = stripEmbeddedTimestamps(segments[i].Text)
	}

	return sortAndMerge(segments)
}

// NormalizeTimestamp repairs an SRT timestamp with missing leading
// zeros, e.g. "00:01:0,359" becomes "00:01:00,359". Unparseable input
// is returned unchanged.
func NormalizeTimestamp(ts string) string {
	m := timestampRe.FindStringSubmatch(ts)
	if m == nil || m[0] != strings.TrimSpace(ts) {
		return ts
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	ms, _ := strconv.Atoi(m[4])
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, mi, s, ms)
}

// preprocess cleans the raw payload into one repaired line per element:
// BOM stripped, line endings normalized, timestamps zero-padded, and
// caption text trailing a timing line moved onto its own line.
func preprocess(raw string) []string {
	raw = strings.TrimPrefix(raw, "\uFEFF")
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, " \t")

		loc := rangeRe.FindStringIndex(line)
		if loc == nil {
			lines = append(lines, line)
			continue
		}

		timing := normalizeRange(line[loc[0]:loc[1]])
		lines = append(lines, timing)

		// Caption text on the same line as the timing belongs below it.
		if trailing := strings.TrimSpace(line[loc[1]:]); trailing != "" {
			lines = append(lines, trailing)
		}
	}
	return lines
}

// normalizeRange zero-pads both timestamps of a timing line.
func normalizeRange(timing string) string {
	m := rangeRe.FindStringSubmatch(timing)
	if m == nil {
		return timing
	}
	return NormalizeTimestamp(m[1]) + " --> " + NormalizeTimestamp(m[2])
}

// parseStrict parses well-formed cue blocks: sequence number, timing
// line, one or more text lines, blank separator. Any deviation is an
// error that sends the caller to the lenient parser.
func parseStrict(lines []string) ([]Segment, error) {
	var segments []Segment

	i := 0
	for i < len(lines) {
		for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
			i++
		}
		if i >= len(lines) {
			break
		}

		if !sequenceRe.MatchString(strings.TrimSpace(lines[i])) {
			return nil, fmt.Errorf("line %d: expected cue sequence number", i+1)
		}
		i++

		if i >= len(lines) {
			return nil, fmt.Errorf("line %d: missing timing line", i+1)
		}
		start, end, err := parseRange(lines[i])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		i++

		var text []string
		for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
			text = append(text, strings.TrimSpace(lines[i]))
			i++
		}
		if len(text) == 0 {
			return nil, fmt.Errorf("line %d: cue has no text", i+1)
		}

		segments = append(segments, Segment{
			StartMs: start,
			EndMs:   end,
			Text:    strings.Join(text, " "),
		})
	}

	return segments, nil
}

// parseLenient scans every line for a timing range and pairs each match
// with the following non-empty, non-timing line as its text.
func parseLenient(lines []string) []Segment {
	var segments []Segment

	for i, line := range lines {
		m := rangeRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		start, err1 := toMillis(m[1])
		end, err2 := toMillis(m[2])
		if err1 != nil || err2 != nil {
			continue
		}

		var text string
		for j := i + 1; j < len(lines); j++ {
			candidate := strings.TrimSpace(lines[j])
			if candidate == "" {
				continue
			}
			if rangeRe.MatchString(candidate) || sequenceRe.MatchString(candidate) {
				break
			}
			text = candidate
			break
		}

		if text == "" {
			continue
		}

		segments = append(segments, Segment{StartMs: start, EndMs: end, Text: text})
	}

	return segments
}

// parseRange parses a full timing line into millisecond offsets.
func parseRange(line string) (int64, int64, error) {
	m := rangeRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, 0, fmt.Errorf("malformed timing line %q", line)
	}
	start, err := toMillis(m[1])
	if err != nil {
		return 0, 0, err
	}
	end, err := toMillis(m[2])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// toMillis converts an SRT timestamp to milliseconds.
func toMillis(ts string) (int64, error) {
	m := timestampRe.FindStringSubmatch(ts)
	if m == nil {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}
	h, _ := strconv.ParseInt(m[1], 10, 64)
	mi, _ := strconv.ParseInt(m[2], 10, 64)
	s, _ := strconv.ParseInt(m[3], 10, 64)
	ms, _ := strconv.ParseInt(m[4], 10, 64)
	return ((h*60+mi)*60+s)*1000 + ms, nil
}

// sortAndMerge orders segments by start time and merges overlapping
// neighbors. When a segment starts at or before the previous segment's
// end, the pair collapses into one cue covering both ranges, with the
// texts concatenated if they differ. Empty cues are discarded.
func sortAndMerge(segments []Segment) []Segment {
	filtered := segments[:0]
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) != "" {
			filtered = append(filtered, seg)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].StartMs < filtered[j].StartMs
	})

	merged := make([]Segment, 0, len(filtered))
	for _, seg := range filtered {
		if len(merged) == 0 {
			merged = append(merged, seg)
			continue
		}

		prev := &merged[len(merged)-1]
		if seg.StartMs > prev.EndMs {
			merged = append(merged, seg)
			continue
		}

		if seg.EndMs > prev.EndMs {
			prev.EndMs = seg.EndMs
		}
		if seg.Text != prev.Text {
			prev.Text = strings.TrimSpace(prev.Text + " " + seg.Text)
		}
	}

	return merged
}

// stripEmbeddedTimestamps removes timestamp artifacts that upstream
// malformed sources leave inside cue text.
func stripEmbeddedTimestamps(text string) string {
	text = rangeRe.ReplaceAllString(text, "")
	text = timestampRe.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

package telemetry

import (
	"fmt"
	"strconv"
	"strings"
)

// RawBlock is the ordered lines of one subtitle entry.
type RawBlock []string

// Record is one frame's row keyed by column name.
type Record map[string]Value

const (
	ColFilename   = "filename"
	ColFrame      = "frame"
	ColTimeInit   = "time_init"
	ColTimeEnd    = "time_end"
	ColDiffTimeMs = "diff_time_ms"
	ColDate       = "date"
	ColTime       = "time"

	// MinBlockLines is the shortest block that is converted rather than skipped.
	MinBlockLines = 3

	timeRangeSep   = " --> "
	diffTimePrefix = "DiffTime : "
	diffTimeSuffix = "ms"
)

// SplitBlocks cuts log content into blocks on blank-line boundaries. CRLF line
// endings and a leading byte order mark are normalized first; newlines
// surrounding a block are dropped.
func SplitBlocks(content string) []RawBlock {
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	sections := strings.Split(content, "\n\n")
	blocks := make([]RawBlock, 0, len(sections))
	for _, section := range sections {
		blocks = append(blocks, RawBlock(strings.Split(strings.Trim(section, "\n"), "\n")))
	}
	return blocks
}

// BuildRecord converts one block into a Record. The scalar fields derived
// from the positional lines always take precedence over annotation keys of
// the same name.
func BuildRecord(filename string, b RawBlock) (Record, error) {
	if len(b) < 5 {
		return nil, fmt.Errorf("%w: expected 5 lines, got %d", ErrMalformedBlock, len(b))
	}

	frame, err := strconv.ParseInt(strings.TrimSpace(b[0]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: frame index %q", ErrMalformedBlock, b[0])
	}

	span := strings.Split(b[1], timeRangeSep)
	if len(span) != 2 {
		return nil, fmt.Errorf("%w: time range %q", ErrMalformedBlock, b[1])
	}

	diff, ok := strings.CutPrefix(b[2], diffTimePrefix)
	if !ok {
		return nil, fmt.Errorf("%w: duration line %q", ErrMalformedBlock, b[2])
	}
	diffMs, err := strconv.ParseInt(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(diff), diffTimeSuffix)), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: duration line %q", ErrMalformedBlock, b[2])
	}

	date, clock, ok := strings.Cut(b[3], " ")
	if !ok {
		return nil, fmt.Errorf("%w: date-time line %q", ErrMalformedBlock, b[3])
	}

	meta := ParseAnnotation(b[4])
	if err := Normalize(meta); err != nil {
		return nil, err
	}

	rec := make(Record, len(meta)+7)
	for k, v := range meta {
		rec[k] = v
	}
	rec[ColFilename] = StringValue(filename)
	rec[ColFrame] = IntValue(frame)
	rec[ColTimeInit] = StringValue(span[0])
	rec[ColTimeEnd] = StringValue(span[1])
	rec[ColDiffTimeMs] = IntValue(diffMs)
	rec[ColDate] = StringValue(date)
	rec[ColTime] = StringValue(clock)
	return rec, nil
}

package telemetry

import (
	"fmt"
	"math"
)

// SummaryColumns is the export projection of a FlightSummary.
var SummaryColumns = []string{
	"filename", "date", "time_init", "time_end", "duration_seconds",
	"min_rel_altitude", "max_rel_altitude", "mean_rel_altitude", "first_rel_altitude", "last_rel_altitude",
	"min_abs_altitude", "max_abs_altitude", "mean_abs_altitude", "first_abs_altitude", "last_abs_altitude",
}

// AltitudeStats aggregates one altitude column within a flight.
type AltitudeStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	First float64 `json:"first"`
	Last  float64 `json:"last"`
}

// FlightSummary is the aggregate of all frames sharing a filename and date.
type FlightSummary struct {
	Filename        string        `json:"filename"`
	Date            string        `json:"date"`
	TimeInit        string        `json:"time_init"`
	TimeEnd         string        `json:"time_end"`
	DurationSeconds float64       `json:"duration_seconds"`
	RelAlt          AltitudeStats `json:"rel_alt"`
	AbsAlt          AltitudeStats `json:"abs_alt"`
}

// Values returns the summary in SummaryColumns order.
func (s FlightSummary) Values() []Value {
	return []Value{
		StringValue(s.Filename), StringValue(s.Date), StringValue(s.TimeInit), StringValue(s.TimeEnd),
		FloatValue(s.DurationSeconds),
		FloatValue(s.RelAlt.Min), FloatValue(s.RelAlt.Max), FloatValue(s.RelAlt.Mean), FloatValue(s.RelAlt.First), FloatValue(s.RelAlt.Last),
		FloatValue(s.AbsAlt.Min), FloatValue(s.AbsAlt.Max), FloatValue(s.AbsAlt.Mean), FloatValue(s.AbsAlt.First), FloatValue(s.AbsAlt.Last),
	}
}

type groupKey struct {
	filename string
	date     string
}

type altAcc struct {
	n     int
	sum   float64
	stats AltitudeStats
}

func (a *altAcc) add(v Value) {
	f, ok := v.AsFloat()
	if !ok || math.IsNaN(f) {
		return
	}
	if a.n == 0 {
		a.stats.Min, a.stats.Max, a.stats.First = f, f, f
	}
	a.stats.Min = math.Min(a.stats.Min, f)
	a.stats.Max = math.Max(a.stats.Max, f)
	a.stats.Last = f
	a.sum += f
	a.n++
}

func (a *altAcc) result() AltitudeStats {
	if a.n == 0 {
		nan := math.NaN()
		return AltitudeStats{Min: nan, Max: nan, Mean: nan, First: nan, Last: nan}
	}
	s := a.stats
	s.Mean = a.sum / float64(a.n)
	return s
}

type group struct {
	summary FlightSummary
	diffMs  int64
	seen    bool
	rel     altAcc
	abs     altAcc
}

// Summarize groups the corpus by (filename, date) and computes flight
// duration and altitude statistics. Groups appear in order of their first
// row; first/last follow row order within a group.
func Summarize(corpus *Table) ([]FlightSummary, error) {
	if corpus == nil {
		return nil, nil
	}
	idx := make(map[string]int, 6)
	for _, c := range []string{ColFilename, ColDate, ColTime, ColDiffTimeMs, KeyRelAlt, KeyAbsAlt} {
		i := corpus.ColumnIndex(c)
		if i < 0 {
			return nil, fmt.Errorf("summarize: %w: column %s", ErrMissingKey, c)
		}
		idx[c] = i
	}

	var order []groupKey
	groups := make(map[groupKey]*group)
	for _, row := range corpus.Rows {
		key := groupKey{filename: row[idx[ColFilename]].String(), date: row[idx[ColDate]].String()}
		g, ok := groups[key]
		if !ok {
			g = &group{summary: FlightSummary{Filename: key.filename, Date: key.date}}
			groups[key] = g
			order = append(order, key)
		}

		if t := row[idx[ColTime]]; !t.IsNull() {
			if !g.seen {
				g.summary.TimeInit = t.String()
				g.seen = true
			}
			g.summary.TimeEnd = t.String()
		}
		if d := row[idx[ColDiffTimeMs]]; d.Kind == KindInt {
			g.diffMs += d.Int
		}
		g.rel.add(row[idx[KeyRelAlt]])
		g.abs.add(row[idx[KeyAbsAlt]])
	}

	out := make([]FlightSummary, 0, len(order))
	for _, key := range order {
		g := groups[key]
		s := g.summary
		s.DurationSeconds = float64(g.diffMs) / 1000
		s.RelAlt = g.rel.result()
		s.AbsAlt = g.abs.result()
		out = append(out, s)
	}
	return out, nil
}

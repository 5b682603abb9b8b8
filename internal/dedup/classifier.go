package dedup

import (
	"fmt"
	"strings"

	"timeprep/internal/sensor"
)

// Counts is the classification outcome for one (participant, device, month,
// stream) file. NaN is counted independently: a row can be both a duplicate
// and NaN.
type Counts struct {
	TotalRows  int
	TotalDupes int
	Perfect    int
	Unclear    int
	NaN        int
}

// Options controls classification behavior.
type Options struct {
	// ScanOnly computes counts without producing a cleaned table.
	ScanOnly bool
}

// Result is the outcome of classifying one stream file.
type Result struct {
	Counts  Counts
	Cleaned *sensor.Table // nil when Options.ScanOnly is set
}

// InconsistencyError signals that the computed counts do not reconcile with
// the row partition. It is a logic bug, never a data problem, and must not be
// swallowed.
type InconsistencyError struct {
	Counts Counts
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("classification counts do not reconcile: total_dupes=%d perfect=%d unclear=%d",
		e.Counts.TotalDupes, e.Counts.Perfect, e.Counts.Unclear)
}

// fieldSep joins row fields into identity keys. It cannot occur in CSV field
// data read from the exports.
const fieldSep = "\x1f"

// Classify partitions the rows of one stream file into unique, perfect
// duplicates (identical in every column), and unclear duplicates (same
// timestamp, differing values), and counts rows whose primary measurement is
// null. Every occurrence of a duplicate group is counted, not N-1.
//
// Unless opts.ScanOnly is set, Result.Cleaned holds the surviving rows:
// unclear rows are dropped first (all copies - there is no principled way to
// pick one), then rows with a null primary measurement, then perfect
// duplicates are collapsed keeping the last occurrence. The unclear drop must
// come before the collapse: once unclear rows are gone, the remaining
// same-time rows are value-identical by construction, so collapsing them is
// unambiguous.
func Classify(t *sensor.Table, opts Options) (*Result, error) {
	rows := t.Rows
	if t.Stream == sensor.StreamEDA {
		rows = normalizeEDA(rows)
	}

	timeCount := make(map[string]int, len(rows))
	fullCount := make(map[string]int, len(rows))
	keys := make([]string, len(rows))
	for i, r := range rows {
		timeCount[r.Time]++
		keys[i] = rowKey(r)
		fullCount[keys[i]]++
	}

	counts := Counts{TotalRows: len(rows)}
	unclear := make([]bool, len(rows))
	for i, r := range rows {
		if timeCount[r.Time] < 2 {
			continue
		}
		counts.TotalDupes++
		if fullCount[keys[i]] > 1 {
			counts.Perfect++
		} else {
			unclear[i] = true
			counts.Unclear++
		}
	}
	for _, r := range rows {
		if sensor.IsNull(r.Primary()) {
			counts.NaN++
		}
	}

	if counts.TotalDupes != counts.Perfect+counts.Unclear ||
		counts.Perfect < 0 || counts.Unclear < 0 || counts.TotalDupes > counts.TotalRows {
		return nil, &InconsistencyError{Counts: counts}
	}

	res := &Result{Counts: counts}
	if opts.ScanOnly {
		return res, nil
	}

	kept := make([]sensor.Record, 0, len(rows))
	for i, r := range rows {
		if unclear[i] {
			continue
		}
		if sensor.IsNull(r.Primary()) {
			continue
		}
		kept = append(kept, r)
	}
	res.Cleaned = &sensor.Table{Stream: t.Stream, Rows: collapseKeepLast(kept)}
	return res, nil
}

// normalizeEDA rewrites the firmware's "-0.0" readings to "0.0" before
// classification so sign-of-zero noise cannot make two same-time rows look
// distinct.
func normalizeEDA(rows []sensor.Record) []sensor.Record {
	out := make([]sensor.Record, len(rows))
	for i, r := range rows {
		out[i] = r
		if len(r.Values) > 0 && strings.TrimSpace(r.Values[0]) == "-0.0" {
			vals := make([]string, len(r.Values))
			copy(vals, r.Values)
			vals[0] = "0.0"
			out[i].Values = vals
		}
	}
	return out
}

func rowKey(r sensor.Record) string {
	return r.Time + fieldSep + strings.Join(r.Values, fieldSep)
}

// collapseKeepLast drops all but the last occurrence of fully identical rows.
// The survivor keeps the last occurrence's position, matching keep-last
// semantics where later ingested copies are presumed corrective.
func collapseKeepLast(rows []sensor.Record) []sensor.Record {
	seen := make(map[string]struct{}, len(rows))
	out := make([]sensor.Record, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		k := rowKey(rows[i])
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rows[i])
	}
	// restore original order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

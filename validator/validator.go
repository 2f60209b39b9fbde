// Package validator measures how far replica logs diverge after a run. It
// only sees the logs, never the simulation that produced them.
package validator

import (
	"context"
	"errors"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/example/replica_sim/core"
)

// TotalRow names the aggregate row of the inconsistency table.
const TotalRow = "total"

// LogMetrics are the single-log inconsistency counts of one replica.
type LogMetrics struct {
	Entries         int `json:"entries"`
	Forks           int `json:"forks"`
	MonotonicErrors int `json:"monoincrErrors"`
	Duplicates      int `json:"duplicates"`
	// Missing is latest id per object minus distinct ids held for it. It
	// overcounts when ids are not contiguous per object.
	Missing int `json:"missing"`
}

func (m LogMetrics) add(o LogMetrics) LogMetrics {
	return LogMetrics{
		Entries:         m.Entries + o.Entries,
		Forks:           m.Forks + o.Forks,
		MonotonicErrors: m.MonotonicErrors + o.MonotonicErrors,
		Duplicates:      m.Duplicates + o.Duplicates,
		Missing:         m.Missing + o.Missing,
	}
}

// Report is the outcome of one validation.
type Report struct {
	Replicas []string              `json:"replicas"`
	Logs     map[string]LogMetrics `json:"logs"`
	Total    LogMetrics            `json:"total"`
	Objects  int                   `json:"objects"`
	// Matrix holds Jaccard distances below the diagonal and normalized
	// Levenshtein distances above it, rows in Replicas order.
	Matrix      [][]float64 `json:"matrix"`
	Jaccard     [][]float64 `json:"jaccard"`
	Levenshtein [][]float64 `json:"levenshtein"`
	Malformed   int         `json:"malformed"`
	Errors      []string    `json:"errors,omitempty"`
}

// clean is a log with malformed entries removed.
type clean struct {
	entries []core.LogEntry
	ids     []core.VersionID
}

// union is what every log contributes together.
type union struct {
	latest   map[string]core.VersionID
	children map[core.VersionID]map[core.VersionID]struct{}
}

// Validate computes the report over logs keyed by replica id. Malformed
// entries are skipped and counted; only ctx cancellation fails the call.
func Validate(ctx context.Context, logs map[string][]core.LogEntry) (*Report, error) {
	ids := maps.Keys(logs)
	slices.Sort(ids)

	rep := &Report{
		Replicas: ids,
		Logs:     make(map[string]LogMetrics, len(ids)),
	}
	cleaned := make([]clean, len(ids))
	for i, id := range ids {
		for pos, e := range logs[id] {
			if err := e.Validate(); err != nil {
				var mal *core.MalformedLogEntryError
				if errors.As(err, &mal) {
					mal.Replica, mal.Position = id, pos
				}
				rep.Malformed++
				rep.Errors = append(rep.Errors, err.Error())
				continue
			}
			cleaned[i].entries = append(cleaned[i].entries, e)
			cleaned[i].ids = append(cleaned[i].ids, e.Version)
		}
	}
	u := buildUnion(cleaned)
	rep.Objects = len(u.latest)

	n := len(ids)
	metrics := make([]LogMetrics, n)
	rep.Jaccard = square(n)
	rep.Levenshtein = square(n)

	g, gctx := errgroup.WithContext(ctx)
	for i := range ids {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			metrics[i] = measure(cleaned[i].entries, u)
			for j := i + 1; j < n; j++ {
				jac := Jaccard(cleaned[i].ids, cleaned[j].ids)
				lev := Levenshtein(cleaned[i].ids, cleaned[j].ids)
				rep.Jaccard[i][j], rep.Jaccard[j][i] = jac, jac
				rep.Levenshtein[i][j], rep.Levenshtein[j][i] = lev, lev
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep.Matrix = square(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			switch {
			case i > j:
				rep.Matrix[i][j] = rep.Jaccard[i][j]
			case i < j:
				rep.Matrix[i][j] = rep.Levenshtein[i][j]
			}
		}
	}

	for i, id := range ids {
		rep.Logs[id] = metrics[i]
		rep.Total = rep.Total.add(metrics[i])
	}
	rep.Total.Entries = 0
	for _, latest := range u.latest {
		rep.Total.Entries += int(latest)
	}
	return rep, nil
}

func square(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	return out
}

func buildUnion(logs []clean) union {
	u := union{
		latest:   make(map[string]core.VersionID),
		children: make(map[core.VersionID]map[core.VersionID]struct{}),
	}
	for _, l := range logs {
		for _, e := range l.entries {
			if e.Version > u.latest[e.Name] {
				u.latest[e.Name] = e.Version
			}
			if e.Parent == core.NoVersion {
				continue
			}
			kids, ok := u.children[e.Parent]
			if !ok {
				kids = make(map[core.VersionID]struct{})
				u.children[e.Parent] = kids
			}
			kids[e.Version] = struct{}{}
		}
	}
	return u
}

// measure computes the single-log metrics of entries against the union.
func measure(entries []core.LogEntry, u union) LogMetrics {
	m := LogMetrics{Entries: len(entries)}
	seen := make(map[core.VersionID]struct{}, len(entries))
	prev := make(map[string]core.VersionID)
	distinct := make(map[string]int)

	for _, e := range entries {
		if last, ok := prev[e.Name]; ok && e.Version <= last {
			m.MonotonicErrors++
		}
		prev[e.Name] = e.Version

		if _, dup := seen[e.Version]; dup {
			m.Duplicates++
			continue
		}
		seen[e.Version] = struct{}{}
		distinct[e.Name]++
		if len(u.children[e.Version]) > 1 {
			m.Forks++
		}
	}
	for name, count := range distinct {
		m.Missing += int(u.latest[name]) - count
	}
	return m
}

package checker

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jdillenkofer/fixity/internal/fixity"
)

// Report summarizes one run.
type Report struct {
	Start      time.Time              `json:"start"`
	End        time.Time              `json:"end"`
	State      State                  `json:"state"`
	Processed  int                    `json:"processed"`
	Outcomes   map[fixity.Outcome]int `json:"outcomes"`
	Mismatches []fixity.BitstreamId   `json:"mismatches"`
	NotFound   []fixity.BitstreamId   `json:"notFound"`
	Error      string                 `json:"error,omitempty"`
}

func newReport(start time.Time) *Report {
	return &Report{
		Start:      start,
		State:      Running,
		Outcomes:   map[fixity.Outcome]int{},
		Mismatches: []fixity.BitstreamId{},
		NotFound:   []fixity.BitstreamId{},
	}
}

func (r *Report) add(id fixity.BitstreamId, outcome fixity.Outcome) {
	r.Processed++
	r.Outcomes[outcome]++
	switch outcome {
	case fixity.ChecksumNoMatch:
		r.Mismatches = append(r.Mismatches, id)
	case fixity.BitstreamNotFound:
		r.NotFound = append(r.NotFound, id)
	}
}

// Merge folds other into r, keeping the earliest start and the latest end.
func (r *Report) Merge(other *Report) {
	if r.Start.IsZero() || (!other.Start.IsZero() && other.Start.Before(r.Start)) {
		r.Start = other.Start
	}
	if other.End.After(r.End) {
		r.End = other.End
	}
	r.State = other.State
	r.Processed += other.Processed
	if r.Outcomes == nil {
		r.Outcomes = map[fixity.Outcome]int{}
	}
	for outcome, count := range other.Outcomes {
		r.Outcomes[outcome] += count
	}
	r.Mismatches = append(r.Mismatches, other.Mismatches...)
	r.NotFound = append(r.NotFound, other.NotFound...)
	r.Error = other.Error
}

func (r *Report) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

func (r *Report) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

func (r *Report) WriteText(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Fixity check %s\n", strings.ToLower(string(r.State)))
	fmt.Fprintf(&sb, "  started:   %s\n", r.Start.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "  ended:     %s\n", r.End.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "  duration:  %s\n", r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&sb, "  processed: %d\n", r.Processed)
	for _, outcome := range fixity.Outcomes {
		count := r.Outcomes[outcome]
		if count == 0 {
			continue
		}
		fmt.Fprintf(&sb, "  %-28s %d (%s)\n", string(outcome), count, outcome.Description())
	}
	writeIds(&sb, "Checksum mismatches", r.Mismatches)
	writeIds(&sb, "Bitstreams not found", r.NotFound)
	if r.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", r.Error)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeIds(sb *strings.Builder, title string, ids []fixity.BitstreamId) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s:\n", title)
	for _, id := range ids {
		fmt.Fprintf(sb, "  %s\n", id.String())
	}
}

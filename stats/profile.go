package stats

import (
	"fmt"
	"io"

	"github.com/google/pprof/profile"
)

// Snapshot builds a profile.Profile with one sample per tracked task,
// replacing biscuit's Stats2String reflect-over-counters text dump
// (biscuit/src/stats/stats.go) with a format `go tool pprof` already
// knows how to aggregate, diff and visualize.
func (r *Registry) Snapshot() *profile.Profile {
	tasks := r.snapshotAll()

	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "user", Unit: "nanoseconds"},
			{Type: "sys", Unit: "nanoseconds"},
			{Type: "page-faults", Unit: "count"},
		},
		DefaultSampleType: "user",
	}

	for i, tk := range tasks {
		id := uint64(i + 1)
		fn := &profile.Function{
			ID:   id,
			Name: taskFunctionName(tk.id, tk.name),
		}
		loc := &profile.Location{
			ID:   id,
			Line: []profile.Line{{Function: fn}},
		}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{tk.userns, tk.sysns, tk.pageFaults},
			Label:    map[string][]string{"task_id": {fmt.Sprintf("%d", tk.id)}},
		})
	}

	return p
}

// Write serializes a profile.Profile snapshot of r in pprof's
// gzip-compressed protobuf wire format.
func (r *Registry) Write(w io.Writer) error {
	return r.Snapshot().Write(w)
}

func taskFunctionName(id uint64, name string) string {
	if name == "" {
		return fmt.Sprintf("task-%d", id)
	}
	return name
}

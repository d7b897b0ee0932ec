package executor

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jwriter"

	"github.com/grafana/browsermatrix/env"
	"github.com/grafana/browsermatrix/log"
	"github.com/grafana/browsermatrix/storage"
	"github.com/grafana/browsermatrix/testcase"
)

var _ easyjson.Marshaler = &Report{}

// Entry is the outcome of one case against one environment.
type Entry struct {
	Spec    env.Spec
	Case    string
	Outcome testcase.Outcome
}

// Counts sums outcomes by status.
type Counts struct {
	Passed  int
	Failed  int
	Errored int
}

type entryKey struct {
	env  string
	name string
}

// Report holds the outcome of every task of a run. Entries are write-once and
// are listed in spec-major, case-minor order.
type Report struct {
	mu      sync.RWMutex
	order   []Entry
	entries map[entryKey]testcase.Outcome

	logger *log.Logger
}

func newReport(specs []env.Spec, cases []testcase.Case, logger *log.Logger) *Report {
	r := &Report{
		order:   make([]Entry, 0, len(specs)*len(cases)),
		entries: make(map[entryKey]testcase.Outcome, len(specs)*len(cases)),
		logger:  logger,
	}
	for _, s := range specs {
		for _, c := range cases {
			r.order = append(r.order, Entry{Spec: s, Case: c.Name()})
		}
	}
	return r
}

// record stores the outcome for (spec, name) unless one is already stored.
func (r *Report) record(spec env.Spec, name string, o testcase.Outcome) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := entryKey{env: spec.Key(), name: name}
	if _, ok := r.entries[k]; ok {
		r.logger.Errorf("report:record", "env:%q case:%q already has an outcome, dropping %s", k.env, name, o.Status)
		return false
	}
	r.entries[k] = o
	return true
}

// Get returns the outcome recorded for the case name against spec.
func (r *Report) Get(spec env.Spec, name string) (testcase.Outcome, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.entries[entryKey{env: spec.Key(), name: name}]
	return o, ok
}

// Len returns the number of recorded outcomes.
func (r *Report) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// Entries returns the recorded outcomes in spec-major, case-minor order.
func (r *Report) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.entries))
	for _, e := range r.order {
		o, ok := r.entries[entryKey{env: e.Spec.Key(), name: e.Case}]
		if !ok {
			continue
		}
		e.Outcome = o
		entries = append(entries, e)
	}
	return entries
}

// Counts returns the number of outcomes per status.
func (r *Report) Counts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var c Counts
	for _, o := range r.entries {
		switch o.Status {
		case testcase.Passed:
			c.Passed++
		case testcase.Failed:
			c.Failed++
		default:
			c.Errored++
		}
	}
	return c
}

// Failed reports whether any task did not pass.
func (r *Report) Failed() bool {
	c := r.Counts()
	return c.Failed+c.Errored > 0
}

// MarshalEasyJSON writes the report as JSON.
func (r *Report) MarshalEasyJSON(w *jwriter.Writer) {
	counts := r.Counts()

	w.RawString(`{"passed":`)
	w.Int(counts.Passed)
	w.RawString(`,"failed":`)
	w.Int(counts.Failed)
	w.RawString(`,"errored":`)
	w.Int(counts.Errored)
	w.RawString(`,"entries":[`)
	for i, e := range r.Entries() {
		if i > 0 {
			w.RawByte(',')
		}
		writeEntry(w, e)
	}
	w.RawString(`]}`)
}

func writeEntry(w *jwriter.Writer, e Entry) {
	w.RawString(`{"environment":{`)
	for i, a := range e.Spec.Attrs() {
		if i > 0 {
			w.RawByte(',')
		}
		w.String(a.Name)
		w.RawByte(':')
		w.String(a.Value)
	}
	w.RawString(`},"case":`)
	w.String(e.Case)
	w.RawString(`,"status":`)
	w.String(e.Outcome.Status.String())
	if e.Outcome.Reason != "" {
		w.RawString(`,"reason":`)
		w.String(e.Outcome.Reason)
	}
	if e.Outcome.SessionID != "" {
		w.RawString(`,"sessionId":`)
		w.String(e.Outcome.SessionID)
	}
	w.RawString(`,"durationMs":`)
	w.Int64(e.Outcome.Duration.Milliseconds())
	w.RawByte('}')
}

// Save writes the report as JSON to path through p.
func (r *Report) Save(ctx context.Context, p storage.FilePersister, path string) error {
	data, err := easyjson.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := p.Persist(ctx, path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("saving report to %q: %w", path, err)
	}
	return nil
}

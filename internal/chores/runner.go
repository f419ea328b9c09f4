package chores

import (
	"container/heap"
	"context"
	"log"
	"time"

	"github.com/aosc-dev/puis/internal/detect"
	"github.com/aosc-dev/puis/internal/probe"
	"github.com/aosc-dev/puis/internal/store"
)

// Priority ranks chore types; overdue high-priority chores run first.
var Priority = map[string]int{
	"feed":      10,
	"github":    9,
	"bitbucket": 9,
	"imap":      8,
	"dirlist":   6,
	"ftp":       5,
	"html":      4,
}

const defaultPriority = 5

func priorityOf(choreType string) int {
	if p, ok := Priority[choreType]; ok {
		return p
	}
	return defaultPriority
}

// item is one scheduled chore in the queue, keyed on (due, -priority).
type item struct {
	name     string
	spec     Spec
	desc     *detect.Descriptor
	due      int64
	priority int
}

type queue []*item

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].priority > q[j].priority
}
func (q queue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x interface{}) { *q = append(*q, x.(*item)) }
func (q *queue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// Runner executes configured chores against the event store.
type Runner struct {
	store  *store.Store
	client *probe.Client

	// KeepInterval re-queues each chore that long after its last run;
	// zero drains the queue once and returns.
	KeepInterval time.Duration
}

// NewRunner creates a chore runner.
func NewRunner(st *store.Store, c *probe.Client) *Runner {
	return &Runner{store: st, client: c}
}

// Run executes the configured chores in priority order. With a keep
// interval the loop is perpetual until the context is canceled; the
// current chore always completes and commits before the loop exits.
func (r *Runner) Run(ctx context.Context, cfg Config) error {
	q := &queue{}
	heap.Init(q)

	for _, name := range cfg.SortedNames() {
		spec := cfg[name]
		desc, err := spec.Descriptor()
		if err != nil {
			log.Printf("Skipping chore %s: %v", name, err)
			continue
		}
		due := int64(0)
		if st, found, err := r.store.GetChoreStatus(ctx, name); err == nil && found {
			due = st.Updated + int64(r.KeepInterval/time.Second)
		}
		heap.Push(q, &item{
			name:     name,
			spec:     spec,
			desc:     desc,
			due:      due,
			priority: priorityOf(spec.Chore),
		})
	}

	for q.Len() > 0 {
		if ctx.Err() != nil {
			log.Printf("Interrupted; %d chores left in queue", q.Len())
			return nil
		}

		it := heap.Pop(q).(*item)
		if wait := time.Until(time.Unix(it.due, 0)); wait > 0 {
			select {
			case <-ctx.Done():
				log.Printf("Interrupted while waiting for %s", it.name)
				return nil
			case <-time.After(wait):
			}
		}

		r.runOne(ctx, it)

		if r.KeepInterval > 0 {
			it.due = time.Now().Add(r.KeepInterval).Unix()
			heap.Push(q, it)
		}
	}
	return nil
}

// runOne executes a single chore and commits its status and events.
func (r *Runner) runOne(ctx context.Context, it *item) {
	status := probe.Status{}
	if st, found, err := r.store.GetChoreStatus(ctx, it.name); err == nil && found {
		status = probe.Status{Updated: st.Updated, LastResult: st.LastResult}
	}

	res := probe.Run(ctx, r.client, it.name, "", it.desc, status)
	if res.Err != nil {
		log.Printf("Chore %s failed: %s", it.name, probe.ErrString(res.Err))
	}

	// Commit with a background context so an interrupt mid-write still
	// lands the partial progress.
	commitCtx := context.Background()
	if res.Status.Updated != 0 {
		err := r.store.SaveChoreStatus(commitCtx, store.ChoreStatus{
			Name:       it.name,
			Updated:    res.Status.Updated,
			LastResult: res.Status.LastResult,
		})
		if err != nil {
			log.Printf("Failed to save status for chore %s: %v", it.name, err)
		}
	}
	if len(res.Events) > 0 {
		events := make([]store.Event, 0, len(res.Events))
		for _, e := range res.Events {
			events = append(events, store.Event{
				Chore:    it.name,
				Category: e.Category,
				Time:     e.Time,
				Title:    e.Title,
				Content:  e.Content,
				URL:      e.URL,
			})
		}
		if err := r.store.AddEvents(commitCtx, events); err != nil {
			log.Printf("Failed to save events for chore %s: %v", it.name, err)
		} else {
			log.Printf("Chore %s: %d new events", it.name, len(events))
		}
	}
}

// Generate detects upstreams for catalog packages and builds a chore
// config. Packages already present in existing keep their configuration.
// The failure list records packages with no detectable upstream.
func Generate(packages []store.Package, existing Config) (Config, []string) {
	cfg := Config{}
	for name, spec := range existing {
		cfg[name] = spec
	}
	var failed []string
	for _, pkg := range packages {
		if pkg.SrcURL == "" {
			continue
		}
		if _, ok := cfg[pkg.Name]; ok {
			continue
		}
		kind := detect.ParseSourceKind(pkg.SrcType)
		desc := detect.Detect(pkg.Name, kind, pkg.SrcURL, pkg.Version)
		if desc == nil {
			failed = append(failed, pkg.Name+", "+pkg.SrcURL)
			log.Printf("Failed to find upstream: %s, %s", pkg.Name, pkg.SrcURL)
			continue
		}
		cfg[pkg.Name] = SpecFromDescriptor(desc)
	}
	return cfg, failed
}

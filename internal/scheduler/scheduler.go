// Package scheduler drives upstream probes across the package catalog with
// per-package backoff, a bounded worker pool and a single writer.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aosc-dev/puis/internal/detect"
	"github.com/aosc-dev/puis/internal/probe"
	"github.com/aosc-dev/puis/internal/store"
)

// DefaultWorkers bounds the number of probes in flight.
const DefaultWorkers = 8

// Scheduler polls the catalog once per RunCycle call.
type Scheduler struct {
	store   *store.Store
	client  *probe.Client
	workers int
}

// New creates a scheduler over the given store and probe client.
func New(st *store.Store, c *probe.Client) *Scheduler {
	return &Scheduler{store: st, client: c, workers: DefaultWorkers}
}

// SetWorkers overrides the worker pool size.
func (s *Scheduler) SetWorkers(n int) {
	if n > 0 {
		s.workers = n
	}
}

// outcome carries one probe result to the writer.
type outcome struct {
	pkg    store.Package
	result probe.Result
}

// RunCycle classifies and probes every due package. Probes run on a
// bounded pool; all writes are serialized through one writer goroutine so
// SQLite sees a single writer. A canceled context lets in-flight probes finish
// and commits partial progress; cancellation is not an error.
func (s *Scheduler) RunCycle(ctx context.Context, packages []store.Package) error {
	cycleStart := time.Now().Unix()
	runID := uuid.New().String()
	log.Printf("Poll cycle %s: %d packages", runID, len(packages))

	delayed, err := s.store.DelayedPackages(ctx, cycleStart)
	if err != nil {
		if ctx.Err() != nil {
			log.Printf("Poll cycle %s interrupted before start", runID)
			return nil
		}
		return err
	}

	results := make(chan outcome)
	writerDone := make(chan struct{})
	var stored, failed, skipped int

	// Single writer: probe goroutines never touch the database.
	go func() {
		defer close(writerDone)
		for out := range results {
			if s.write(out, cycleStart) {
				stored++
			} else {
				failed++
			}
		}
	}()

	g, probeCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, pkg := range packages {
		if pkg.SrcURL == "" {
			continue
		}
		if delayed[pkg.Name] {
			skipped++
			continue
		}
		if probeCtx.Err() != nil {
			// Interrupted: stop handing out work, let the in-flight
			// probes drain.
			break
		}

		pkg := pkg
		g.Go(func() error {
			kind := detect.ParseSourceKind(pkg.SrcType)
			desc := detect.Detect(pkg.Name, kind, pkg.SrcURL, pkg.Version)
			if desc == nil {
				results <- outcome{pkg: pkg, result: probe.Result{Err: probe.ErrCannotDetect}}
				return nil
			}

			status := probe.Status{}
			if st, found, err := s.store.GetChoreStatus(probeCtx, pkg.Name); err == nil && found {
				status = probe.Status{Updated: st.Updated, LastResult: st.LastResult}
			}

			res := probe.Run(probeCtx, s.client, pkg.Name, pkg.Version, desc, status)
			results <- outcome{pkg: pkg, result: res}
			return nil
		})
	}

	g.Wait()
	close(results)
	<-writerDone

	log.Printf("Poll cycle %s done: %d stored, %d failed, %d delayed",
		runID, stored, failed, skipped)
	return nil
}

// write commits one probe outcome: upstream status first, then the chore
// status and events, then the release. The backoff set is re-checked against the live row so a result
// landing after a concurrent update does not clobber it.
func (s *Scheduler) write(out outcome, cycleStart int64) bool {
	// Writes continue during shutdown so partial progress is committed.
	ctx := context.Background()
	now := time.Now().Unix()
	res := out.result

	// Re-check the backoff against the live row: another process may have
	// polled this package since the cycle started.
	if cur, found, err := s.store.GetUpstreamStatus(ctx, out.pkg.Name); err == nil && found {
		if cur.LastTry >= cycleStart {
			return false
		}
	}

	st := store.UpstreamStatus{Package: out.pkg.Name, LastTry: now}
	if res.Err != nil {
		st.Err = probe.ErrString(res.Err)
	} else {
		st.Updated = now
	}
	if err := s.store.SaveUpstreamStatus(ctx, st); err != nil {
		log.Printf("Failed to save status for %s: %v", out.pkg.Name, err)
		return false
	}

	if res.Status.Updated != 0 {
		err := s.store.SaveChoreStatus(ctx, store.ChoreStatus{
			Name:       out.pkg.Name,
			Updated:    res.Status.Updated,
			LastResult: res.Status.LastResult,
		})
		if err != nil {
			log.Printf("Failed to save chore status for %s: %v", out.pkg.Name, err)
		}
	}

	if len(res.Events) > 0 {
		events := make([]store.Event, 0, len(res.Events))
		for _, e := range res.Events {
			events = append(events, store.Event{
				Chore:    out.pkg.Name,
				Category: e.Category,
				Time:     e.Time,
				Title:    e.Title,
				Content:  e.Content,
				URL:      e.URL,
			})
		}
		if err := s.store.AddEvents(ctx, events); err != nil {
			log.Printf("Failed to save events for %s: %v", out.pkg.Name, err)
		}
	}

	if res.Err != nil {
		return false
	}
	if res.Release != nil {
		err := s.store.SavePackageUpstream(ctx, store.PackageUpstream{
			Package: res.Release.Package,
			Type:    res.Release.UpstreamType,
			Version: res.Release.Version,
			Time:    res.Release.Updated,
			URL:     res.Release.URL,
		})
		if err != nil {
			log.Printf("Failed to save release for %s: %v", out.pkg.Name, err)
			return false
		}
		log.Printf("%s: %s %s", out.pkg.Name, res.Release.UpstreamType, res.Release.Version)
	}
	return true
}

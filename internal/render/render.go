// Package render turns stored events into terminal, plain-text, Atom or
// template output.
package render

import (
	"fmt"
	"io"
	"strconv"
	"text/template"
	"time"

	"github.com/gorilla/feeds"

	"github.com/aosc-dev/puis/internal/store"
)

// Term writes a colored one-line-per-event digest, oldest first.
func Term(w io.Writer, events []store.Event) error {
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		when := time.Unix(e.Time, 0).Local().Format("2006-01-02 15:04")
		category := e.Category
		if category == "" {
			category = "unclassified"
		}
		_, err := fmt.Fprintf(w, "%s \x1b[1;32m%s \x1b[1;39m%s\x1b[0m \t%s\n",
			when, category, e.Chore, e.Title)
		if err != nil {
			return err
		}
	}
	return nil
}

// Text writes a plain-text digest, oldest first.
func Text(w io.Writer, events []store.Event) error {
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		when := time.Unix(e.Time, 0).UTC().Format("2006-01-02 15:04")
		category := e.Category
		if category == "" {
			category = "unclassified"
		}
		if _, err := fmt.Fprintf(w, "%s [%s] %s: %s\n", when, category, e.Chore, e.Title); err != nil {
			return err
		}
		if e.URL != "" {
			if _, err := fmt.Fprintf(w, "  %s\n", e.URL); err != nil {
				return err
			}
		}
	}
	return nil
}

// Atom writes the events as an Atom feed, most recent entry first. Entry
// ids are "<feedID>/<event-id>".
func Atom(w io.Writer, events []store.Event, feedID, title string) error {
	updated := time.Now()
	if len(events) > 0 {
		updated = time.Unix(events[0].Time, 0)
	}

	feed := &feeds.AtomFeed{
		Xmlns:   "http://www.w3.org/2005/Atom",
		Id:      feedID,
		Title:   title,
		Updated: updated.UTC().Format(time.RFC3339),
	}

	for _, e := range events {
		category := e.Category
		if category == "" {
			category = "unclassified"
		}
		when := time.Unix(e.Time, 0).UTC().Format(time.RFC3339)
		entry := &feeds.AtomEntry{
			Id:        feedID + "/" + strconv.FormatInt(e.ID, 10),
			Title:     e.Chore + ": " + e.Title,
			Category:  category,
			Updated:   when,
			Published: when,
		}
		if e.Content != "" {
			entry.Content = &feeds.AtomContent{Content: e.Content, Type: "html"}
		}
		if e.URL != "" {
			entry.Links = []feeds.AtomLink{{Href: e.URL, Rel: "alternate"}}
		}
		feed.Entries = append(feed.Entries, entry)
	}

	xml, err := feeds.ToXML(feed)
	if err != nil {
		return fmt.Errorf("failed to render atom feed: %w", err)
	}
	_, err = io.WriteString(w, xml)
	return err
}

// templateData is what a user template receives.
type templateData struct {
	Events []store.Event
	Now    time.Time
}

// Template renders the events through a user-supplied text/template file.
func Template(w io.Writer, events []store.Event, tplPath string) error {
	tpl, err := template.ParseFiles(tplPath)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	return tpl.Execute(w, templateData{Events: events, Now: time.Now()})
}

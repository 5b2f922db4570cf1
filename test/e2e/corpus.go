// Package e2e provides end-to-end tests that ingest an on-disk corpus and query it.
package e2e

import (
	"fmt"
	"strings"
)

// Page is one corpus entry: a titled article written to disk in Format.
type Page struct {
	Name       string
	Title      string
	Format     string
	Signature  string
	Paragraphs []string
}

// Text returns the paragraphs joined the way the extractors separate blocks.
func (p Page) Text() string {
	return strings.Join(p.Paragraphs, "\n\n")
}

var topics = []struct {
	title  string
	phrase string
	body   string
}{
	{"Go Language", "goroutines and channels", "Go is a statically typed language designed at Google. Concurrency is achieved with goroutines and channels."},
	{"Kubernetes", "container orchestration", "Kubernetes is an open-source platform that automates container orchestration, deployment and scaling."},
	{"PostgreSQL", "relational database", "PostgreSQL is an advanced relational database with JSON support and full-text search."},
	{"Redis", "in-memory data store", "Redis is an in-memory data store used for sessions, queues and caching."},
	{"Apache Kafka", "distributed event streaming", "Apache Kafka is a platform for distributed event streaming with high throughput."},
	{"Alan Turing", "computability theory", "Alan Turing was a mathematician whose work on computability theory shaped computer science."},
	{"Ada Lovelace", "analytical engine", "Ada Lovelace wrote the first published algorithm intended for the analytical engine."},
	{"TLS", "transport layer security", "Transport layer security encrypts traffic between clients and servers using certificates."},
	{"SQLite", "embedded database engine", "SQLite is an embedded database engine stored in a single cross-platform file."},
	{"Raft", "consensus algorithm", "Raft is a consensus algorithm designed to be easier to understand than Paxos."},
}

var formats = []string{"html", "md", "txt", "xlsx"}

// BuildCorpus returns n pages cycling through topics and formats. Every page has
// a unique signature sentence and enough paragraphs to span several segments.
func BuildCorpus(n int) []Page {
	pages := make([]Page, 0, n)
	for i := 0; i < n; i++ {
		topic := topics[i%len(topics)]
		format := formats[i%len(formats)]
		signature := fmt.Sprintf("Page %03d is about %s.", i, topic.phrase)
		paragraphs := []string{signature, topic.body}
		for j := 0; j < 4; j++ {
			paragraphs = append(paragraphs, fmt.Sprintf(
				"Section %d of %s (page %03d) repeats that %s matter for %s in practice.",
				j+1, topic.title, i, topic.phrase, strings.ToLower(topic.title)))
		}
		pages = append(pages, Page{
			Name:       fmt.Sprintf("page-%03d.%s", i, format),
			Title:      fmt.Sprintf("%s %03d", topic.title, i),
			Format:     format,
			Signature:  signature,
			Paragraphs: paragraphs,
		})
	}
	return pages
}

// Package regulatory serves static regulatory excerpts keyed by jurisdiction and topic.
//
// The retriever is a plain in-memory lookup standing in for document search.
// Reference data is read-only: nothing in the decision path mutates it.
package regulatory

import (
	_ "embed"
	"fmt"
	"iter"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed snippets.yaml
var defaultSnippets []byte

// Jurisdiction used for federal (non-state) excerpts.
const JurisdictionFederal = "FEDERAL"

// Snippet is one reference excerpt.
type Snippet struct {
	Jurisdiction string `yaml:"jurisdiction" json:"jurisdiction"`
	Topic        string `yaml:"topic" json:"topic,omitempty"`
	Text         string `yaml:"text" json:"text"`
	Source       string `yaml:"source" json:"source"`
}

type document struct {
	Snippets []Snippet `yaml:"snippets"`
}

// Retriever looks up snippets. It is safe for concurrent use because its
// data never changes after construction.
type Retriever struct {
	snippets []Snippet
}

// NewRetriever builds a retriever over snippets. Jurisdictions are upper-cased
// and topics lower-cased so lookups can be case-insensitive.
func NewRetriever(snippets []Snippet) *Retriever {
	out := make([]Snippet, 0, len(snippets))
	for _, s := range snippets {
		s.Jurisdiction = strings.ToUpper(strings.TrimSpace(s.Jurisdiction))
		s.Topic = strings.ToLower(strings.TrimSpace(s.Topic))
		s.Text = strings.TrimSpace(s.Text)
		out = append(out, s)
	}
	return &Retriever{snippets: out}
}

// Parse decodes a YAML snippet document.
func Parse(data []byte) (*Retriever, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode snippets: %w", err)
	}
	for i, s := range doc.Snippets {
		if strings.TrimSpace(s.Jurisdiction) == "" || strings.TrimSpace(s.Text) == "" {
			return nil, fmt.Errorf("snippet %d: jurisdiction and text are required", i)
		}
	}
	return NewRetriever(doc.Snippets), nil
}

// LoadDefault returns a retriever over the embedded reference data.
func LoadDefault() (*Retriever, error) {
	return Parse(defaultSnippets)
}

// LoadFile reads a snippet document from disk.
func LoadFile(path string) (*Retriever, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snippets file: %w", err)
	}
	return Parse(data)
}

// Search yields snippets for jurisdiction, optionally narrowed to topic.
// An empty topic matches every topic. The sequence is lazy, finite and can be
// ranged over any number of times.
func (r *Retriever) Search(jurisdiction, topic string) iter.Seq[Snippet] {
	jurisdiction = strings.ToUpper(strings.TrimSpace(jurisdiction))
	topic = strings.ToLower(strings.TrimSpace(topic))

	return func(yield func(Snippet) bool) {
		for _, s := range r.snippets {
			if s.Jurisdiction != jurisdiction {
				continue
			}
			if topic != "" && s.Topic != topic {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}

// Jurisdictions lists the distinct jurisdictions in sorted order.
func (r *Retriever) Jurisdictions() []string {
	out := make([]string, 0, len(r.snippets))
	for _, s := range r.snippets {
		out = append(out, s.Jurisdiction)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

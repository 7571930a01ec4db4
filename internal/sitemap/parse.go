package sitemap

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Namespace is the sitemaps.org schema namespace.
const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// ErrEmptyDocument is returned for bodies with no content at all.
var ErrEmptyDocument = errors.New("empty document")

// Entry is one <sitemap> element of a sitemap index.
type Entry struct {
	Loc    string
	HasLoc bool
}

// Document is the parsed shape of a sitemap index: Single, Multiple or Absent.
type Document interface {
	isDocument()
}

// Single is an index with exactly one entry.
type Single struct {
	Entry Entry
}

// Multiple is an index with two or more entries, in document order.
type Multiple struct {
	Entries []Entry
}

// Absent is a well-formed document without sitemap index entries.
type Absent struct {
	// Root is the name of the document element, empty when there is none.
	Root string
}

func (Single) isDocument()   {}
func (Multiple) isDocument() {}
func (Absent) isDocument()   {}

// Parse reads body as XML and classifies it. A non-nil error means the body is not
// well-formed and the site must be skipped.
func Parse(body []byte) (Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyDocument
	}
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}

	root, err := documentElement(doc)
	if err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	if root.Data != "sitemapindex" {
		return Absent{Root: root.Data}, nil
	}

	nodes := childElements(root, "sitemap")
	switch len(nodes) {
	case 0:
		return Absent{Root: root.Data}, nil
	case 1:
		return Single{Entry: entryFrom(nodes[0])}, nil
	default:
		entries := make([]Entry, 0, len(nodes))
		for _, n := range nodes {
			entries = append(entries, entryFrom(n))
		}
		return Multiple{Entries: entries}, nil
	}
}

// Locations flattens a document into its location strings, reporting how many entries
// had to be dropped for lacking a <loc>.
func Locations(doc Document) (locs []string, dropped int) {
	switch d := doc.(type) {
	case Single:
		if !d.Entry.HasLoc {
			return nil, 1
		}
		return []string{d.Entry.Loc}, 0
	case Multiple:
		locs = make([]string, 0, len(d.Entries))
		for _, e := range d.Entries {
			if !e.HasLoc {
				dropped++
				continue
			}
			locs = append(locs, e.Loc)
		}
		return locs, dropped
	default:
		return nil, 0
	}
}

// documentElement returns the single root element. Text before the root is attached to the
// document's own sibling chain by xmlquery, so both chains are checked.
func documentElement(doc *xmlquery.Node) (*xmlquery.Node, error) {
	var root *xmlquery.Node
	for _, first := range []*xmlquery.Node{doc.FirstChild, doc.NextSibling} {
		for n := first; n != nil; n = n.NextSibling {
			switch n.Type {
			case xmlquery.ElementNode:
				if root != nil {
					return nil, fmt.Errorf("junk after document element <%s>", root.Data)
				}
				root = n
			case xmlquery.TextNode, xmlquery.CharDataNode:
				if strings.TrimSpace(n.Data) != "" {
					return nil, fmt.Errorf("text outside document element")
				}
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("no document element")
	}
	return root, nil
}

func childElements(parent *xmlquery.Node, name string) []*xmlquery.Node {
	var out []*xmlquery.Node
	for n := parent.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode && n.Data == name {
			out = append(out, n)
		}
	}
	return out
}

// entryFrom takes the first non-empty <loc> child; whitespace around the value is trimmed.
func entryFrom(n *xmlquery.Node) Entry {
	for _, loc := range childElements(n, "loc") {
		if v := strings.TrimSpace(loc.InnerText()); v != "" {
			return Entry{Loc: v, HasLoc: true}
		}
	}
	return Entry{}
}

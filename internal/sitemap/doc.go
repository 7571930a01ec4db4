// Package sitemap parses per-site sitemap index documents, accumulates their locations and
// renders the combined sitemap index.
//
// Parsing resolves each document once into a Document variant:
//   - Single: the index holds exactly one <sitemap> entry.
//   - Multiple: the index holds two or more entries, each checked for its own <loc>.
//   - Absent: the document parsed but has no <sitemapindex>/<sitemap> structure.
//
// Sites whose body is not well-formed XML, or whose document is Absent, contribute nothing.
// Locations are never invented: an entry without <loc> is dropped on its own.
package sitemap

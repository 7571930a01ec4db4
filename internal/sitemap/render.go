package sitemap

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// LastModLayout is the W3C datetime form used for <lastmod>, always in UTC.
const LastModLayout = "2006-01-02T15:04:05Z"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Render writes the sitemap index for locs. Each <lastmod> samples the clock separately.
// Values are XML-escaped so a consumer reads back exactly the original location string.
func Render(locs []Location, clock Clock) ([]byte, error) {
	var b strings.Builder
	b.WriteString(xml.Header)
	fmt.Fprintf(&b, "<sitemapindex xmlns=%q>", Namespace)
	for _, loc := range locs {
		b.WriteString("\n\t<sitemap>\n\t\t<loc>")
		if err := xml.EscapeText(&b, []byte(loc.URL)); err != nil {
			return nil, fmt.Errorf("escape loc %q: %w", loc.URL, err)
		}
		b.WriteString("</loc>\n\t\t<lastmod>")
		b.WriteString(clock.Now().UTC().Format(LastModLayout))
		b.WriteString("</lastmod>\n\t</sitemap>")
	}
	b.WriteString("\n</sitemapindex>\n")
	return []byte(b.String()), nil
}

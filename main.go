// The main package for the sitemapindex executable.
package main

import (
	"github.com/wikitide/sitemapindex/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}

// Command docrag ingests documents (PDF, web pages, text files) into a vector
// store and answers questions against them with a language model. It provides
// a CLI interface (via Cobra) and an optional HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docrag/cmd/docrag/commands"
	"github.com/54b3r/docrag/internal/query"
	"github.com/54b3r/docrag/internal/rag"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		if rag.Kind(err) != "internal" {
			fmt.Fprintln(os.Stderr, query.FailureMessage(err))
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

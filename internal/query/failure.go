package query

import (
	"errors"

	"github.com/54b3r/docrag/internal/rag"
)

// FailureMessage maps err to a sentence fit for an end user. It never says
// "I don't know"; that answer is reserved for questions the knowledge base
// cannot answer.
func FailureMessage(err error) string {
	var upErr *rag.UpsertError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &upErr):
		return "Some documents could not be saved to the knowledge base. Please retry the ingestion."
	case errors.Is(err, rag.ErrDimensionMismatch):
		return "The knowledge base was built with a different embedding model. Re-ingest the documents or select the matching model."
	case errors.Is(err, rag.ErrConfiguration):
		return "docrag is misconfigured. Check the configuration and try again."
	case errors.Is(err, rag.ErrNoDataAvailable):
		return "The knowledge base is empty. Ingest some documents first."
	case errors.Is(err, rag.ErrCollectionNotFound):
		return "The requested collection does not exist."
	case errors.Is(err, rag.ErrEmbeddingProvider):
		return "The embedding service failed to process the request. Please try again later."
	case errors.Is(err, rag.ErrCompletionProvider):
		return "The language model failed to produce an answer. Please try again later."
	case errors.Is(err, rag.ErrConnection):
		return "A backing service is unreachable. Please try again later."
	default:
		return "Something went wrong while answering the question."
	}
}

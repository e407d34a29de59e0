package rag

import (
	"fmt"
	"strings"
)

// Meta is the metadata sub-record stored alongside every chunk.
type Meta struct {
	// Source is the origin tag of the parent document (pdf, web, text).
	Source string `json:"source"`
	// ChunkIndex is the chunk's ordinal within its document.
	ChunkIndex int `json:"chunk_index"`
	// Length is the character count of the chunk text.
	Length int `json:"length"`
	// Ref is the path or URL of the parent document, when known.
	Ref string `json:"ref,omitempty"`
}

// Payload is the typed record stored with each vector.
type Payload struct {
	// Text is the chunk text, returned as retrieval context.
	Text string `json:"text"`
	// Meta describes where the text came from.
	Meta Meta `json:"meta"`
}

// PayloadFromChunk builds the payload for c, tagged with the document ref.
func PayloadFromChunk(c Chunk, ref string) Payload {
	return Payload{
		Text: c.Text,
		Meta: Meta{
			Source:     string(c.Source),
			ChunkIndex: c.Index,
			Length:     c.Length,
			Ref:        ref,
		},
	}
}

// Validate rejects payloads missing required fields.
func (p Payload) Validate() error {
	if p.Text == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidPayload)
	}
	if strings.TrimSpace(p.Meta.Source) == "" {
		return fmt.Errorf("%w: meta.source is required", ErrInvalidPayload)
	}
	if p.Meta.ChunkIndex < 0 {
		return fmt.Errorf("%w: meta.chunk_index must be >= 0, got %d", ErrInvalidPayload, p.Meta.ChunkIndex)
	}
	if p.Meta.Length < 0 {
		return fmt.Errorf("%w: meta.length must be >= 0, got %d", ErrInvalidPayload, p.Meta.Length)
	}
	return nil
}

// ValidateRecords checks every record's payload and that each vector has
// exactly dims components. dims <= 0 skips the dimension check.
func ValidateRecords(records []VectorRecord, dims int) error {
	for i, r := range records {
		if err := r.Payload.Validate(); err != nil {
			return fmt.Errorf("record %d (id %d): %w", i, r.ID, err)
		}
		if len(r.Vector) == 0 {
			return fmt.Errorf("record %d (id %d): %w: empty vector", i, r.ID, ErrConfiguration)
		}
		if dims > 0 && len(r.Vector) != dims {
			return fmt.Errorf("record %d (id %d): %w: vector has %d dimensions, collection has %d",
				i, r.ID, ErrDimensionMismatch, len(r.Vector), dims)
		}
	}
	return nil
}

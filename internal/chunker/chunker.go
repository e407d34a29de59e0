// Package chunker splits document text into bounded, optionally overlapping
// chunks. Two policies are supported:
//
//   - separator: split on one separator and greedily pack the pieces.
//   - recursive: pack on a primary separator and re-split any piece that is
//     still too long with progressively finer separators (paragraph, line,
//     space, character) until every chunk fits.
//
// Lengths are measured in characters (runes). Chunks are always contiguous
// substrings of the input and are never whitespace-trimmed.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/docrag/internal/rag"
)

// Strategy selects the splitting policy.
type Strategy string

const (
	// StrategySeparator splits on a single separator.
	StrategySeparator Strategy = "separator"
	// StrategyRecursive falls back to finer separators for oversized pieces.
	StrategyRecursive Strategy = "recursive"
)

// Defaults used when a Config field is left zero.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
	DefaultSeparator    = "\n"
)

// recursiveSeparators is the fallback chain, coarsest first. The empty
// separator splits into single characters and always terminates recursion.
var recursiveSeparators = []string{"\n\n", "\n", " ", ""}

// Config holds the splitting parameters for a Splitter.
type Config struct {
	// Size is the maximum chunk length in characters.
	Size int
	// Overlap is the maximum number of characters a chunk may share with the
	// tail of the previous chunk. Must be less than Size.
	Overlap int
	// Separator is the (primary) separator. Empty splits per character.
	Separator string
	// Strategy selects the policy. Defaults to StrategySeparator.
	Strategy Strategy
}

// Splitter applies a validated Config to documents. It is safe for concurrent use.
type Splitter struct {
	cfg Config
}

// New validates cfg and returns a Splitter.
func New(cfg Config) (*Splitter, error) {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategySeparator
	}
	switch cfg.Strategy {
	case StrategySeparator, StrategyRecursive:
	default:
		return nil, fmt.Errorf("chunker: %w: unknown strategy %q (valid: separator, recursive)", rag.ErrConfiguration, cfg.Strategy)
	}
	if err := validate(cfg.Size, cfg.Overlap); err != nil {
		return nil, err
	}
	return &Splitter{cfg: cfg}, nil
}

// Config returns the splitter's configuration.
func (s *Splitter) Config() Config {
	return s.cfg
}

// Split chunks doc.Text and tags every chunk with doc.Origin.
func (s *Splitter) Split(doc rag.Document) []rag.Chunk {
	var spans []span
	switch s.cfg.Strategy {
	case StrategyRecursive:
		spans = splitRecursive(doc.Text, s.cfg.Size, s.cfg.Overlap, s.cfg.Separator)
	default:
		spans = splitSeparator(doc.Text, s.cfg.Size, s.cfg.Overlap, s.cfg.Separator)
	}
	return toChunks(doc.Text, doc.Origin, spans)
}

// Split applies the separator policy to text. Empty text yields no chunks and
// no error.
func Split(text string, chunkSize, chunkOverlap int, separator string) ([]rag.Chunk, error) {
	if err := validate(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	return toChunks(text, rag.OriginText, splitSeparator(text, chunkSize, chunkOverlap, separator)), nil
}

// SplitRecursive applies the recursive policy to text with separator as the
// primary separator.
func SplitRecursive(text string, chunkSize, chunkOverlap int, separator string) ([]rag.Chunk, error) {
	if err := validate(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	return toChunks(text, rag.OriginText, splitRecursive(text, chunkSize, chunkOverlap, separator)), nil
}

func validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("chunker: %w: chunk size must be > 0, got %d", rag.ErrConfiguration, size)
	}
	if overlap < 0 {
		return fmt.Errorf("chunker: %w: chunk overlap must be >= 0, got %d", rag.ErrConfiguration, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("chunker: %w: chunk overlap (%d) must be less than chunk size (%d)", rag.ErrConfiguration, overlap, size)
	}
	return nil
}

// span is a region of the source text in both byte and rune offsets.
type span struct {
	start, end   int
	rstart, rend int
}

func (s span) runes() int { return s.rend - s.rstart }

// cover returns the span from the first unit's start to the last unit's end.
func cover(units []span) span {
	first, last := units[0], units[len(units)-1]
	return span{start: first.start, end: last.end, rstart: first.rstart, rend: last.rend}
}

func splitSeparator(text string, size, overlap int, sep string) []span {
	if text == "" {
		return nil
	}
	whole := span{start: 0, end: len(text), rstart: 0, rend: utf8.RuneCountInString(text)}
	return pack(splitSpans(text, whole, sep), size, overlap)
}

func splitRecursive(text string, size, overlap int, primary string) []span {
	if text == "" {
		return nil
	}
	whole := span{start: 0, end: len(text), rstart: 0, rend: utf8.RuneCountInString(text)}
	return recurse(text, whole, separatorChain(primary), size, overlap)
}

// separatorChain returns primary followed by every finer fallback separator.
// A primary outside the default chain is followed by the whole chain.
func separatorChain(primary string) []string {
	chain := []string{primary}
	from := 0
	for i, s := range recursiveSeparators {
		if s == primary {
			from = i + 1
			break
		}
	}
	for _, s := range recursiveSeparators[from:] {
		if s != primary {
			chain = append(chain, s)
		}
	}
	return chain
}

func recurse(text string, region span, seps []string, size, overlap int) []span {
	sep, rest := seps[len(seps)-1], []string(nil)
	body := text[region.start:region.end]
	for i, s := range seps {
		if s == "" || strings.Contains(body, s) {
			sep, rest = s, seps[i+1:]
			break
		}
	}

	var out, fits []span
	for _, u := range splitSpans(text, region, sep) {
		if u.runes() <= size {
			fits = append(fits, u)
			continue
		}
		if len(fits) > 0 {
			out = append(out, pack(fits, size, overlap)...)
			fits = nil
		}
		if len(rest) == 0 {
			out = append(out, u)
			continue
		}
		out = append(out, recurse(text, u, rest, size, overlap)...)
	}
	if len(fits) > 0 {
		out = append(out, pack(fits, size, overlap)...)
	}
	return out
}

// splitSpans splits region on sep and drops empty pieces. An empty sep
// yields one span per rune.
func splitSpans(text string, region span, sep string) []span {
	var out []span
	if sep == "" {
		pos, rpos := region.start, region.rstart
		for pos < region.end {
			_, w := utf8.DecodeRuneInString(text[pos:region.end])
			out = append(out, span{start: pos, end: pos + w, rstart: rpos, rend: rpos + 1})
			pos += w
			rpos++
		}
		return out
	}

	sepRunes := utf8.RuneCountInString(sep)
	pos, rpos := region.start, region.rstart
	for {
		idx := strings.Index(text[pos:region.end], sep)
		end := region.end
		if idx >= 0 {
			end = pos + idx
		}
		n := utf8.RuneCountInString(text[pos:end])
		if end > pos {
			out = append(out, span{start: pos, end: end, rstart: rpos, rend: rpos + n})
		}
		if idx < 0 {
			return out
		}
		pos = end + len(sep)
		rpos += n + sepRunes
	}
}

// pack greedily merges consecutive units into chunks of at most size runes.
// After each emitted chunk it keeps the longest tail of units no longer than
// overlap runes that still leaves room for the next unit. A unit longer than
// size on its own is emitted as a single chunk.
func pack(units []span, size, overlap int) []span {
	var out, cur []span
	for _, u := range units {
		if len(cur) > 0 && u.rend-cur[0].rstart > size {
			out = append(out, cover(cur))
			for len(cur) > 0 && (cover(cur).runes() > overlap || u.rend-cur[0].rstart > size) {
				cur = cur[1:]
			}
		}
		cur = append(cur, u)
	}
	if len(cur) > 0 {
		out = append(out, cover(cur))
	}
	return out
}

func toChunks(text string, origin rag.Origin, spans []span) []rag.Chunk {
	chunks := make([]rag.Chunk, 0, len(spans))
	for i, s := range spans {
		chunks = append(chunks, rag.Chunk{
			Text:   text[s.start:s.end],
			Index:  i,
			Source: origin,
			Length: s.runes(),
			Start:  s.start,
			End:    s.end,
		})
	}
	return chunks
}

// Package chunker splits raw text into overlapping, position-tracked
// segments suitable for embedding.
package chunker

import (
	"strings"
	"unicode"
)

// Piece is one chunk of the input text.
type Piece struct {
	Text   string
	Index  int // 0-based, dense within one chunking run
	Length int
	Start  int // best-effort offset into the original text
	End    int
}

// Options defines chunking parameters.
type Options struct {
	// MaxLength is the chunk size cap in characters. A single sentence
	// longer than MaxLength is emitted alone rather than truncated.
	MaxLength int
	// Overlap is the minimum trailing context (in characters) carried
	// into the start of the next chunk, in whole sentences.
	Overlap int
}

// DefaultOptions returns the default chunking parameters.
func DefaultOptions() Options {
	return Options{
		MaxLength: 1000,
		Overlap:   200,
	}
}

func (o Options) normalized() Options {
	if o.MaxLength <= 0 {
		o.MaxLength = DefaultOptions().MaxLength
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.MaxLength {
		o.Overlap = o.MaxLength / 2
	}
	return o
}

// Chunk splits text into ordered pieces. Paragraph boundaries (blank
// lines) are preserved where possible; oversized paragraphs are split at
// sentence boundaries with overlap between adjacent pieces. Empty or
// whitespace-only input yields no pieces.
func Chunk(text string, opts Options) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	opts = opts.normalized()

	var pieces []Piece
	pos := 0

	for _, para := range strings.Split(text, "\n\n") {
		paraPieces := chunkParagraph(para, pos, opts)
		pieces = append(pieces, paraPieces...)
		// Advance past the paragraph and its blank-line separator so
		// offsets stay consistent even when a paragraph is skipped.
		pos += len(para) + 2
	}

	for i := range pieces {
		pieces[i].Index = i
		pieces[i].Length = len(pieces[i].Text)
	}
	return pieces
}

// chunkParagraph turns one paragraph into pieces. A paragraph that fails
// to chunk is skipped rather than aborting the whole operation.
func chunkParagraph(para string, base int, opts Options) (pieces []Piece) {
	defer func() {
		if recover() != nil {
			pieces = nil
		}
	}()

	trimmed := strings.TrimSpace(para)
	if trimmed == "" {
		return nil
	}

	// Offset of the trimmed content within the original paragraph.
	lead := strings.Index(para, trimmed[:1])
	if lead < 0 {
		lead = 0
	}
	start := base + lead

	if len(trimmed) <= opts.MaxLength {
		return []Piece{{
			Text:  trimmed,
			Start: start,
			End:   start + len(trimmed),
		}}
	}

	return chunkSentences(trimmed, start, opts)
}

// chunkSentences greedily packs sentences into pieces of at most
// MaxLength characters, backing the cursor up by whole sentences after
// each emitted piece until at least Overlap characters of trailing
// context begin the next piece. The cursor always advances by at least
// one sentence per iteration.
func chunkSentences(text string, base int, opts Options) []Piece {
	sentences, offsets := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var pieces []Piece
	i := 0
	for i < len(sentences) {
		size := 0
		j := i
		for j < len(sentences) {
			s := sentences[j]
			add := len(s)
			if size > 0 {
				add++ // joining space
			}
			if size > 0 && size+add > opts.MaxLength {
				break
			}
			size += add
			j++
		}
		if j == i {
			// Single sentence longer than MaxLength: emit alone.
			j = i + 1
		}

		chunk := strings.Join(sentences[i:j], " ")
		start := base + offsets[i]
		pieces = append(pieces, Piece{
			Text:  chunk,
			Start: start,
			End:   start + len(chunk),
		})

		if j >= len(sentences) {
			break
		}

		// Back up whole sentences for overlap, preserving forward
		// progress: the next piece starts at least one sentence past
		// the previous start.
		next := j
		covered := 0
		for next > i+1 && covered < opts.Overlap {
			next--
			covered += len(sentences[next])
		}
		i = next
	}
	return pieces
}

// splitSentences splits text on sentence-ending punctuation followed by
// whitespace, returning the trimmed sentences and their start offsets
// within text.
func splitSentences(text string) ([]string, []int) {
	var sentences []string
	var offsets []int

	runes := []rune(text)
	byteAt := 0
	segStart := 0
	var current strings.Builder

	flush := func(endByte int) {
		s := strings.TrimSpace(current.String())
		if s != "" {
			// Offset of trimmed content within the segment.
			lead := strings.Index(text[segStart:endByte], s[:1])
			if lead < 0 {
				lead = 0
			}
			sentences = append(sentences, s)
			offsets = append(offsets, segStart+lead)
		}
		current.Reset()
		segStart = endByte
	}

	for idx, r := range runes {
		current.WriteRune(r)
		byteAt += len(string(r))
		if r == '.' || r == '!' || r == '?' {
			if idx+1 >= len(runes) || unicode.IsSpace(runes[idx+1]) {
				flush(byteAt)
			}
		}
	}
	flush(len(text))

	return sentences, offsets
}

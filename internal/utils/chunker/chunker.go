// Package chunker splits transcripts and profile documents into token-bounded
// chunks. Speaker turns are kept whole whenever they fit.
package chunker

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// Chunk is one piece of a document, Index is its position in the document
type Chunk struct {
	Index  int
	Text   string
	Tokens int
}

// Chunker packs lines into chunks of at most Size tokens, repeating up to
// Overlap tokens of trailing lines at the start of the next chunk
type Chunker struct {
	codec   tokenizer.Codec
	size    int
	overlap int
}

type piece struct {
	text   string
	tokens int
}

// New builds a chunker for the named tiktoken encoding
func New(encoding string, size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	if encoding == "" {
		encoding = string(tokenizer.Cl100kBase)
	}
	codec, err := tokenizer.Get(tokenizer.Encoding(encoding))
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", encoding, err)
	}
	return &Chunker{codec: codec, size: size, overlap: overlap}, nil
}

// Split chunks text. The result is deterministic for a given input.
func (c *Chunker) Split(text string) ([]Chunk, error) {
	pieces, err := c.pieces(text)
	if err != nil {
		return nil, err
	}
	if len(pieces) == 0 {
		return nil, nil
	}

	var (
		chunks  []Chunk
		current []piece
		tokens  int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: joinPieces(current), Tokens: tokens})
	}

	for _, p := range pieces {
		if tokens+p.tokens > c.size && len(current) > 0 {
			flush()
			current, tokens = c.carry(current, p.tokens)
		}
		current = append(current, p)
		tokens += p.tokens
	}
	flush()
	return chunks, nil
}

// carry returns the trailing pieces of prev that fit in the overlap budget
// and still leave room for the next piece
func (c *Chunker) carry(prev []piece, next int) ([]piece, int) {
	if c.overlap == 0 {
		return nil, 0
	}
	start := len(prev)
	total := 0
	for start > 0 {
		t := prev[start-1].tokens
		if total+t > c.overlap || total+t+next > c.size {
			break
		}
		total += t
		start--
	}
	// never carry the whole previous chunk, or no progress is made
	if start == 0 {
		return nil, 0
	}
	out := make([]piece, len(prev)-start)
	copy(out, prev[start:])
	return out, total
}

// pieces splits text into lines, breaking any line longer than size into
// overlapping windows
func (c *Chunker) pieces(text string) ([]piece, error) {
	text = strings.ToValidUTF8(strings.ReplaceAll(text, "\r\n", "\n"), "\uFFFD")
	var out []piece
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ids, tokens, err := c.codec.Encode(line)
		if err != nil {
			return nil, fmt.Errorf("encode line: %w", err)
		}
		if len(ids) <= c.size {
			out = append(out, piece{text: line, tokens: len(ids)})
			continue
		}
		windows, err := c.windows(line, tokenOffsets(line, tokens))
		if err != nil {
			return nil, err
		}
		out = append(out, windows...)
	}
	return out, nil
}

// windows cuts a long line into pieces of at most size tokens, starting a
// new piece every size-overlap tokens. BPE tokens may end inside a rune, so
// every edge is moved back to a rune start and each piece is re-counted.
func (c *Chunker) windows(line string, offsets []int) ([]piece, error) {
	stride := c.size - c.overlap
	tokenAt := func(b int) int {
		// last token starting at or before byte b
		return sort.SearchInts(offsets, b+1) - 1
	}

	var out []piece
	start := 0
	for start < len(line) {
		first := tokenAt(start)
		end := runeFloor(line, offsets[min(first+c.size, len(offsets)-1)])
		if end <= start {
			end = runeCeil(line, start+1)
		}
		n, err := c.count(line[start:end])
		if err != nil {
			return nil, err
		}
		for n > c.size {
			shorter := runeFloor(line, end-1)
			if shorter <= start {
				break
			}
			end = shorter
			if n, err = c.count(line[start:end]); err != nil {
				return nil, err
			}
		}
		if part := strings.TrimSpace(line[start:end]); part != "" {
			out = append(out, piece{text: part, tokens: n})
		}
		if end == len(line) {
			break
		}
		next := runeFloor(line, offsets[min(first+stride, len(offsets)-1)])
		if next <= start || next > end {
			next = end
		}
		start = next
	}
	return out, nil
}

func (c *Chunker) count(s string) (int, error) {
	ids, _, err := c.codec.Encode(s)
	if err != nil {
		return 0, fmt.Errorf("encode window: %w", err)
	}
	return len(ids), nil
}

// tokenOffsets returns the byte offset of every token plus len(line). When
// the token strings do not add up to the line, offsets are spread evenly and
// the re-count in windows keeps the budget.
func tokenOffsets(line string, tokens []string) []int {
	offsets := make([]int, 0, len(tokens)+1)
	pos := 0
	for _, t := range tokens {
		offsets = append(offsets, pos)
		pos += len(t)
	}
	offsets = append(offsets, pos)
	if pos == len(line) {
		return offsets
	}
	for i := range offsets {
		offsets[i] = i * len(line) / len(tokens)
	}
	return offsets
}

func runeFloor(s string, b int) int {
	if b >= len(s) {
		return len(s)
	}
	for b > 0 && !utf8.RuneStart(s[b]) {
		b--
	}
	return b
}

func runeCeil(s string, b int) int {
	for b < len(s) && !utf8.RuneStart(s[b]) {
		b++
	}
	return b
}

func joinPieces(ps []piece) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.text
	}
	return strings.Join(parts, "\n")
}

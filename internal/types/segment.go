package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// segmentNamespace seeds deterministic segment ids
var segmentNamespace = uuid.MustParse("6f1b7c52-3c1e-4d8a-9d55-2f0e6a9c4b17")

// SourceKind tags where a candidate segment came from
type SourceKind string

const (
	SourceKindTranscript   SourceKind = "transcript"
	SourceKindProfile      SourceKind = "profile"
	SourceKindPastConflict SourceKind = "past_conflict"
	SourceKindCalendar     SourceKind = "calendar"
)

// ParseSourceKind validates a stored kind value
func ParseSourceKind(s string) (SourceKind, error) {
	switch k := SourceKind(strings.ToLower(strings.TrimSpace(s))); k {
	case SourceKindTranscript, SourceKindProfile, SourceKindPastConflict, SourceKindCalendar:
		return k, nil
	default:
		return "", fmt.Errorf("unknown source kind %q", s)
	}
}

// Priority orders kinds when relevance scores tie. Higher wins.
func (k SourceKind) Priority() int {
	switch k {
	case SourceKindPastConflict:
		return 3
	case SourceKindProfile:
		return 2
	case SourceKindCalendar:
		return 1
	default:
		return 0
	}
}

// IndexKind is the kind a segment is stored under in the vector index.
// Past conflicts are transcripts of other conflicts, so they share storage.
func (k SourceKind) IndexKind() SourceKind {
	if k == SourceKindPastConflict {
		return SourceKindTranscript
	}
	return k
}

// CandidateSegment is one retrieved chunk together with its relevance score
type CandidateSegment struct {
	ID             string     `json:"id"`
	SourceKind     SourceKind `json:"source_kind"`
	OriginID       string     `json:"origin_id"`
	RelationshipID string     `json:"relationship_id"`
	ChunkIndex     int        `json:"chunk_index"`
	// RawText is the full chunk text, loaded from the segment text store
	RawText string `json:"raw_text,omitempty"`
	// TruncatedText is the capped copy kept in vector index metadata
	TruncatedText string  `json:"truncated_text,omitempty"`
	Score         float64 `json:"score"`
}

// Text prefers the full text over the capped metadata copy
func (s *CandidateSegment) Text() string {
	if s.RawText != "" {
		return s.RawText
	}
	return s.TruncatedText
}

// Key identifies the chunk independent of the query that found it
func (s *CandidateSegment) Key() string {
	return SegmentKey(s.SourceKind.IndexKind(), s.OriginID, s.ChunkIndex)
}

// Validate rejects records that cannot be rendered
func (s *CandidateSegment) Validate() error {
	if s == nil {
		return fmt.Errorf("nil segment")
	}
	if s.ID == "" {
		return fmt.Errorf("segment without id")
	}
	if s.OriginID == "" {
		return fmt.Errorf("segment %s without origin id", s.ID)
	}
	if _, err := ParseSourceKind(string(s.SourceKind)); err != nil {
		return fmt.Errorf("segment %s: %w", s.ID, err)
	}
	if strings.TrimSpace(s.Text()) == "" {
		return fmt.Errorf("segment %s has no text", s.ID)
	}
	return nil
}

// SegmentKey builds the lookup key shared by candidates and stored texts
func SegmentKey(kind SourceKind, originID string, chunkIndex int) string {
	return fmt.Sprintf("%s:%s:%d", kind, originID, chunkIndex)
}

// SegmentID derives the stable id of a chunk, so re-indexing the same chunk
// overwrites instead of duplicating. It is a UUID, which every engine accepts.
func SegmentID(kind SourceKind, originID string, chunkIndex int) string {
	return uuid.NewSHA1(segmentNamespace, []byte(SegmentKey(kind.IndexKind(), originID, chunkIndex))).String()
}

// SegmentRecord is the write model for the vector index
type SegmentRecord struct {
	ID             string
	SourceKind     SourceKind
	OriginID       string
	RelationshipID string
	ChunkIndex     int
	Content        string
	Embedding      []float32
}

// SegmentFilter restricts index queries. Empty fields do not filter.
type SegmentFilter struct {
	SourceKind      SourceKind
	OriginID        string
	ExcludeOriginID string
	RelationshipID  string
	// ChunkIndexBelow keeps chunks with ChunkIndex < ChunkIndexBelow when positive
	ChunkIndexBelow int
}

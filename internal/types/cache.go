package types

import "fmt"

// CacheKey addresses one cached source for a relationship
type CacheKey struct {
	RelationshipID string
	Kind           SourceKind
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s", k.RelationshipID, k.Kind)
}

// Cacheable reports whether the key's source is fixed for a session.
// Transcripts grow while a session runs and are never cached.
func (k CacheKey) Cacheable() bool {
	return k.Kind == SourceKindProfile
}

// RankResult is one reranker score for the document at Index
type RankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"relevance_score"`
}

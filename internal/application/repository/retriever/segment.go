// Package retriever holds what the segment index engines share: metadata
// truncation, filter matching for engines without server-side filters, and
// the engine names used in configuration.
package retriever

import (
	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/utils"
)

const (
	MilvusEngineType   = "milvus"
	QdrantEngineType   = "qdrant"
	PostgresEngineType = "postgres"
	MemoryEngineType   = "memory"
)

// Index metadata field names, shared by every engine
const (
	FieldID             = "id"
	FieldContent        = "content"
	FieldSourceKind     = "source_kind"
	FieldOriginID       = "origin_id"
	FieldRelationshipID = "relationship_id"
	FieldChunkIndex     = "chunk_index"
	FieldEmbedding      = "embedding"
)

// DefaultMaxMetadataBytes caps the text copy stored beside each vector
const DefaultMaxMetadataBytes = 40000

// MetadataContent caps content for storage in index metadata
func MetadataContent(content string, maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMetadataBytes
	}
	out, _ := utils.TruncateUTF8(content, maxBytes)
	return out
}

// Matches evaluates filter against one stored segment
func Matches(filter types.SegmentFilter, kind types.SourceKind, originID, relationshipID string, chunkIndex int) bool {
	if filter.SourceKind != "" && filter.SourceKind.IndexKind() != kind {
		return false
	}
	if filter.OriginID != "" && filter.OriginID != originID {
		return false
	}
	if filter.ExcludeOriginID != "" && filter.ExcludeOriginID == originID {
		return false
	}
	if filter.RelationshipID != "" && filter.RelationshipID != relationshipID {
		return false
	}
	if filter.ChunkIndexBelow > 0 && chunkIndex >= filter.ChunkIndexBelow {
		return false
	}
	return true
}

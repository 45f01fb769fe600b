package milvus

import (
	"sync"

	client "github.com/milvus-io/milvus/client/v2/milvusclient"
)

type milvusRepository struct {
	filter
	client             *client.Client
	collectionBaseName string
	dimension          int
	maxMetadataBytes   int
	pageSize           int
	// Cache for initialized collections (name -> true)
	initializedCollections sync.Map
}

// MilvusSegment is one row of the segments collection
type MilvusSegment struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	SourceKind     string    `json:"source_kind"`
	OriginID       string    `json:"origin_id"`
	RelationshipID string    `json:"relationship_id"`
	ChunkIndex     int64     `json:"chunk_index"`
	Embedding      []float32 `json:"embedding"`
}

type MilvusSegmentWithScore struct {
	MilvusSegment
	Score float64
}

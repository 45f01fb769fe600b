package types

import "time"

// Conflict is one recorded argument. The transcript is either inline or in
// the object store at TranscriptPath.
type Conflict struct {
	ID             string     `json:"id" gorm:"type:varchar(64);primaryKey"`
	RelationshipID string     `json:"relationship_id" gorm:"type:varchar(64);index"`
	Title          string     `json:"title"`
	TranscriptPath string     `json:"transcript_path"`
	TranscriptText string     `json:"-" gorm:"type:text"`
	Status         string     `json:"status" gorm:"type:varchar(32)"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Conflict) TableName() string { return "conflicts" }

// ProfileDocument is an uploaded partner profile
type ProfileDocument struct {
	ID             string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	RelationshipID string    `json:"relationship_id" gorm:"type:varchar(64);index"`
	PartnerID      string    `json:"partner_id" gorm:"type:varchar(64)"`
	FileName       string    `json:"file_name"`
	FilePath       string    `json:"file_path"`
	ChunkCount     int       `json:"chunk_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// UploadFailure names a file of a profile upload that did not land
type UploadFailure struct {
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

func (ProfileDocument) TableName() string { return "profile_documents" }

// CalendarInsight is an inferred calendar or cycle observation
type CalendarInsight struct {
	ID             string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	RelationshipID string    `json:"relationship_id" gorm:"type:varchar(64);index"`
	PartnerID      string    `json:"partner_id" gorm:"type:varchar(64)"`
	Summary        string    `json:"summary" gorm:"type:text"`
	ObservedAt     time.Time `json:"observed_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func (CalendarInsight) TableName() string { return "calendar_insights" }

// SegmentText holds the full text of an indexed chunk
type SegmentText struct {
	ID             string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	SourceKind     string    `json:"source_kind" gorm:"type:varchar(32);index:idx_segment_origin"`
	OriginID       string    `json:"origin_id" gorm:"type:varchar(64);index:idx_segment_origin"`
	RelationshipID string    `json:"relationship_id" gorm:"type:varchar(64)"`
	ChunkIndex     int       `json:"chunk_index"`
	Content        string    `json:"content" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"`
}

func (SegmentText) TableName() string { return "segment_texts" }

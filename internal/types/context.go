package types

import (
	"fmt"
	"strings"
	"time"
)

// ContextRequest is one conversational turn asking for prompt context.
// An empty Utterance marks the session-start trigger.
type ContextRequest struct {
	ConflictID     string `json:"conflict_id" binding:"required"`
	RelationshipID string `json:"relationship_id" binding:"required"`
	PartnerID      string `json:"partner_id"`
	Utterance      string `json:"utterance"`
	SessionID      string `json:"session_id" binding:"required"`
}

// Validate checks required identifiers
func (r *ContextRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("nil request")
	}
	var missing []string
	if strings.TrimSpace(r.ConflictID) == "" {
		missing = append(missing, "conflict_id")
	}
	if strings.TrimSpace(r.RelationshipID) == "" {
		missing = append(missing, "relationship_id")
	}
	if strings.TrimSpace(r.SessionID) == "" {
		missing = append(missing, "session_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// IsSessionStart reports whether the request carries no utterance
func (r *ContextRequest) IsSessionStart() bool {
	return strings.TrimSpace(r.Utterance) == ""
}

// ContextTier separates the current conflict from background material
type ContextTier string

const (
	ContextTierPrimary   ContextTier = "primary"
	ContextTierSecondary ContextTier = "secondary"
)

// TierOf classifies a segment for a given conflict
func TierOf(seg *CandidateSegment, conflictID string) ContextTier {
	if seg.SourceKind == SourceKindTranscript && seg.OriginID == conflictID {
		return ContextTierPrimary
	}
	return ContextTierSecondary
}

// SourceStatus is the terminal state of one guarded fetch
type SourceStatus string

const (
	SourceStatusCompleted SourceStatus = "completed"
	SourceStatusTimedOut  SourceStatus = "timed_out"
	SourceStatusFailed    SourceStatus = "failed"
)

// SkippedSource records a source that contributed nothing because it degraded
type SkippedSource struct {
	Source string       `json:"source"`
	Status SourceStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

// AssembledContext is the final prompt context. It is never mutated after
// construction.
type AssembledContext struct {
	PrimaryText    string          `json:"primary_text"`
	SecondaryText  string          `json:"secondary_text"`
	CalendarText   string          `json:"calendar_text,omitempty"`
	Text           string          `json:"text"`
	PrimaryCount   int             `json:"primary_count"`
	SecondaryCount int             `json:"secondary_count"`
	CalendarCount  int             `json:"calendar_count"`
	Skipped        []SkippedSource `json:"skipped,omitempty"`
	Degraded       bool            `json:"degraded"`
	BuiltAt        time.Time       `json:"built_at"`
}

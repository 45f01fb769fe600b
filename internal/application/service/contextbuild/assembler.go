package contextbuild

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/anishgillella/serene-sub003/internal/types"
)

// Section headers of the assembled prompt context
const (
	HeaderPrimary   = "## CURRENT CONVERSATION"
	HeaderSecondary = "## RELEVANT BACKGROUND"
	HeaderCalendar  = "## CALENDAR INSIGHTS"

	noTranscriptLine = "(No transcript is available for this conflict yet.)"
)

// Assemble merges the tiers into the labeled prompt context. It does no I/O:
// primary is rendered in chunk order, secondary in the given order, and
// calendar segments from secondary go to their own section.
func Assemble(primary, secondary []*types.CandidateSegment, builtAt time.Time) *types.AssembledContext {
	ordered := make([]*types.CandidateSegment, len(primary))
	copy(ordered, primary)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ChunkIndex < ordered[j].ChunkIndex })

	var background, calendar []*types.CandidateSegment
	for _, s := range secondary {
		if s.SourceKind == types.SourceKindCalendar {
			calendar = append(calendar, s)
		} else {
			background = append(background, s)
		}
	}

	out := &types.AssembledContext{
		PrimaryText:    renderPrimary(ordered),
		SecondaryText:  renderBackground(background),
		CalendarText:   renderCalendar(calendar),
		PrimaryCount:   len(ordered),
		SecondaryCount: len(background),
		CalendarCount:  len(calendar),
		BuiltAt:        builtAt,
	}

	sections := []string{HeaderPrimary + "\n" + out.PrimaryText}
	if out.SecondaryText != "" {
		sections = append(sections, HeaderSecondary+"\n"+out.SecondaryText)
	}
	if out.CalendarText != "" {
		sections = append(sections, HeaderCalendar+"\n"+out.CalendarText)
	}
	out.Text = strings.Join(sections, "\n\n")
	return out
}

func renderPrimary(segs []*types.CandidateSegment) string {
	if len(segs) == 0 {
		return noTranscriptLine
	}
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = strings.TrimSpace(s.Text())
	}
	return strings.Join(parts, "\n\n")
}

func renderBackground(segs []*types.CandidateSegment) string {
	if len(segs) == 0 {
		return ""
	}
	var b strings.Builder
	for i, s := range segs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] %s", label(s), strings.TrimSpace(s.Text()))
	}
	return b.String()
}

func renderCalendar(segs []*types.CandidateSegment) string {
	if len(segs) == 0 {
		return ""
	}
	lines := make([]string, len(segs))
	for i, s := range segs {
		lines[i] = "- " + strings.TrimSpace(s.Text())
	}
	return strings.Join(lines, "\n")
}

func label(s *types.CandidateSegment) string {
	switch s.SourceKind {
	case types.SourceKindPastConflict:
		return "Past conflict " + s.OriginID
	case types.SourceKindProfile:
		return "Partner profile"
	default:
		return string(s.SourceKind)
	}
}

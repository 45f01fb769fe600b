package contextbuild

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/anishgillella/serene-sub003/internal/types"
)

func TestAssembleSections(t *testing.T) {
	builtAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	primary := []*types.CandidateSegment{
		{ID: "p2", SourceKind: types.SourceKindTranscript, OriginID: "c1", ChunkIndex: 1, RawText: "B: you never listen"},
		{ID: "p1", SourceKind: types.SourceKindTranscript, OriginID: "c1", ChunkIndex: 0, RawText: "A: can we talk?"},
	}
	secondary := []*types.CandidateSegment{
		{ID: "x", SourceKind: types.SourceKindPastConflict, OriginID: "c0", RawText: "the same fight last week"},
		{ID: "cal", SourceKind: types.SourceKindCalendar, OriginID: "i1", RawText: "luteal phase this week"},
		{ID: "y", SourceKind: types.SourceKindProfile, OriginID: "d1", RawText: "needs time to cool down"},
	}

	out := Assemble(primary, secondary, builtAt)

	assert.Equal(t, builtAt, out.BuiltAt)
	assert.Equal(t, 2, out.PrimaryCount)
	assert.Equal(t, 2, out.SecondaryCount)
	assert.Equal(t, 1, out.CalendarCount)
	assert.Equal(t, "A: can we talk?\n\nB: you never listen", out.PrimaryText)
	assert.NotContains(t, out.SecondaryText, "luteal", "calendar never mixed with background")
	assert.Equal(t, "- luteal phase this week", out.CalendarText)

	iPrimary := strings.Index(out.Text, HeaderPrimary)
	iSecondary := strings.Index(out.Text, HeaderSecondary)
	iCalendar := strings.Index(out.Text, HeaderCalendar)
	assert.True(t, iPrimary == 0 && iPrimary < iSecondary && iSecondary < iCalendar, out.Text)
	assert.Less(t, strings.Index(out.Text, "same fight"), strings.Index(out.Text, "cool down"), "selector order kept")
	assert.Contains(t, out.Text, "[Past conflict c0]")
}

func TestAssembleOmitsEmptySections(t *testing.T) {
	out := Assemble(nil, nil, time.Time{})
	assert.Equal(t, HeaderPrimary+"\n"+noTranscriptLine, out.Text)
	assert.Empty(t, out.SecondaryText)
	assert.Empty(t, out.CalendarText)
	assert.NotContains(t, out.Text, HeaderSecondary)
	assert.NotContains(t, out.Text, HeaderCalendar)
}

func TestAssembleDoesNotReorderInputs(t *testing.T) {
	primary := []*types.CandidateSegment{
		{ID: "b", ChunkIndex: 1, RawText: "second"},
		{ID: "a", ChunkIndex: 0, RawText: "first"},
	}
	Assemble(primary, nil, time.Time{})
	assert.Equal(t, "b", primary[0].ID)
}

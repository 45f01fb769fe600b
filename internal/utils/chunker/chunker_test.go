package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadSizes(t *testing.T) {
	_, err := New("", 0, 0)
	assert.Error(t, err)

	_, err = New("", 10, 10)
	assert.Error(t, err)
}

func TestSplitKeepsShortTextWhole(t *testing.T) {
	c, err := New("", 200, 20)
	require.NoError(t, err)

	chunks, err := c.Split("Alex: you never listen\nSam: that's not fair\n")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Alex: you never listen\nSam: that's not fair", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestSplitEmpty(t *testing.T) {
	c, err := New("", 50, 5)
	require.NoError(t, err)

	chunks, err := c.Split("  \n\n ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitRespectsTokenBudget(t *testing.T) {
	c, err := New("", 30, 8)
	require.NoError(t, err)

	var lines []string
	for i := 0; i < 40; i++ {
		lines = append(lines, fmt.Sprintf("Partner A: turn number %d about the dishes", i))
	}
	chunks, err := c.Split(strings.Join(lines, "\n"))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.LessOrEqual(t, ch.Tokens, 30)
		assert.NotEmpty(t, ch.Text)
	}
	// every line survives somewhere
	joined := ""
	for _, ch := range chunks {
		joined += ch.Text + "\n"
	}
	for _, l := range lines {
		assert.Contains(t, joined, l)
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	c, err := New("", 25, 5)
	require.NoError(t, err)
	text := strings.Repeat("Sam: I felt ignored when you were on your phone all evening.\n", 12)

	a, err := c.Split(text)
	require.NoError(t, err)
	b, err := c.Split(text)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSplitBreaksLongLine(t *testing.T) {
	c, err := New("", 20, 4)
	require.NoError(t, err)
	long := strings.Repeat("word ", 200)

	chunks, err := c.Split(long)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.Tokens, 20)
	}
}

func TestSplitLongMultibyteLineStaysValidUTF8(t *testing.T) {
	c, err := New("", 7, 2)
	require.NoError(t, err)
	line := strings.Repeat("我们又吵架了😢因为家务", 20)

	chunks, err := c.Split(line)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	var joined strings.Builder
	for _, ch := range chunks {
		assert.True(t, utf8.ValidString(ch.Text), "chunk %d: %q", ch.Index, ch.Text)
		assert.LessOrEqual(t, ch.Tokens, 7)
		joined.WriteString(ch.Text)
	}
	// windows overlap, so every rune of the line appears at least once
	for _, r := range "我们又吵架了😢因为家务" {
		assert.Contains(t, joined.String(), string(r))
	}
	assert.Contains(t, chunks[0].Text, "我们")
	last := strings.Split(chunks[len(chunks)-1].Text, "\n")
	assert.True(t, strings.HasSuffix(line, last[len(last)-1]), "last window ends the line")
}

func TestSplitLongLineWithoutOverlapKeepsEveryByte(t *testing.T) {
	c, err := New("", 9, 0)
	require.NoError(t, err)
	line := strings.Repeat("Alex: 你从来不听我说话 🙄 ", 15)

	chunks, err := c.Split(line)
	require.NoError(t, err)
	var rebuilt []string
	for _, ch := range chunks {
		assert.True(t, utf8.ValidString(ch.Text))
		rebuilt = append(rebuilt, ch.Text)
	}
	stripped := strings.ReplaceAll(strings.TrimSpace(line), " ", "")
	assert.Equal(t, stripped, strings.ReplaceAll(strings.Join(rebuilt, ""), "\n", ""))
}

package channel

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUseRichFormat(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"short plain", "Your order shipped", false},
		{"short with line break", "Order shipped\nTrack: http://x.co/1", true},
		{"long without breaks", strings.Repeat("a", 200), true},
		{"exactly 160 no breaks", strings.Repeat("a", 160), false},
		{"exactly 161 no breaks", strings.Repeat("a", 161), true},
		{"over rich ceiling", strings.Repeat("a", 1601), false},
		{"exactly at rich ceiling", strings.Repeat("a", 1600), true},
		{"line break but over ceiling", strings.Repeat("a", 1700) + "\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, useRichFormat(tt.body))
		})
	}
}

func TestChunkBodyShortInput(t *testing.T) {
	parts := chunkBody("hello world", chunkLimit)
	require.Len(t, parts, 1)
	assert.Equal(t, "hello world", parts[0])
}

func TestChunkBodyConcatenationLossless(t *testing.T) {
	bodies := []string{
		strings.Repeat("word ", 100),
		strings.Repeat("a", 500),
		"one two three " + strings.Repeat("four five six seven ", 30),
		strings.Repeat("x", 149) + " " + strings.Repeat("y", 149),
	}
	for _, body := range bodies {
		parts := chunkBody(body, chunkLimit)
		assert.Equal(t, body, strings.Join(parts, ""), "concatenated parts must reproduce the input")
	}
}

func TestChunkBodyRespectsLimit(t *testing.T) {
	body := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	for i, part := range chunkBody(body, chunkLimit) {
		assert.LessOrEqual(t, len(part), chunkLimit, "part %d exceeds limit", i)
	}
}

func TestChunkBodyPrefersWordBoundary(t *testing.T) {
	// Space at index 120, inside the accepted break window (>= 105).
	body := strings.Repeat("a", 120) + " " + strings.Repeat("b", 100)
	parts := chunkBody(body, chunkLimit)
	require.Len(t, parts, 2)
	assert.Equal(t, strings.Repeat("a", 120)+" ", parts[0])
	assert.Equal(t, strings.Repeat("b", 100), parts[1])
}

func TestChunkBodyHardCutsEarlyBoundary(t *testing.T) {
	// Only space is at index 50, before the 0.7 threshold, so the chunk is
	// cut at the limit instead.
	body := strings.Repeat("a", 50) + " " + strings.Repeat("b", 200)
	parts := chunkBody(body, chunkLimit)
	require.Greater(t, len(parts), 1)
	assert.Len(t, parts[0], chunkLimit)
}

func TestChunkBodyNoEmptyParts(t *testing.T) {
	body := strings.Repeat("chunk me please ", 60)
	for _, part := range chunkBody(body, chunkLimit) {
		assert.NotEmpty(t, part)
	}
}

func TestPartSuffix(t *testing.T) {
	assert.Equal(t, "", partSuffix(1, 1))
	assert.Equal(t, " (1/3)", partSuffix(1, 3))
	assert.Equal(t, " (3/3)", partSuffix(3, 3))
}

func TestPartSuffixKeepsPartsWithinSingleSMS(t *testing.T) {
	// Chunk limit plus the longest plausible suffix must still fit in one
	// 160-character SMS.
	suffix := partSuffix(99, 99)
	assert.LessOrEqual(t, chunkLimit+len(suffix), 160)
}

func TestChunkSuffixNumbering(t *testing.T) {
	body := strings.Repeat("word ", 120)
	parts := chunkBody(body, chunkLimit)
	n := len(parts)
	require.Greater(t, n, 1)
	for i := range parts {
		suffix := partSuffix(i+1, n)
		assert.Equal(t, fmt.Sprintf(" (%d/%d)", i+1, n), suffix)
	}
}

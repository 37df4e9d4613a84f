package caption

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_PageOrderAndIDs(t *testing.T) {
	units := Build([]Source{
		{PageID: "p1", Text: "Hello world."},
		{PageID: "p2", Text: ""},
		{PageID: "p3", Text: "Line one.\n\nLine two."},
	})

	require.Len(t, units, 3)
	assert.Equal(t, Unit{ID: "p1-0", Text: "Hello world.", DurationMs: 1500, PageIndex: 0}, units[0])
	assert.Equal(t, Unit{ID: "p3-0", Text: "Line one.", DurationMs: 1500, PageIndex: 2}, units[1])
	assert.Equal(t, Unit{ID: "p3-1", Text: "Line two.", DurationMs: 1500, PageIndex: 2}, units[2])
}

func TestBuild_FallbackWhenNoText(t *testing.T) {
	units := Build([]Source{
		{PageID: "a", Text: ""},
		{PageID: "b", Text: "   "},
		{PageID: "c", Text: "\n\n"},
	})

	require.Len(t, units, 3)
	for i, u := range units {
		assert.Equal(t, i, u.PageIndex)
		assert.Equal(t, PlaceholderDurationMs, u.DurationMs)
	}
	assert.Equal(t, "Page 1", units[0].Text)
	assert.Equal(t, "Page 3", units[2].Text)
	assert.Equal(t, "b-0", units[1].ID)
}

func TestBuild_NoPages(t *testing.T) {
	assert.Empty(t, Build(nil))
}

func TestTimeline_EditsReturnNewSnapshot(t *testing.T) {
	base := NewTimeline([]Unit{
		{ID: "p-0", Text: "A", DurationMs: 1500},
		{ID: "p-1", Text: "B", DurationMs: 2000},
	})

	edited, err := base.WithText("p-1", "B!")
	require.NoError(t, err)
	assert.Equal(t, "B", base.Units[1].Text)
	assert.Equal(t, "B!", edited.Units[1].Text)
	assert.Equal(t, base.Version+1, edited.Version)

	clamped, err := edited.WithDuration("p-0", -50)
	require.NoError(t, err)
	assert.Equal(t, MinDurationMs, clamped.Units[0].DurationMs)
	assert.Equal(t, 1500, edited.Units[0].DurationMs)
	assert.Equal(t, 2500, clamped.TotalDurationMs())

	_, err = clamped.WithText("missing", "x")
	assert.ErrorIs(t, err, ErrUnitNotFound)
}

func TestTimeline_SnapshotIsDetached(t *testing.T) {
	tl := NewTimeline([]Unit{{ID: "p-0", Text: "A", DurationMs: 1500}})
	snap := tl.Snapshot()
	snap[0].Text = "changed"
	assert.Equal(t, "A", tl.Units[0].Text)
}

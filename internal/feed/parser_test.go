package feed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>Test Show</title>
    <description>A show about testing.</description>
    <image><url>https://example.com/cover.jpg</url><title>Test Show</title><link>https://example.com</link></image>
    <item>
      <title>With everything</title>
      <guid>ep-1</guid>
      <pubDate>Mon, 05 Jan 2026 10:00:00 GMT</pubDate>
      <itunes:duration>1:02:03</itunes:duration>
      <enclosure url="https://example.com/ep1.mp3" type="audio/mpeg" length="1234"/>
    </item>
    <item>
      <title>No guid</title>
      <enclosure url="https://example.com/ep2.mp3" type="audio/mpeg" length="1234"/>
    </item>
    <item>
      <title>Video enclosure first</title>
      <guid>ep-3</guid>
      <itunes:duration>45:30</itunes:duration>
      <enclosure url="https://example.com/ep3.mp4" type="video/mp4" length="1234"/>
      <enclosure url="https://example.com/ep3.mp3" type="audio/mpeg" length="1234"/>
    </item>
    <item>
      <title>No enclosure at all</title>
      <guid>ep-4</guid>
    </item>
  </channel>
</rss>`

func TestParse(t *testing.T) {
	meta, entries, err := NewParser().Parse(strings.NewReader(testFeed))
	require.NoError(t, err)

	assert.Equal(t, "Test Show", meta.Title)
	assert.Equal(t, "A show about testing.", meta.Description)
	assert.Equal(t, "https://example.com/cover.jpg", meta.ImageURL)

	// The item without any enclosure is not playable and is skipped.
	require.Len(t, entries, 3)

	full := entries[0]
	assert.Equal(t, "ep-1", full.GUID)
	assert.Equal(t, "With everything", full.Title)
	assert.Equal(t, "https://example.com/ep1.mp3", full.AudioURL)
	require.NotNil(t, full.PublishedAt)
	assert.Equal(t, 2026, full.PublishedAt.Year())
	require.NotNil(t, full.DurationSeconds)
	assert.Equal(t, int64(3723), *full.DurationSeconds)

	// Missing guid falls back to the enclosure URL so the episode stays
	// stable across refreshes.
	assert.Equal(t, "https://example.com/ep2.mp3", entries[1].GUID)

	// The audio enclosure wins over the video one.
	audio := entries[2]
	assert.Equal(t, "https://example.com/ep3.mp3", audio.AudioURL)
	require.NotNil(t, audio.DurationSeconds)
	assert.Equal(t, int64(2730), *audio.DurationSeconds)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, _, err := NewParser().Parse(strings.NewReader("not a feed"))
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"90", 90},
		{"02:30", 150},
		{"1:02:03", 3723},
		{" 45 ", 45},
		{"", 0},
		{"abc", 0},
		{"-5", 0},
		{"1:2:3:4", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseDuration(tt.in), "parseDuration(%q)", tt.in)
	}
}

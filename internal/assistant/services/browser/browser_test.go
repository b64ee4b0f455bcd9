package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><head><title>Docs</title><script>var x = 1;</script></head>
<body>
  <h1>Getting   started</h1>
  <p>Install the tool.</p>
  <a href="/guide">Guide</a>
  <a href="https://example.com/api">API</a>
  <a href="/guide">Guide again</a>
  <a href="#top">Top</a>
  <a href="javascript:void(0)">Nothing</a>
</body></html>`

func TestTextOf(t *testing.T) {
	text, err := TextOf(page)
	require.NoError(t, err)
	assert.Equal(t, "Docs\nGetting started\nInstall the tool.", text)
	assert.NotContains(t, text, "var x")
}

func TestLinksOf(t *testing.T) {
	links, err := LinksOf(page, "https://docs.test/start")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "https://docs.test/guide", links[0].URL)
	assert.Equal(t, "Guide", links[0].Text)
	assert.Equal(t, "https://example.com/api", links[1].URL)
}

func TestParseVideoIDs(t *testing.T) {
	body := `..."videoId":"dQw4w9WgXcQ"..."videoId":"dQw4w9WgXcQ"..."videoId":"abcdefghijk"..."videoId":"zzzzzzzzzzz"`
	vids := ParseVideoIDs(body, 2)
	require.Len(t, vids, 2)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", vids[0].URL)
	assert.Equal(t, "https://www.youtube.com/watch?v=abcdefghijk", vids[1].URL)
}

func TestSearchURL(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/results?search_query=lofi+beats", SearchURL("lofi beats"))
}

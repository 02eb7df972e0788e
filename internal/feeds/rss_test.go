package feeds

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/archyards/archyards/internal/config"
	"github.com/archyards/archyards/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:slash="http://purl.org/rss/1.0/modules/slash/" xmlns:media="http://search.yahoo.com/mrss/">
  <channel>
    <title>Dezeen</title>
    <item>
      <title>Concrete &amp; Timber Pavilion Opens</title>
      <link>https://www.dezeen.com/2026/08/27/pavilion/</link>
      <description><![CDATA[<p>A new pavilion combines <b>concrete</b> and timber.</p><img src="https://img.example.com/pavilion.jpg"/>]]></description>
      <pubDate>Thu, 27 Aug 2026 09:00:00 +0000</pubDate>
      <category>architecture</category>
      <category>pavilions</category>
      <slash:comments>14</slash:comments>
      <media:content url="https://media.example.com/pavilion-hero.jpg"/>
    </item>
    <item>
      <title>Untitled entry without optional fields</title>
      <link>https://www.dezeen.com/2026/08/26/second/</link>
      <description>Short description.</description>
      <pubDate>Wed, 26 Aug 2026 12:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Entry with no link at all</title>
      <description>Dropped during normalization.</description>
    </item>
  </channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Archinect</title>
  <entry>
    <title>Museum Extension Breaks Ground</title>
    <link rel="alternate" href="https://archinect.com/news/museum-extension"/>
    <summary>The long-delayed extension finally starts construction.</summary>
    <published>2026-08-27T08:30:00Z</published>
    <id>tag:archinect.com,2026:museum-extension</id>
    <category term="museums"/>
  </entry>
</feed>`

func newTestFetcher(t *testing.T, body string, status int) (*RSSFetcher, config.Source) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)

	fetcher := NewRSSFetcher(5*time.Second, 20, testLogger())
	fetcher.now = func() time.Time {
		return time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	}

	src := config.Source{
		Name:     "Dezeen",
		FeedURL:  server.URL,
		Category: "architecture",
		Logo:     "https://www.dezeen.com/favicon.ico",
	}
	return fetcher, src
}

func TestFetchNormalizesRSS(t *testing.T) {
	fetcher, src := newTestFetcher(t, rssFixture, http.StatusOK)

	candidates, err := fetcher.Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	// The linkless entry is dropped.
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	first := candidates[0]
	if first.ID != models.CandidateID("Dezeen", "https://www.dezeen.com/2026/08/27/pavilion/") {
		t.Errorf("unexpected id %q", first.ID)
	}
	if first.OriginalTitle != "Concrete & Timber Pavilion Opens" {
		t.Errorf("title = %q", first.OriginalTitle)
	}
	if strings.Contains(first.OriginalDescription, "<") {
		t.Errorf("description should be HTML-free: %q", first.OriginalDescription)
	}
	if first.CommentCount != 14 {
		t.Errorf("comment count = %d, want 14", first.CommentCount)
	}
	if first.ImageURL != "https://media.example.com/pavilion-hero.jpg" {
		t.Errorf("image = %q, want media:content url", first.ImageURL)
	}
	if first.Category != "architecture" || first.SourceName != "Dezeen" {
		t.Errorf("source mapping wrong: %+v", first)
	}
	if len(first.Tags) != 2 {
		t.Errorf("tags = %v", first.Tags)
	}
	// Published 09:00, now 12:00.
	if first.AgeHours < 2.9 || first.AgeHours > 3.1 {
		t.Errorf("age hours = %v, want ~3", first.AgeHours)
	}

	second := candidates[1]
	if second.CommentCount != 0 || second.SocialShares != 0 {
		t.Errorf("optional counts should default to 0: %+v", second)
	}
	if second.ImageURL != "" {
		t.Errorf("image should be absent, got %q", second.ImageURL)
	}
}

func TestFetchNormalizesAtom(t *testing.T) {
	fetcher, src := newTestFetcher(t, atomFixture, http.StatusOK)
	src.Name = "Archinect"

	candidates, err := fetcher.Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}

	c := candidates[0]
	if c.URL != "https://archinect.com/news/museum-extension" {
		t.Errorf("url = %q", c.URL)
	}
	if c.OriginalDescription != "The long-delayed extension finally starts construction." {
		t.Errorf("description = %q", c.OriginalDescription)
	}
	if !c.PublishedAt.Equal(time.Date(2026, 8, 27, 8, 30, 0, 0, time.UTC)) {
		t.Errorf("published at = %v", c.PublishedAt)
	}
	if len(c.Tags) != 1 || c.Tags[0] != "museums" {
		t.Errorf("tags = %v", c.Tags)
	}
}

func TestFetchIDStableAcrossRefetch(t *testing.T) {
	fetcher, src := newTestFetcher(t, rssFixture, http.StatusOK)

	first, err := fetcher.Fetch(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	second, err := fetcher.Fetch(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}

	if first[0].ID != second[0].ID {
		t.Errorf("re-fetching the same URL changed the id: %q vs %q", first[0].ID, second[0].ID)
	}
}

func TestFetchSourceUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"http error", "oops", http.StatusBadGateway},
		{"unparseable body", "this is not xml", http.StatusOK},
		{"wrong document type", `<?xml version="1.0"?><html><body>gone</body></html>`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher, src := newTestFetcher(t, tt.body, tt.status)

			_, err := fetcher.Fetch(context.Background(), src)
			if err == nil {
				t.Fatal("expected error")
			}

			var srcErr *SourceError
			if !errors.As(err, &srcErr) {
				t.Fatalf("expected *SourceError, got %T: %v", err, err)
			}
			if srcErr.Source != "Dezeen" {
				t.Errorf("source = %q", srcErr.Source)
			}
		})
	}
}

func TestFetchEmptyFeedYieldsNoCandidates(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty rss channel", `<?xml version="1.0"?><rss version="2.0"><channel><title>Dezeen</title></channel></rss>`},
		{"empty atom feed", `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"><title>Dezeen</title></feed>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher, src := newTestFetcher(t, tt.body, http.StatusOK)

			candidates, err := fetcher.Fetch(context.Background(), src)
			if err != nil {
				t.Fatalf("a feed with no entries is not an error, got %v", err)
			}
			if len(candidates) != 0 {
				t.Errorf("expected 0 candidates, got %d", len(candidates))
			}
		})
	}
}

func TestFetchRespectsMaxEntries(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel>`)
	for i := 0; i < 30; i++ {
		sb.WriteString(`<item><title>n</title><link>https://example.com/a`)
		sb.WriteByte(byte('0' + i%10))
		sb.WriteString(strings.Repeat("x", i))
		sb.WriteString(`</link><description>d</description></item>`)
	}
	sb.WriteString(`</channel></rss>`)

	fetcher, src := newTestFetcher(t, sb.String(), http.StatusOK)
	fetcher.maxEntries = 5

	candidates, err := fetcher.Fetch(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) > 5 {
		t.Errorf("expected at most 5 candidates, got %d", len(candidates))
	}
}

func TestNormalizeTruncatesDescriptionOnRuneBoundary(t *testing.T) {
	fetcher, src := newTestFetcher(t, "", http.StatusOK)

	// 1 ascii byte + 600 three-byte runes = 1801 bytes; the cap falls
	// mid-rune, so a byte slice would leave a dangling partial sequence.
	item := rssItem{
		Title:       "Pavilion",
		Link:        "https://www.dezeen.com/2026/08/27/pavilion/",
		Description: "a" + strings.Repeat("建", 600),
	}

	candidate, ok := fetcher.normalize(src, item)
	if !ok {
		t.Fatal("expected candidate")
	}
	if len(candidate.OriginalDescription) > maxDescription {
		t.Errorf("description is %d bytes, cap is %d", len(candidate.OriginalDescription), maxDescription)
	}
	if !utf8.ValidString(candidate.OriginalDescription) {
		t.Error("truncated description is not valid UTF-8")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"abcdef", 3, "abc"},
		{"aéb", 2, "a"},       // cut would split the two-byte é
		{"建筑", 4, "建"}, // cut would split the second rune
	}

	for _, tt := range tests {
		if got := truncate(tt.in, tt.limit); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}

func TestStripHTML(t *testing.T) {
	in := `<p>A &amp; B</p>  <b>bold</b>`
	got := strings.TrimSpace(stripHTML(in))
	if got != "A & B bold" {
		t.Errorf("stripHTML = %q", got)
	}
}

func TestParsePubDateFormats(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		raw  string
		want time.Time
	}{
		{"Thu, 27 Aug 2026 09:00:00 +0000", time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)},
		{"2026-08-27T09:00:00Z", time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)},
		{"2026-08-27 09:00:00", time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)},
		{"garbage", now()},
		{"", now()},
	}

	for _, tt := range tests {
		got := parsePubDate(tt.raw, now)
		if !got.Equal(tt.want) {
			t.Errorf("parsePubDate(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

package feeds

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"log/slog"

	"github.com/archyards/archyards/internal/config"
	"github.com/archyards/archyards/internal/models"
)

const (
	userAgent      = "Mozilla/5.0 (compatible; ArchyardsBot/1.0; +https://archyards.com/bot)"
	maxDescription = 1500
	maxTags        = 8
)

// RSSFetcher normalizes RSS 2.0 and Atom feeds into candidates.
type RSSFetcher struct {
	client     *http.Client
	logger     *slog.Logger
	maxEntries int
	now        func() time.Time
}

// NewRSSFetcher creates a fetcher with a per-request timeout and an upper
// bound on entries consumed per feed per run.
func NewRSSFetcher(timeout time.Duration, maxEntries int, logger *slog.Logger) *RSSFetcher {
	if maxEntries <= 0 {
		maxEntries = 20
	}
	return &RSSFetcher{
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Name returns the fetcher name.
func (f *RSSFetcher) Name() string {
	return "rss"
}

// rss represents the RSS 2.0 feed structure.
type rss struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title        string         `xml:"title"`
	Link         string         `xml:"link"`
	Description  string         `xml:"description"`
	PubDate      string         `xml:"pubDate"`
	GUID         string         `xml:"guid"`
	Categories   []string       `xml:"category"`
	CommentCount int            `xml:"http://purl.org/rss/1.0/modules/slash/ comments"`
	Media        []mediaContent `xml:"http://search.yahoo.com/mrss/ content"`
	Enclosures   []enclosure    `xml:"enclosure"`
}

type mediaContent struct {
	URL string `xml:"url,attr"`
}

type enclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

// atomFeed represents the Atom feed structure.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title      string         `xml:"title"`
	Links      []atomLink     `xml:"link"`
	Summary    string         `xml:"summary"`
	Content    string         `xml:"content"`
	Published  string         `xml:"published"`
	Updated    string         `xml:"updated"`
	ID         string         `xml:"id"`
	Categories []atomCategory `xml:"category"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// Fetch retrieves one source's feed and returns its normalized candidates.
func (f *RSSFetcher) Fetch(ctx context.Context, src config.Source) ([]models.Candidate, error) {
	body, err := f.download(ctx, src.FeedURL)
	if err != nil {
		return nil, NewSourceError(src.Name, err)
	}

	items, err := parseFeed(body)
	if err != nil {
		return nil, NewSourceError(src.Name, err)
	}

	if len(items) > f.maxEntries {
		items = items[:f.maxEntries]
	}

	candidates := make([]models.Candidate, 0, len(items))
	for _, item := range items {
		candidate, ok := f.normalize(src, item)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate)
	}

	f.logger.Info("normalized feed entries",
		"source", src.Name,
		"entries", len(items),
		"candidates", len(candidates))

	return candidates, nil
}

func (f *RSSFetcher) download(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return body, nil
}

// parseFeed tries RSS 2.0 first, then Atom. Atom entries are converted to
// rssItem for unified downstream handling. A feed that parses cleanly with
// zero entries is a valid, empty feed, not an error: the XMLName fields pin
// the root element, so a nil unmarshal error means the document really was
// that format.
func parseFeed(body []byte) ([]rssItem, error) {
	var doc rss
	rssErr := xml.Unmarshal(body, &doc)
	if rssErr == nil {
		return doc.Channel.Items, nil
	}

	var atom atomFeed
	atomErr := xml.Unmarshal(body, &atom)
	if atomErr == nil {
		items := make([]rssItem, 0, len(atom.Entries))
		for _, entry := range atom.Entries {
			published := entry.Published
			if published == "" {
				published = entry.Updated
			}
			description := entry.Summary
			if description == "" {
				description = entry.Content
			}
			tags := make([]string, 0, len(entry.Categories))
			for _, c := range entry.Categories {
				tags = append(tags, c.Term)
			}
			items = append(items, rssItem{
				Title:       entry.Title,
				Link:        atomEntryLink(entry),
				Description: description,
				PubDate:     published,
				GUID:        entry.ID,
				Categories:  tags,
			})
		}
		return items, nil
	}

	return nil, fmt.Errorf("failed to parse as RSS (%v) or Atom (%v)", rssErr, atomErr)
}

func atomEntryLink(entry atomEntry) string {
	for _, link := range entry.Links {
		if link.Rel == "alternate" || link.Rel == "" {
			return link.Href
		}
	}
	if len(entry.Links) > 0 {
		return entry.Links[0].Href
	}
	return ""
}

// normalize converts one feed item into a Candidate, defaulting the optional
// fields the source did not provide.
func (f *RSSFetcher) normalize(src config.Source, item rssItem) (models.Candidate, bool) {
	url := strings.TrimSpace(item.Link)
	if url == "" && item.GUID != "" {
		url = strings.TrimSpace(item.GUID)
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		f.logger.Warn("invalid or empty URL in feed item, skipping",
			"source", src.Name, "title", item.Title)
		return models.Candidate{}, false
	}

	title := strings.TrimSpace(stripHTML(item.Title))
	if title == "" {
		title = "Untitled"
	}

	description := truncate(strings.TrimSpace(stripHTML(item.Description)), maxDescription)

	publishedAt := parsePubDate(item.PubDate, f.now)
	age := f.now().Sub(publishedAt).Hours()
	if age < 0 {
		age = 0
	}

	comments := item.CommentCount
	if comments < 0 {
		comments = 0
	}

	tags := make([]string, 0, maxTags)
	for _, c := range item.Categories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		tags = append(tags, c)
		if len(tags) == maxTags {
			break
		}
	}

	return models.Candidate{
		ID:                  models.CandidateID(src.Name, url),
		SourceName:          src.Name,
		SourceLogo:          src.Logo,
		URL:                 url,
		ImageURL:            extractImage(item),
		OriginalTitle:       title,
		OriginalDescription: description,
		PublishedAt:         publishedAt,
		Category:            src.Category,
		Tags:                tags,
		AgeHours:            age,
		CommentCount:        comments,
		SocialShares:        0,
	}, true
}

// extractImage tries media:content, then image enclosures, then the first
// <img> inside the item description.
func extractImage(item rssItem) string {
	for _, m := range item.Media {
		if strings.HasPrefix(m.URL, "http") {
			return m.URL
		}
	}
	for _, enc := range item.Enclosures {
		if strings.Contains(enc.Type, "image") && enc.URL != "" {
			return enc.URL
		}
	}
	if match := imgSrcPattern.FindStringSubmatch(item.Description); len(match) > 1 {
		if strings.HasPrefix(match[1], "http") {
			return match[1]
		}
	}
	return ""
}

var (
	imgSrcPattern = regexp.MustCompile(`<img[^>]+src="([^"]+)"`)
	htmlTag       = regexp.MustCompile(`<[^>]*>`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// truncate caps s at limit bytes, backing off so a multi-byte rune is never
// split at the cut.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// stripHTML removes markup and collapses whitespace into single spaces.
func stripHTML(text string) string {
	text = htmlTag.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", `"`)
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	return whitespace.ReplaceAllString(text, " ")
}

// parsePubDate attempts common RSS and Atom date formats, falling back to the
// current time when none match.
func parsePubDate(dateStr string, now func() time.Time) time.Time {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return now()
	}

	formats := []string{
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		"Mon, 02 Jan 2006 15:04:05 -0700",
		"Mon, 02 Jan 2006 15:04:05 MST",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t
		}
	}

	if t, err := time.ParseInLocation("2006-01-02 15:04:05", dateStr, time.UTC); err == nil {
		return t
	}

	return now()
}

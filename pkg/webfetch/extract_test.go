package webfetch

import (
	"strings"
	"testing"
)

// articlePage has enough paragraph mass for the primary extractor.
const articlePage = `<!DOCTYPE html>
<html><head>
<title>Meditation and Focus</title>
<meta name="author" content="A. Researcher">
<meta property="article:published_time" content="2024-03-01">
</head><body>
<nav><a href="/">Home</a><a href="/about">About</a></nav>
<div class="article-content">
<p>Meditation practice has been studied extensively over the last decade, with researchers finding consistent improvements in sustained attention, working memory, and emotional regulation across age groups.</p>
<p>A second line of work examines how brief daily sessions compare with intensive retreats, finding that consistency matters more than duration, and that benefits accrue within weeks rather than months.</p>
<p>Finally, neuroimaging studies show structural changes in regions associated with attention, suggesting the behavioural improvements have a physiological basis that persists beyond the practice period.</p>
</div>
<footer>Copyright</footer>
</body></html>`

func TestExtractPrimary(t *testing.T) {
	c := Extract(articlePage, "https://example.com/article")

	if c.Method != MethodPrimary {
		t.Fatalf("Method = %q, want %q", c.Method, MethodPrimary)
	}
	if c.Title != "Meditation and Focus" {
		t.Errorf("Title = %q, want page title", c.Title)
	}
	if c.Author != "A. Researcher" {
		t.Errorf("Author = %q, want meta author", c.Author)
	}
	if c.Date != "2024-03-01" {
		t.Errorf("Date = %q, want published_time", c.Date)
	}
	if !strings.Contains(c.Text, "sustained attention") {
		t.Errorf("Text missing article body: %q", c.Text)
	}
	if strings.Contains(c.Text, "Copyright") || strings.Contains(c.Text, "About") {
		t.Errorf("Text contains page chrome: %q", c.Text)
	}
	if c.WordCount == 0 {
		t.Error("WordCount = 0, want > 0")
	}
}

func TestExtractStructuralFallback(t *testing.T) {
	// Too little paragraph mass for the primary tier.
	page := `<html><head><title>Short</title></head><body>
	<script>var x = 1;</script>
	<main><p>Tiny note.</p></main>
	</body></html>`

	c := Extract(page, "https://example.com/short")
	if c.Method != MethodStructural {
		t.Fatalf("Method = %q, want %q", c.Method, MethodStructural)
	}
	if !strings.Contains(c.Text, "Tiny note.") {
		t.Errorf("Text = %q, want main content", c.Text)
	}
	if strings.Contains(c.Text, "var x") {
		t.Errorf("Text contains script content: %q", c.Text)
	}
}

func TestExtractTitleFallsBackToH1(t *testing.T) {
	page := `<html><body><h1>Heading Title</h1><p>Body text here.</p></body></html>`
	c := Extract(page, "https://example.com/x")
	if c.Title != "Heading Title" {
		t.Errorf("Title = %q, want h1 fallback", c.Title)
	}
}

func TestExtractMediaBoundsAndResolution(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 8; i++ {
		sb.WriteString(`<img src="/img/pic.png" alt="diagram">`)
	}
	sb.WriteString(`<video src="/clips/demo.mp4" poster="/clips/thumb.jpg" title="Demo"></video>`)
	sb.WriteString(`<iframe src="https://www.youtube.com/embed/abc123" title="Talk"></iframe>`)
	sb.WriteString(`<iframe src="https://example.com/other"></iframe>`)
	sb.WriteString("<p>Some body text for the page.</p></body></html>")

	c := Extract(sb.String(), "https://example.com/page")

	var images, videos, youtube int
	for _, m := range c.Media {
		switch m.Type {
		case "image":
			images++
			if m.URL != "https://example.com/img/pic.png" {
				t.Errorf("image URL = %q, want resolved absolute URL", m.URL)
			}
		case "video":
			videos++
			if m.Thumbnail != "https://example.com/clips/thumb.jpg" {
				t.Errorf("video Thumbnail = %q, want resolved poster", m.Thumbnail)
			}
		case "youtube":
			youtube++
			if m.URL != "https://www.youtube.com/watch?v=abc123" {
				t.Errorf("youtube URL = %q, want embed rewritten to watch form", m.URL)
			}
		}
	}
	if images != 5 {
		t.Errorf("images = %d, want capped at 5", images)
	}
	if videos != 1 || youtube != 1 {
		t.Errorf("videos = %d youtube = %d, want 1 and 1", videos, youtube)
	}
}

package webfetch

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// minParagraphLen is the shortest paragraph that contributes to candidate
// scoring.
const minParagraphLen = 25

// minPrimaryTextLen is the shortest extraction the primary tier accepts
// before handing over to the structural fallback.
const minPrimaryTextLen = 250

var (
	positiveHint = regexp.MustCompile(`(?i)article|body|content|entry|main|page|post|text|blog|story`)
	negativeHint = regexp.MustCompile(`(?i)combx|comment|contact|foot|masthead|media|meta|outbrain|promo|related|scroll|share|shoutbox|sidebar|sponsor|widget|ad-break`)
)

// Extract converts raw HTML into a [Content]. It tries the readability-style
// primary extractor first and falls back to the structural walk when the
// primary yields too little text.
func Extract(htmlText, pageURL string) Content {
	doc, err := html.Parse(strings.NewReader(htmlText))
	if err != nil {
		return Content{URL: pageURL, Method: MethodFailed, Error: "parse: " + err.Error()}
	}

	media := extractMedia(doc, pageURL)
	title := extractTitle(doc)
	author, date := extractAuthorDate(doc)

	if text, ok := extractPrimary(doc); ok {
		return Content{
			URL:       pageURL,
			Title:     title,
			Text:      text,
			Media:     media,
			WordCount: len(strings.Fields(text)),
			Method:    MethodPrimary,
			Author:    author,
			Date:      date,
		}
	}

	stripChrome(doc)
	text := extractStructural(doc)
	return Content{
		URL:       pageURL,
		Title:     title,
		Text:      text,
		Media:     media,
		WordCount: len(strings.Fields(text)),
		Method:    MethodStructural,
		Author:    author,
		Date:      date,
	}
}

// ── primary tier ──

// extractPrimary scores candidate containers by the paragraph mass they hold,
// discounted by link density, and returns the cleaned text of the winner.
func extractPrimary(doc *html.Node) (string, bool) {
	scores := make(map[*html.Node]float64)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.P, atom.Pre, atom.Td:
				text := strings.TrimSpace(innerText(n))
				if len(text) >= minParagraphLen {
					points := 1.0 + float64(strings.Count(text, ","))
					if extra := float64(len(text) / 100); extra > 3 {
						points += 3
					} else {
						points += extra
					}
					if p := n.Parent; p != nil {
						if _, ok := scores[p]; !ok {
							scores[p] = classWeight(p)
						}
						scores[p] += points
						if gp := p.Parent; gp != nil {
							if _, ok := scores[gp]; !ok {
								scores[gp] = classWeight(gp)
							}
							scores[gp] += points / 2
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var best *html.Node
	var bestScore float64
	for node, score := range scores {
		adjusted := score * (1 - linkDensity(node))
		if best == nil || adjusted > bestScore {
			best, bestScore = node, adjusted
		}
	}
	if best == nil || bestScore <= 0 {
		return "", false
	}

	text := cleanText(paragraphText(best))
	if len(text) < minPrimaryTextLen {
		return "", false
	}
	return text, true
}

// classWeight biases a candidate by its id/class naming.
func classWeight(n *html.Node) float64 {
	var weight float64
	for _, attr := range n.Attr {
		if attr.Key != "id" && attr.Key != "class" {
			continue
		}
		if negativeHint.MatchString(attr.Val) {
			weight -= 25
		}
		if positiveHint.MatchString(attr.Val) {
			weight += 25
		}
	}
	switch n.DataAtom {
	case atom.Article, atom.Main:
		weight += 25
	case atom.Div:
		weight += 5
	case atom.Footer, atom.Aside, atom.Nav:
		weight -= 25
	}
	return weight
}

// linkDensity is the share of a node's text that lives inside anchors.
func linkDensity(n *html.Node) float64 {
	total := len(innerText(n))
	if total == 0 {
		return 0
	}
	var linked int
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			linked += len(innerText(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return float64(linked) / float64(total)
}

// paragraphText joins the node's paragraph-level descendants. When the node
// has no <p> children its full inner text is used instead.
func paragraphText(n *html.Node) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.P {
			if t := strings.TrimSpace(innerText(n)); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	if len(parts) == 0 {
		return innerText(n)
	}
	return strings.Join(parts, "\n\n")
}

// ── structural tier ──

// strippedTags are removed from the tree before the structural walk.
var strippedTags = map[atom.Atom]struct{}{
	atom.Script: {}, atom.Style: {}, atom.Nav: {},
	atom.Header: {}, atom.Footer: {}, atom.Aside: {},
}

// stripChrome removes script, style, and page-chrome subtrees in place.
func stripChrome(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode {
			if _, ok := strippedTags[c.DataAtom]; ok {
				n.RemoveChild(c)
				continue
			}
		}
		stripChrome(c)
	}
}

// extractStructural picks the most likely content subtree: <main>, <article>,
// or #content, then concatenated paragraphs, then the whole body text.
func extractStructural(doc *html.Node) string {
	if main := findFirst(doc, func(n *html.Node) bool {
		if n.DataAtom == atom.Main || n.DataAtom == atom.Article {
			return true
		}
		return n.DataAtom == atom.Div && attrValue(n, "id") == "content"
	}); main != nil {
		if text := cleanText(innerText(main)); text != "" {
			return text
		}
	}

	var paragraphs []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.P {
			if t := strings.TrimSpace(innerText(n)); t != "" {
				paragraphs = append(paragraphs, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if len(paragraphs) > 0 {
		return cleanText(strings.Join(paragraphs, "\n\n"))
	}

	if body := findFirst(doc, func(n *html.Node) bool { return n.DataAtom == atom.Body }); body != nil {
		return cleanText(innerText(body))
	}
	return cleanText(innerText(doc))
}

// ── page metadata ──

func extractTitle(doc *html.Node) string {
	if t := findFirst(doc, func(n *html.Node) bool { return n.DataAtom == atom.Title }); t != nil {
		if title := strings.TrimSpace(innerText(t)); title != "" {
			return title
		}
	}
	if h1 := findFirst(doc, func(n *html.Node) bool { return n.DataAtom == atom.H1 }); h1 != nil {
		return strings.TrimSpace(innerText(h1))
	}
	return ""
}

func extractAuthorDate(doc *html.Node) (author, date string) {
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Meta:
				name := attrValue(n, "name")
				property := attrValue(n, "property")
				content := attrValue(n, "content")
				if author == "" && name == "author" {
					author = content
				}
				if date == "" && (property == "article:published_time" || name == "date") {
					date = content
				}
			case atom.Time:
				if date == "" {
					date = attrValue(n, "datetime")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return author, date
}

// ── helpers ──

func innerText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// cleanText trims every line, drops empties, and joins with blank lines.
func cleanText(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n\n")
}

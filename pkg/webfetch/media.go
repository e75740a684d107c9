package webfetch

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Media caps per page.
const (
	maxImages      = 5
	maxVideos      = 3
	maxVideoEmbeds = 3
)

// extractMedia collects bounded sets of images, videos, and embedded players
// from the page, resolving relative URLs against pageURL.
func extractMedia(doc *html.Node, pageURL string) []Media {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	var media []Media
	images, videos, embeds := 0, 0, 0

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Img:
				if images < maxImages {
					if src := resolveURL(base, attrValue(n, "src")); src != "" {
						media = append(media, Media{
							URL:         src,
							Type:        "image",
							Title:       attrValue(n, "alt"),
							Description: attrValue(n, "title"),
						})
						images++
					}
				}
			case atom.Video:
				if videos < maxVideos {
					src := attrValue(n, "src")
					if src == "" {
						if source := findFirst(n, func(c *html.Node) bool { return c.DataAtom == atom.Source }); source != nil {
							src = attrValue(source, "src")
						}
					}
					if src = resolveURL(base, src); src != "" {
						media = append(media, Media{
							URL:       src,
							Type:      "video",
							Title:     attrValue(n, "title"),
							Thumbnail: resolveURL(base, attrValue(n, "poster")),
						})
						videos++
					}
				}
			case atom.Iframe:
				if embeds < maxVideoEmbeds {
					src := attrValue(n, "src")
					if strings.Contains(src, "youtube.com") || strings.Contains(src, "youtu.be") {
						title := attrValue(n, "title")
						if title == "" {
							title = "YouTube Video"
						}
						media = append(media, Media{
							URL:   strings.Replace(src, "/embed/", "/watch?v=", 1),
							Type:  "youtube",
							Title: title,
						})
						embeds++
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return media
}

// resolveURL makes raw absolute against base. Already-absolute URLs pass
// through; unparsable ones are dropped.
func resolveURL(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if base == nil {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

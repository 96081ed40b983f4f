package crawler

import (
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Elements whose own text nodes make up a page's content.
var textElements = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"p": true, "span": true, "div": true, "li": true, "article": true, "main": true,
}

// Nothing below these elements is considered content.
var excludedElements = map[string]bool{
	"header": true, "footer": true, "input": true, "textarea": true, "button": true,
}

// Links to these file types are never followed.
var deniedExtensions = map[string]bool{
	"pdf": true, "png": true, "jpg": true, "jpeg": true, "gif": true, "zip": true,
	"doc": true, "docx": true, "ppt": true, "pptx": true, "xls": true, "xlsx": true,
	"mp3": true, "mp4": true, "avi": true, "mov": true,
}

// ExtractText collects the direct text children of content elements in
// document order, trimmed and with line breaks removed, joined by spaces.
func ExtractText(doc *goquery.Document) string {
	var parts []string
	var walk func(n *html.Node, excluded bool)
	walk = func(n *html.Node, excluded bool) {
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			switch ch.Type {
			case html.TextNode:
				if excluded || n.Type != html.ElementNode || !textElements[n.Data] {
					continue
				}
				if t := strings.ReplaceAll(strings.TrimSpace(ch.Data), "\n", ""); t != "" {
					parts = append(parts, t)
				}
			case html.ElementNode:
				walk(ch, excluded || excludedElements[ch.Data])
			}
		}
	}
	for _, n := range doc.Nodes {
		walk(n, false)
	}
	return strings.Join(parts, " ")
}

// ExtractLinks returns the unique absolute http(s) links of the page that
// stay on host and do not point at binary files. Fragments are dropped.
func ExtractLinks(doc *goquery.Document, base *url.URL, host string) []string {
	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := base.Parse(strings.TrimSpace(href))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host != host {
			return
		}
		u.Fragment = ""
		if u.Path == "" {
			u.Path = "/"
		}
		if deniedExtensions[strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")] {
			return
		}
		if abs := u.String(); !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})
	return links
}

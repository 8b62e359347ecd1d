package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsSpace(c) {
			newStr.WriteRune(' ')
			continue
		}
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

func NormalizeText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	s = innerWhitespace.ReplaceAllString(s, " ")
	return s
}

// markup that never carries article text
var boilerplateSelectors = []string{
	"script", "style", "noscript", "iframe", "svg",
	"nav", "header", "footer", "aside", "form", "button",
}

// class/id fragments that mark ad or chrome containers
var adFragments = []string{
	"advert", "banner", "sponsor", "promo", "sidebar",
	"cookie", "newsletter", "subscribe", "related", "comment",
}

// StripBoilerplate removes non-content markup in place: scripts, nav,
// ads and other page chrome. The document is modified.
func StripBoilerplate(doc *goquery.Document) {
	for _, sel := range boilerplateSelectors {
		doc.Find(sel).Remove()
	}
	doc.Find("div, section, ul").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		marker := strings.ToLower(class + " " + id)
		for _, frag := range adFragments {
			if strings.Contains(marker, frag) {
				s.Remove()
				return
			}
		}
	})
}

// selectors tried in order when locating the main content block
var mainContentSelectors = []string{
	"main", "article", `[role="main"]`, ".content", ".post-content",
}

// MainText returns the cleaned text of the page's main content block,
// falling back to the whole body when no block matches.
func MainText(doc *goquery.Document) string {
	for _, sel := range mainContentSelectors {
		block := doc.Find(sel).First()
		if block.Length() > 0 {
			return NormalizeText(block.Text())
		}
	}
	return NormalizeText(doc.Find("body").Text())
}

type Image struct {
	Src   string `json:"src"`
	Alt   string `json:"alt,omitempty"`
	Title string `json:"title,omitempty"`
}

type Metadata struct {
	Title         string
	Description   string
	Author        string
	PublishDate   time.Time
	FeaturedImage string
	Images        []Image
}

var publishDateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parsePublishDate(raw string) time.Time {
	for _, format := range publishDateFormats {
		t, err := time.Parse(format, raw)
		if err == nil {
			return t
		}
	}
	return time.Time{}
}

// ExtractMetadata pulls document metadata out of head tags. It should be
// called before StripBoilerplate since og/meta tags live in stripped regions
// of some pages.
func ExtractMetadata(doc *goquery.Document) Metadata {
	meta := Metadata{}

	meta.Title = NormalizeText(doc.Find("title").First().Text())
	if ogTitle, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && ogTitle != "" {
		meta.Title = NormalizeText(ogTitle)
	}

	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		meta.Description = NormalizeText(desc)
	}
	if author, ok := doc.Find(`meta[name="author"]`).Attr("content"); ok {
		meta.Author = NormalizeText(author)
	}
	if published, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
		meta.PublishDate = parsePublishDate(strings.TrimSpace(published))
	}
	if ogImage, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		meta.FeaturedImage = strings.TrimSpace(ogImage)
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || src == "" {
			return
		}
		meta.Images = append(meta.Images, Image{
			Src:   src,
			Alt:   s.AttrOr("alt", ""),
			Title: s.AttrOr("title", ""),
		})
	})

	return meta
}

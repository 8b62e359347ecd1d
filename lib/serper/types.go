package serper

import "fmt"

type SearchType string

const (
	TypeWeb    SearchType = "web"
	TypeNews   SearchType = "news"
	TypeImages SearchType = "images"
	TypeVideos SearchType = "videos"
)

func ParseSearchType(s string) (SearchType, error) {
	switch SearchType(s) {
	case TypeWeb, TypeNews, TypeImages, TypeVideos:
		return SearchType(s), nil
	}
	return "", fmt.Errorf("unknown search type %q (valid: web, news, images, videos)", s)
}

// endpoint path for each search type
func (t SearchType) path() string {
	if t == TypeWeb {
		return "/search"
	}
	return "/" + string(t)
}

// ScrapesContent reports whether hits of this type point at pages worth
// fetching. Image and video hits are returned as-is.
func (t SearchType) ScrapesContent() bool {
	return t == TypeWeb || t == TypeNews
}

type Sitelink struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Hit is one raw entry from a results page.
type Hit struct {
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	Snippet   string     `json:"snippet,omitempty"`
	Position  int        `json:"position"`
	Source    string     `json:"source,omitempty"`
	ImageURL  string     `json:"image_url,omitempty"`
	Date      string     `json:"date,omitempty"`
	Sitelinks []Sitelink `json:"sitelinks,omitempty"`
}

type Query struct {
	Text       string
	Type       SearchType
	MaxResults int
	// gl parameter, e.g. "us"
	Country string
	// hl parameter, e.g. "en"
	Language string
	Page     int
}

// wire format of the serper request body
type requestBody struct {
	Q    string `json:"q"`
	Num  int    `json:"num,omitempty"`
	Gl   string `json:"gl,omitempty"`
	Hl   string `json:"hl,omitempty"`
	Page int    `json:"page,omitempty"`
}

type rawEntry struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
	Source   string `json:"source"`
	// web results carry the display domain here
	DisplayedLink string     `json:"displayedLink"`
	ImageURL      string     `json:"imageUrl"`
	Date          string     `json:"date"`
	Sitelinks     []Sitelink `json:"sitelinks"`
}

type rawResponse struct {
	Organic []rawEntry `json:"organic"`
	News    []rawEntry `json:"news"`
	Images  []rawEntry `json:"images"`
	Videos  []rawEntry `json:"videos"`
	Message string     `json:"message"`
}

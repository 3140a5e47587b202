package content

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/portfolio/internal/model"
)

// FeedConfig はRSSフィードのチャンネル情報。
type FeedConfig struct {
	Title       string
	Description string
	// BaseURL はサイトの公開URL。記事URLは BaseURL + "/blog/" + slug となる。
	BaseURL string
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	GUID        rssGUID  `xml:"guid"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	Categories  []string `xml:"category"`
}

type rssGUID struct {
	Value       string `xml:",chardata"`
	IsPermaLink bool   `xml:"isPermaLink,attr"`
}

// PostURL は記事の公開URLを返す。
func PostURL(baseURL, slug string) string {
	return strings.TrimRight(baseURL, "/") + "/blog/" + slug
}

// BuildFeed はブログ記事一覧からRSS 2.0のXMLを生成する。
// 記事は渡された順序のまま出力する。
func BuildFeed(cfg FeedConfig, posts []model.BlogPost) ([]byte, error) {
	link := strings.TrimRight(cfg.BaseURL, "/")
	ch := rssChannel{
		Title:       cfg.Title,
		Link:        link + "/blog",
		Description: cfg.Description,
		Items:       make([]rssItem, 0, len(posts)),
	}

	var latest time.Time
	for _, p := range posts {
		u := PostURL(cfg.BaseURL, p.Slug)
		ch.Items = append(ch.Items, rssItem{
			Title:       p.Title,
			Link:        u,
			GUID:        rssGUID{Value: u, IsPermaLink: true},
			Description: p.Excerpt,
			PubDate:     p.PublishedAt.UTC().Format(time.RFC1123Z),
			Categories:  p.Tags,
		})
		if p.PublishedAt.After(latest) {
			latest = p.PublishedAt
		}
	}
	if !latest.IsZero() {
		ch.LastBuildDate = latest.UTC().Format(time.RFC1123Z)
	}

	body, err := xml.MarshalIndent(rssDocument{Version: "2.0", Channel: ch}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode RSS feed: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

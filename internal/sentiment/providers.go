package sentiment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/seenimoa/tradecore/internal/infra"
	"github.com/seenimoa/tradecore/pkg/models"
)

// Provider fetches articles from one sentiment source.
type Provider interface {
	// Name returns the provider name for logging and payloads.
	Name() string
	// Kind is "news" or "social", driving the blend weights.
	Kind() string
	// Fetch returns recent articles. Missing sources should error, not
	// return empty silently.
	Fetch(ctx context.Context) ([]models.NewsArticle, error)
}

// ------------------------------------------------------------------
// RSS news provider
// ------------------------------------------------------------------

// FeedSource is one Indian financial news RSS feed.
type FeedSource struct {
	Name   string
	RSSURL string
}

// DefaultFeedSources lists the configured market news feeds.
var DefaultFeedSources = []FeedSource{
	{Name: "Moneycontrol", RSSURL: "https://www.moneycontrol.com/rss/marketreports.xml"},
	{Name: "Economic Times Markets", RSSURL: "https://economictimes.indiatimes.com/markets/rssfeeds/1977021501.cms"},
	{Name: "LiveMint Markets", RSSURL: "https://www.livemint.com/rss/markets"},
	{Name: "Business Standard Markets", RSSURL: "https://www.business-standard.com/rss/markets-106.rss"},
}

// NewsFeedProvider pulls headlines from RSS feeds.
type NewsFeedProvider struct {
	sources []FeedSource
	parser  *gofeed.Parser
	limiter *infra.RateLimiter
}

// NewNewsFeedProvider creates the RSS provider; nil sources use the
// defaults.
func NewNewsFeedProvider(sources []FeedSource) *NewsFeedProvider {
	if len(sources) == 0 {
		sources = DefaultFeedSources
	}
	return &NewsFeedProvider{
		sources: sources,
		parser:  gofeed.NewParser(),
		limiter: infra.NewRateLimiter(2, time.Second),
	}
}

func (p *NewsFeedProvider) Name() string { return "rss-news" }
func (p *NewsFeedProvider) Kind() string { return "news" }

// Fetch parses every configured feed. Individual feed failures are
// skipped; the call errors only when no feed produced articles.
func (p *NewsFeedProvider) Fetch(ctx context.Context) ([]models.NewsArticle, error) {
	var all []models.NewsArticle
	var lastErr error
	for _, src := range p.sources {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		feed, err := p.parser.ParseURLWithContext(src.RSSURL, ctx)
		if err != nil {
			lastErr = fmt.Errorf("parse RSS %s: %w", src.Name, err)
			continue
		}
		for _, item := range feed.Items {
			a := models.NewsArticle{
				Title:   item.Title,
				URL:     item.Link,
				Source:  src.Name,
				Summary: cleanHTML(item.Description),
			}
			if item.PublishedParsed != nil {
				a.PublishedAt = *item.PublishedParsed
			}
			all = append(all, a)
		}
	}
	if len(all) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return all, nil
}

// ------------------------------------------------------------------
// Scraped social/pulse provider
// ------------------------------------------------------------------

// PulsePageProvider scrapes headline text from a market pulse page and
// keeps entries matching the configured keywords. Used as the social
// leg when no social API key is configured.
type PulsePageProvider struct {
	url      string
	selector string
	keywords []string
	client   *http.Client
}

// NewPulsePageProvider creates the scraping provider.
func NewPulsePageProvider(url, selector string, keywords []string) *PulsePageProvider {
	if url == "" {
		url = "https://pulse.zerodha.com/"
	}
	if selector == "" {
		selector = "li.box h2.title a"
	}
	if len(keywords) == 0 {
		keywords = []string{"nifty", "sensex", "nse"}
	}
	return &PulsePageProvider{
		url:      url,
		selector: selector,
		keywords: keywords,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *PulsePageProvider) Name() string { return "pulse-scrape" }
func (p *PulsePageProvider) Kind() string { return "social" }

// Fetch downloads the page and extracts matching headlines.
func (p *PulsePageProvider) Fetch(ctx context.Context) ([]models.NewsArticle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; tradecore/1.0)")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pulse page returned HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var articles []models.NewsArticle
	doc.Find(p.selector).Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Text())
		if title == "" || !matchesAny(title, p.keywords) {
			return
		}
		href, _ := sel.Attr("href")
		articles = append(articles, models.NewsArticle{
			Source:      p.Name(),
			Title:       title,
			URL:         href,
			PublishedAt: now,
		})
	})
	return articles, nil
}

// ------------------------------------------------------------------
// Helpers
// ------------------------------------------------------------------

// cleanHTML strips HTML tags from a string using goquery.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}

// matchesAny checks if text contains any of the keywords.
func matchesAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Package feed fetches dealer inventory feeds. A feed is a JSON array of
// vehicle listings at a fixed URL; per-platform scraping lives outside this
// system, so one generic wire format covers every configured dealer.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/silverfoxmkt/lotflow/engine/domain"
)

// Source is one configured dealer feed.
type Source struct {
	Dealership string `json:"dealership"`
	URL        string `json:"url"`
}

// feedItem is the wire format of one listing.
type feedItem struct {
	VIN       string  `json:"vin"`
	Condition string  `json:"condition"`
	Year      int     `json:"year"`
	Make      string  `json:"make"`
	Model     string  `json:"model"`
	Price     float64 `json:"price"`
	URL       string  `json:"url"`
}

// Client fetches feeds with a shared rate limit across sources so a poll
// cycle over many dealers stays polite.
type Client struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	now         func() time.Time // for testing
}

// NewClient creates a feed client.
func NewClient() *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		now:         time.Now,
	}
}

// Fetch pulls one source's feed and maps it into observations. Listings
// without a VIN stay in the batch; the decision engine counts them as
// invalid, which keeps feed quality visible in run summaries.
func (c *Client) Fetch(ctx context.Context, src Source) ([]domain.VehicleObservation, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", src.Dealership, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s: status %d", src.Dealership, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", src.Dealership, err)
	}

	var items []feedItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("feed %s: %w", src.Dealership, err)
	}

	scrapedAt := c.now()
	observations := make([]domain.VehicleObservation, len(items))
	for i, item := range items {
		observations[i] = domain.VehicleObservation{
			VIN:          item.VIN,
			Dealership:   src.Dealership,
			RawCondition: item.Condition,
			Year:         item.Year,
			Make:         item.Make,
			Model:        item.Model,
			Price:        item.Price,
			URL:          item.URL,
			ScrapedAt:    scrapedAt,
		}
	}
	return observations, nil
}

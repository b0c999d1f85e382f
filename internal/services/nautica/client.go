package nautica

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"packsync/internal/catalog"
	"packsync/internal/config"
	"packsync/internal/logging"
	"packsync/internal/services"
)

const uploadedAtLayout = "2006-01-02 15:04:05"

// HTTPDoer describes the HTTP client used by the catalog client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client lists songs from a Nautica server.
type Client struct {
	baseURL   *url.URL
	userAgent string
	pageLimit int
	client    HTTPDoer
	logger    *slog.Logger
}

// NewConfiguredClient returns a client for the configured catalog.
func NewConfiguredClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "configure", "config is nil", nil)
	}
	httpClient := &http.Client{Timeout: cfg.CatalogTimeout()}
	return New(cfg.Catalog.BaseURL, cfg.Catalog.UserAgent, cfg.Catalog.PageLimit, httpClient, logger)
}

// New constructs a client. pageLimit of zero follows every page.
func New(baseURL, userAgent string, pageLimit int, client HTTPDoer, logger *slog.Logger) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || parsed.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "configure", fmt.Sprintf("invalid base url %q", baseURL), err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL:   parsed,
		userAgent: strings.TrimSpace(userAgent),
		pageLimit: pageLimit,
		client:    client,
		logger:    logging.NewComponentLogger(logger, "catalog"),
	}, nil
}

type song struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title"`
	Artist     string     `json:"artist"`
	UploadedAt uploadedAt `json:"uploaded_at"`
}

type songsResponse struct {
	Data  []song `json:"data"`
	Links struct {
		Next *string `json:"next"`
	} `json:"links"`
}

// uploadedAt parses the server's "YYYY-MM-DD HH:MM:SS" UTC timestamps.
type uploadedAt time.Time

func (u *uploadedAt) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("uploaded_at: %w", err)
	}
	parsed, err := time.ParseInLocation(uploadedAtLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return fmt.Errorf("uploaded_at: %w", err)
	}
	*u = uploadedAt(parsed)
	return nil
}

// ListItems walks the paginated song listing and returns every item.
func (c *Client) ListItems(ctx context.Context) ([]catalog.Item, error) {
	next := c.baseURL.JoinPath("app", "songs")
	query := next.Query()
	query.Set("sort", "uploaded")
	next.RawQuery = query.Encode()

	var items []catalog.Item
	seen := make(map[string]struct{})
	for page := 1; next != nil; page++ {
		if c.pageLimit > 0 && page > c.pageLimit {
			break
		}
		pageURL := next.String()
		if _, ok := seen[pageURL]; ok {
			logging.WarnWithContext(c.logger, "catalog pagination loops back; stopping", "catalog_pagination_loop",
				logging.String("url", pageURL),
				logging.String(logging.FieldImpact, "later pages are not listed"),
				logging.String(logging.FieldErrorHint, "check the catalog server's links.next values"),
			)
			break
		}
		seen[pageURL] = struct{}{}

		resp, err := c.fetchPage(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		for _, s := range resp.Data {
			items = append(items, c.toItem(s))
		}
		c.logger.Debug("catalog page fetched", logging.Int("page", page), logging.Int("songs", len(resp.Data)))

		next = nil
		if resp.Links.Next != nil && strings.TrimSpace(*resp.Links.Next) != "" {
			ref, err := url.Parse(strings.TrimSpace(*resp.Links.Next))
			if err != nil {
				return nil, services.Wrap(services.ErrCatalogUnavailable, "catalog", "paginate", "invalid next link", err)
			}
			next = c.baseURL.ResolveReference(ref)
		}
	}
	c.logger.Info("catalog listed", logging.Int("items", len(items)))
	return items, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (songsResponse, error) {
	var out songsResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return out, services.Wrap(services.ErrCatalogUnavailable, "catalog", "build request", pageURL, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, services.Wrap(services.ErrCancelled, "catalog", "list", "request cancelled", ctxErr)
		}
		return out, services.Wrap(services.ErrCatalogUnavailable, "catalog", "list", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return out, services.Wrap(services.ErrCatalogUnavailable, "catalog", "list",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, services.Wrap(services.ErrCatalogUnavailable, "catalog", "decode", pageURL, err)
	}
	return out, nil
}

func (c *Client) toItem(s song) catalog.Item {
	name := strings.TrimSpace(s.Title)
	if artist := strings.TrimSpace(s.Artist); artist != "" && name != "" {
		name = artist + " - " + name
	} else if artist != "" {
		name = artist
	}
	return catalog.Item{
		ID:          s.ID,
		UpdatedAt:   time.Time(s.UploadedAt),
		DownloadURL: c.baseURL.JoinPath("songs", s.ID, "download").String(),
		DisplayName: name,
	}
}

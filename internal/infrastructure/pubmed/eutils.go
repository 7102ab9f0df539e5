package pubmed

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"EBMS/internal/domain"
	"EBMS/internal/ports"
)

const (
	// DefaultBaseURL is NCBI's E-utilities endpoint.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	searchBatchSize = 1000
	fetchBatchSize  = 100
	searchMax       = 5000
)

var articleSetTag = []byte("<PubmedArticleSet>")

// ClientConfig tunes the E-utilities client. Zero values pick NCBI's published limits.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	Tool              string
	Email             string
	RequestsPerSecond float64
	MaxTries          int
	InitialBackoff    time.Duration
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client fetches PubMed XML and revision information from NLM.
type Client struct {
	baseURL        string
	apiKey         string
	tool           string
	email          string
	maxTries       int
	initialBackoff time.Duration
	limiter        *rate.Limiter
	http           *http.Client
	logger         *slog.Logger
}

var _ ports.PubmedSource = (*Client)(nil)
var _ ports.ChangeFinder = (*Client)(nil)

// NewClient creates a reusable E-utilities client.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		tool:           cfg.Tool,
		email:          cfg.Email,
		maxTries:       cfg.MaxTries,
		initialBackoff: cfg.InitialBackoff,
		http:           cfg.HTTPClient,
		logger:         cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.maxTries <= 0 {
		c.maxTries = 10
	}
	if c.initialBackoff <= 0 {
		c.initialBackoff = 500 * time.Millisecond
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 2 * time.Minute}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		// NCBI allows three requests a second without a key and ten with one.
		rps = 3
		if c.apiKey != "" {
			rps = 10
		}
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	return c
}

// Name identifies the strategy inside the source registry.
func (c *Client) Name() string {
	return "eutils"
}

// Fetch retrieves PubmedArticle records in batches. Ids NLM does not know are
// silently absent from the result.
func (c *Client) Fetch(ctx context.Context, pmids []string) ([]domain.PubmedRecord, error) {
	var records []domain.PubmedRecord
	for start := 0; start < len(pmids); start += fetchBatchSize {
		end := min(start+fetchBatchSize, len(pmids))
		form := url.Values{}
		form.Set("db", "pubmed")
		form.Set("retmode", "xml")
		form.Set("id", strings.Join(pmids[start:end], ","))

		body, err := c.post(ctx, "efetch.fcgi", form, func(body []byte) error {
			if !bytes.Contains(body, articleSetTag) {
				return errors.New("response has no PubmedArticleSet")
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("efetch batch at %d: %w", start, err)
		}
		batch, err := ParseArticleSet(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("efetch batch at %d: %w", start, err)
		}
		records = append(records, batch...)
		c.logger.Debug("fetched pubmed batch", "requested", end-start, "received", len(batch))
	}
	return records, nil
}

type searchResult struct {
	XMLName xml.Name `xml:"eSearchResult"`
	IDs     []string `xml:"IdList>Id"`
	Error   string   `xml:"ERROR"`
}

// RecentlyModified returns the ids NLM reports as modified in the last days days.
func (c *Client) RecentlyModified(ctx context.Context, pmids []string, days int) ([]string, error) {
	var modified []string
	for start := 0; start < len(pmids); start += searchBatchSize {
		end := min(start+searchBatchSize, len(pmids))
		terms := make([]string, 0, end-start)
		for _, pmid := range pmids[start:end] {
			terms = append(terms, pmid+"[pmid]")
		}
		form := url.Values{}
		form.Set("db", "pubmed")
		form.Set("retmax", fmt.Sprint(searchMax))
		form.Set("term", fmt.Sprintf("(%s) AND \"last %d days\"[mdat]", strings.Join(terms, " OR "), days))

		body, err := c.post(ctx, "esearch.fcgi", form, nil)
		if err != nil {
			return nil, fmt.Errorf("esearch batch at %d: %w", start, err)
		}
		var result searchResult
		if err := xml.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("decode esearch batch at %d: %w", start, err)
		}
		if result.Error != "" {
			return nil, fmt.Errorf("esearch batch at %d: %s", start, result.Error)
		}
		for _, id := range result.IDs {
			modified = append(modified, strings.TrimSpace(id))
		}
	}
	c.logger.Info("searched for modified articles", "checked", len(pmids), "modified", len(modified), "days", days)
	return modified, nil
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values, check func([]byte) error) ([]byte, error) {
	if c.apiKey != "" {
		form.Set("api_key", c.apiKey)
	}
	if c.tool != "" {
		form.Set("tool", c.tool)
	}
	if c.email != "" {
		form.Set("email", c.email)
	}
	payload := form.Encode()
	target := c.baseURL + "/" + endpoint

	var body []byte
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("new request: %w", err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", "EBMS/1.0")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		data, err := io.ReadAll(resp.Body)
		closeErr := resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if closeErr != nil {
			return fmt.Errorf("close response body: %w", closeErr)
		}
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("unexpected status %s", resp.Status)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}
		if check != nil {
			if err := check(data); err != nil {
				return err
			}
		}
		body = data
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = time.Minute
	policy.MaxElapsedTime = 0
	retries := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxTries-1)), ctx)

	err := backoff.RetryNotify(op, retries, func(err error, wait time.Duration) {
		c.logger.Warn("retrying NCBI request", "endpoint", endpoint, "wait", wait, "error", err)
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

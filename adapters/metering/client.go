// Package metering queries the usage cost API for unit rates.
package metering

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"usage-cost/core/types"
	"usage-cost/internal/errors"
	"usage-cost/internal/logging"
)

// DefaultEndpoint is the usage cost API.
const DefaultEndpoint = "https://itra.oraclecloud.com/metering/api/v1/usagecost"

// TimeLayout is the wall clock layout of startTime and endTime.
const TimeLayout = "2006-01-02T15:04:05.000"

// TenantHeader carries the identity domain of the tenant.
const TenantHeader = "X-ID-TENANT-NAME"

// Config holds the API location, tenant and query options.
type Config struct {
	Endpoint  string `hcl:"endpoint,optional" json:"endpoint"`
	AccountID string `hcl:"account_id,optional" json:"account_id"`
	TenantID  string `hcl:"tenant_id,optional" json:"tenant_id"`

	// UsernameFile and PasswordFile hold the basic auth credentials
	UsernameFile string `hcl:"username_file,optional" json:"username_file"`
	PasswordFile string `hcl:"password_file,optional" json:"password_file"`

	// Username and Password come from the environment or the credential
	// files, never from the config file itself
	Username string `hcl:"username,optional" json:"-"`
	Password string `hcl:"password,optional" json:"-"`

	TimeZone           string `hcl:"time_zone,optional" json:"time_zone"`
	UsageType          string `hcl:"usage_type,optional" json:"usage_type"`
	RollupLevel        string `hcl:"rollup_level,optional" json:"rollup_level"`
	ComputeTypeEnabled string `hcl:"compute_type_enabled,optional" json:"compute_type_enabled"`

	// Timeout bounds one request; zero leaves it to the caller's context
	Timeout string `hcl:"timeout,optional" json:"timeout"`
}

// DefaultConfig returns the query options the usage cost API expects.
func DefaultConfig() Config {
	return Config{
		Endpoint:           DefaultEndpoint,
		UsernameFile:       "u.txt",
		PasswordFile:       "p.txt",
		TimeZone:           "Europe/London",
		UsageType:          "DAILY",
		RollupLevel:        "RESOURCE",
		ComputeTypeEnabled: "Y",
	}
}

// Client fetches rate entries.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// New creates a client.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{cfg: cfg, http: &http.Client{}}
	if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
		c.http.Timeout = d
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDefault(c.logger)
	return c
}

type usageCostResponse struct {
	Items []usageCostItem `json:"items"`
}

type usageCostItem struct {
	ResourceName string          `json:"resourceName"`
	Currency     string          `json:"currency"`
	GsiProductID string          `json:"gsiProductId"`
	Costs        []usageCostCost `json:"costs"`
}

type usageCostCost struct {
	UnitPrice *decimal.Decimal `json:"unitPrice"`
}

// URL builds the request URL for a window.
func (c *Client) URL(window types.RateWindow) (string, error) {
	base, err := url.Parse(strings.TrimSuffix(c.cfg.Endpoint, "/") + "/" + url.PathEscape(c.cfg.AccountID))
	if err != nil {
		return "", errors.RateQuery("invalid metering endpoint", err).WithContext("endpoint", c.cfg.Endpoint)
	}
	q := url.Values{}
	q.Set("startTime", window.Start.Format(TimeLayout))
	q.Set("endTime", window.End.Format(TimeLayout))
	q.Set("computeTypeEnabled", c.cfg.ComputeTypeEnabled)
	q.Set("timeZone", c.cfg.TimeZone)
	q.Set("usageType", c.cfg.UsageType)
	q.Set("rollupLevel", c.cfg.RollupLevel)
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// Rates returns the rate entries for window, in response order. Every item
// must name its resource and carry at least one cost.
func (c *Client) Rates(ctx context.Context, window types.RateWindow) ([]types.RateCardEntry, error) {
	u, err := c.URL(window)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.RateQuery("failed to build rate request", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set(TenantHeader, c.cfg.TenantID)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.RateQuery("rate request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.RateQuery(fmt.Sprintf("metering API returned status %d", resp.StatusCode), nil).
			WithContext("status", resp.StatusCode).
			WithContext("body", strings.TrimSpace(string(body)))
	}

	var parsed usageCostResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.RateQuery("malformed metering response", err)
	}

	entries := make([]types.RateCardEntry, 0, len(parsed.Items))
	for i, item := range parsed.Items {
		resource := strings.TrimSpace(item.ResourceName)
		if resource == "" {
			return nil, errors.RateQuery("metering item has no resourceName", nil).WithContext("item", i)
		}
		if len(item.Costs) == 0 || item.Costs[0].UnitPrice == nil {
			return nil, errors.RateQuery(fmt.Sprintf("metering item %s has no unit price", resource), nil).
				WithContext("item", i)
		}
		entries = append(entries, types.RateCardEntry{
			Resource:   resource,
			UnitPrice:  *item.Costs[0].UnitPrice,
			Currency:   types.Currency(item.Currency),
			PartNumber: item.GsiProductID,
		})
	}

	c.logger.Debug("rates fetched",
		zap.String("start", window.Start.Format(TimeLayout)),
		zap.String("end", window.End.Format(TimeLayout)),
		zap.Int("items", len(entries)),
		zap.Duration("latency", time.Since(start)),
	)
	return entries, nil
}

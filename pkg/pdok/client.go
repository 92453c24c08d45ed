// Package pdok looks up soil map areas through the BRO soil map WMS service
// published by PDOK.
package pdok

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/dutchsoils/internal/resilience"
	"github.com/sells-group/dutchsoils/pkg/dutchsoils"
)

const (
	// DefaultWMSURL is the BRO soil map WMS endpoint.
	DefaultWMSURL = "https://service.pdok.nl/bzk/bro-bodemkaart/wms/v1_0"
	// DefaultCRS is Amersfoort / RD New.
	DefaultCRS = "EPSG:28992"

	soilAreaLayer = "soilarea"
	bboxSize      = 1e-5
)

// SupportedCRS lists the coordinate reference systems the service accepts.
var SupportedCRS = []string{
	"EPSG:28992", "EPSG:25831", "EPSG:25832", "EPSG:3034", "EPSG:3035",
	"EPSG:3857", "EPSG:4258", "EPSG:4326", "CRS:84",
}

// ErrUnsupportedCRS is returned for coordinate reference systems the WMS
// service does not accept.
var ErrUnsupportedCRS = eris.New("pdok: unsupported crs")

// ErrUnavailable is returned while lookups are suspended after repeated
// service failures.
var ErrUnavailable = eris.New("pdok: wms service unavailable")

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for WMS requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL overrides the WMS endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithCRS sets the CRS used by MapAreaID.
func WithCRS(crs string) Option {
	return func(c *Client) {
		c.crs = crs
	}
}

// WithRateLimit sets the maximum number of requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// WithCacheTTL sets how long lookups are memoised. Zero disables the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

// WithRetry sets the number of attempts per lookup and the delay before the
// first retry. Only throttled, failing or dropped requests are retried.
func WithRetry(attempts int, initialBackoff time.Duration) Option {
	return func(c *Client) {
		c.retry.MaxAttempts = attempts
		c.retry.InitialBackoff = initialBackoff
	}
}

// WithCircuitBreaker suspends lookups for reset after threshold consecutive
// failed lookups.
func WithCircuitBreaker(threshold int, reset time.Duration) Option {
	return func(c *Client) {
		c.breakerCfg.Threshold = threshold
		c.breakerCfg.Cooldown = reset
	}
}

// Client queries the soil area layer of the WMS service. It is safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	crs        string
	limiter    *rate.Limiter
	cacheTTL   time.Duration
	cache      *cache.Cache

	retry      resilience.RetryConfig
	breakerCfg resilience.BreakerConfig
	breaker    *resilience.Breaker
}

var _ dutchsoils.Locator = (*Client)(nil)

type lookup struct {
	id int64
	ok bool
}

// NewClient creates a WMS client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultWMSURL,
		crs:        DefaultCRS,
		limiter:    rate.NewLimiter(5, 5),
		cacheTTL:   time.Hour,
		retry:      resilience.DefaultRetryConfig(),
	}
	c.retry.OnRetry = resilience.RetryLogger("pdok")
	c.breakerCfg.OnStateChange = func(from, to resilience.BreakerState) {
		zap.L().Warn("pdok: circuit breaker state change",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = resilience.NewBreaker(c.breakerCfg)
	if c.cacheTTL > 0 {
		c.cache = cache.New(c.cacheTTL, 2*c.cacheTTL)
	}
	return c
}

// MapAreaID implements dutchsoils.Locator in the client's CRS.
func (c *Client) MapAreaID(ctx context.Context, x, y float64) (int64, bool, error) {
	return c.MapAreaIDCRS(ctx, c.crs, x, y)
}

// MapAreaIDCRS returns the id of the soil map area at (x, y) in crs. ok is
// false when the service has no soil area at the location.
func (c *Client) MapAreaIDCRS(ctx context.Context, crs string, x, y float64) (int64, bool, error) {
	if !IsSupportedCRS(crs) {
		return 0, false, eris.Wrapf(ErrUnsupportedCRS,
			"pdok: unsupported crs %q, choose from %s", crs, strings.Join(SupportedCRS, ", "))
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, false, eris.Wrapf(dutchsoils.ErrInvalidInput, "pdok: invalid coordinate (%v, %v)", x, y)
	}

	key := cacheKey(crs, x, y)
	if c.cache != nil {
		if v, found := c.cache.Get(key); found {
			l := v.(lookup)
			zap.L().Debug("pdok cache hit", zap.String("key", key), zap.Bool("found", l.ok))
			return l.id, l.ok, nil
		}
	}

	l, err := resilience.Execute(ctx, c.breaker, func(ctx context.Context) (lookup, error) {
		return resilience.Do(ctx, c.retry, func(ctx context.Context) (lookup, error) {
			return c.getFeatureInfo(ctx, crs, x, y)
		})
	})
	if eris.Is(err, resilience.ErrBreakerOpen) {
		return 0, false, eris.Wrapf(ErrUnavailable, "pdok: lookups suspended after repeated failures")
	}
	if err != nil {
		return 0, false, err
	}
	if c.cache != nil {
		c.cache.SetDefault(key, l)
	}
	return l.id, l.ok, nil
}

// IsSupportedCRS reports whether crs is accepted by the service.
func IsSupportedCRS(crs string) bool {
	for _, s := range SupportedCRS {
		if strings.EqualFold(s, crs) {
			return true
		}
	}
	return false
}

func cacheKey(crs string, x, y float64) string {
	return fmt.Sprintf("%s|%s|%s", strings.ToUpper(crs), formatCoord(x), formatCoord(y))
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// featureInfoResponse is the JSON GetFeatureInfo response.
type featureInfoResponse struct {
	Features []struct {
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

// serviceExceptionReport is the XML error document of an OGC service.
type serviceExceptionReport struct {
	XMLName    xml.Name `xml:"ServiceExceptionReport"`
	Exceptions []struct {
		Code string `xml:"code,attr"`
		Text string `xml:",chardata"`
	} `xml:"ServiceException"`
}

// getFeatureInfo requests a 2x2 pixel image whose lower-left pixel covers
// (x, y) and returns the map area of that pixel.
func (c *Client) getFeatureInfo(ctx context.Context, crs string, x, y float64) (lookup, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return lookup{}, eris.Wrap(err, "pdok: rate limit")
	}

	params := url.Values{
		"request":      {"GetFeatureInfo"},
		"service":      {"WMS"},
		"version":      {"1.3.0"},
		"info_format":  {"json"},
		"layers":       {soilAreaLayer},
		"query_layers": {soilAreaLayer},
		"crs":          {crs},
		"bbox": {strings.Join([]string{
			formatCoord(x), formatCoord(y), formatCoord(x + bboxSize), formatCoord(y + bboxSize),
		}, ",")},
		"width":  {"2"},
		"height": {"2"},
		"i":      {"0"},
		"j":      {"2"},
	}

	reqURL := c.baseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return lookup{}, eris.Wrap(err, "pdok: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return lookup{}, eris.Wrap(err, "pdok: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return lookup{}, eris.Wrap(err, "pdok: read body")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("pdok: wms returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return lookup{}, resilience.NewTransientError(err, resp.StatusCode)
		}
		return lookup{}, err
	}

	var info featureInfoResponse
	if jsonErr := json.Unmarshal(body, &info); jsonErr != nil {
		return lookup{}, parseServiceException(body, crs, jsonErr)
	}
	if len(info.Features) == 0 {
		return lookup{}, nil
	}

	raw, ok := info.Features[0].Properties["maparea_id"]
	if !ok || raw == nil {
		return lookup{}, eris.New("pdok: feature without maparea_id")
	}
	id, err := dutchsoils.ParseMapAreaID(fmt.Sprint(raw))
	if err != nil {
		return lookup{}, eris.Wrap(err, "pdok: parse maparea_id")
	}
	return lookup{id: id, ok: true}, nil
}

// parseServiceException turns an XML exception report into an error.
func parseServiceException(body []byte, crs string, jsonErr error) error {
	var report serviceExceptionReport
	if err := xml.Unmarshal(body, &report); err != nil || len(report.Exceptions) == 0 {
		return eris.Wrap(jsonErr, "pdok: parse response")
	}
	text := strings.TrimSpace(report.Exceptions[0].Text)
	if strings.Contains(text, "Unsupported CRS namespace") {
		return eris.Wrapf(ErrUnsupportedCRS, "pdok: unsupported crs %q, use the format 'EPSG:XXX'", crs)
	}
	return eris.Errorf("pdok: service exception: %s", text)
}

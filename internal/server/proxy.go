package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	httpclient "github.com/Kcubez/crypto-predictor/internal/platform/http"
)

// ProxyFetcher forwards whitelisted Binance requests on behalf of callers
// whose outbound IPs Binance rejects. It returns the upstream body
// verbatim.
type ProxyFetcher struct {
	baseURL    string
	httpClient *httpclient.Client
}

// NewProxyFetcher creates a fetcher against the given Binance base URL.
func NewProxyFetcher(baseURL string, timeout time.Duration) *ProxyFetcher {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &ProxyFetcher{
		baseURL: baseURL,
		httpClient: httpclient.NewClient(httpclient.ClientOptions{
			Timeout: timeout,
		}),
	}
}

// FetchKlines retrieves raw kline data for the trailing limit days.
func (p *ProxyFetcher) FetchKlines(ctx context.Context, symbol, interval string, limit int) (json.RawMessage, error) {
	endTime := time.Now().UnixMilli()
	startTime := endTime - int64(limit)*24*60*60*1000

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("startTime", strconv.FormatInt(startTime, 10))
	q.Set("endTime", strconv.FormatInt(endTime, 10))
	q.Set("limit", strconv.Itoa(limit))

	return p.get(ctx, "/api/v3/klines", q)
}

// FetchPrice retrieves the raw ticker price payload.
func (p *ProxyFetcher) FetchPrice(ctx context.Context, symbol string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	return p.get(ctx, "/api/v3/ticker/price", q)
}

func (p *ProxyFetcher) get(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := p.httpClient.DoRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading upstream body: %w", err)
	}
	return body, nil
}

// Package catalog reads products from the record-management API.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"storefront-checkout/internal/domain"
)

var ErrProductNotFound = errors.New("product not found")

type Client interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
}

type client struct {
	baseURL *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// breakerFailures is the run of consecutive failures that opens the circuit.
const breakerFailures = 5

// NewClient returns a catalog client. Calls fail fast with
// gobreaker.ErrOpenState after repeated transport or server errors.
func NewClient(baseURL string, timeout time.Duration) (Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog base url %q: %w", baseURL, err)
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrProductNotFound) || errors.Is(err, context.Canceled)
		},
	})
	return &client{baseURL: u, http: &http.Client{Timeout: timeout}, breaker: cb}, nil
}

// wireProduct accepts numeric or string ids and prices.
type wireProduct struct {
	ID          json.RawMessage `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       json.RawMessage `json:"price"`
	Image       string          `json:"image"`
	Stock       int             `json:"stock"`
	Brand       string          `json:"brand"`
	Category    string          `json:"category"`
}

func (w wireProduct) toDomain() (domain.Product, error) {
	id, err := rawString(w.ID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product id: %w", err)
	}
	priceStr, err := rawString(w.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s price: %w", id, err)
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s price: %w", id, err)
	}
	return domain.Product{
		ID:          id,
		Name:        w.Name,
		Description: w.Description,
		Price:       price,
		Image:       w.Image,
		Stock:       w.Stock,
		Brand:       w.Brand,
		Category:    w.Category,
	}, nil
}

func rawString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("missing")
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func (c *client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var wire []wireProduct
	if err := c.get(ctx, "/products", &wire); err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(wire))
	for _, w := range wire {
		p, err := w.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *client) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var w wireProduct
	if err := c.get(ctx, "/products/"+url.PathEscape(id), &w); err != nil {
		return domain.Product{}, err
	}
	return w.toDomain()
}

func (c *client) get(ctx context.Context, path string, dst any) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.fetch(ctx, path, dst)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("catalog %s: %w", path, err)
	}
	return err
}

func (c *client) fetch(ctx context.Context, path string, dst any) error {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrProductNotFound
	case resp.StatusCode >= 300:
		return fmt.Errorf("catalog %s: unexpected status %s", path, strconv.Itoa(resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return nil
}

package ecosystem

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/pkg/apperr"
)

// SignatureHeader carries an optional HMAC of the request body.
const SignatureHeader = "X-Ecosystem-Signature"

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Payload is the normalized projection of an eligible listing sent to the hub.
// (source_site, source_id) is the hub's de-duplication key.
type Payload struct {
	SourceSite   string   `json:"source_site"`
	SourceID     string   `json:"source_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Price        float64  `json:"price"`
	Category     string   `json:"category"`
	Region       string   `json:"region"`
	Images       []string `json:"images"`
	ContactName  string   `json:"contact_name"`
	ContactEmail string   `json:"contact_email"`
	ContactPhone *string  `json:"contact_phone"`
	ExpiresAt    *string  `json:"expires_at"`
	CreatedAt    string   `json:"created_at"`
}

// NewPayload projects a listing for the given site tag.
func NewPayload(siteTag string, l *model.Listing) Payload {
	images := l.Images
	if images == nil {
		images = []string{}
	}
	p := Payload{
		SourceSite:   siteTag,
		SourceID:     l.ID,
		Title:        l.Title,
		Description:  l.Description,
		Price:        l.Price,
		Category:     l.Category,
		Region:       l.Region,
		Images:       images,
		ContactName:  l.ContactName,
		ContactEmail: l.ContactEmail,
		ContactPhone: l.ContactPhone,
		CreatedAt:    l.CreatedAt.UTC().Format(isoMillis),
	}
	if l.ExpiresAt != nil {
		s := l.ExpiresAt.UTC().Format(isoMillis)
		p.ExpiresAt = &s
	}
	return p
}

// Publisher forwards payloads to the hub.
type Publisher interface {
	Publish(ctx context.Context, p Payload) (json.RawMessage, error)
}

// Observer receives one call per publish attempt.
type Observer interface {
	ObserveHubCall(outcome string, d time.Duration)
}

// Client posts payloads to the hub over HTTP. One attempt per call; the
// caller decides what a failure means.
type Client struct {
	url      string
	secret   []byte
	http     *http.Client
	tracer   trace.Tracer
	observer Observer
}

type Option func(*Client)

// WithSharedSecret signs each body with HMAC-SHA256 in SignatureHeader.
func WithSharedSecret(secret string) Option {
	return func(c *Client) {
		if secret != "" {
			c.secret = []byte(secret)
		}
	}
}

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithObserver(o Observer) Option { return func(c *Client) { c.observer = o } }

func NewClient(url string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		tracer: otel.Tracer("github.com/alaskacg/tongass-listings/internal/ecosystem"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

const maxResponseBytes = 1 << 20

// Publish returns the hub's JSON response verbatim. Any transport error,
// non-2xx status or non-JSON body is reported as apperr.ErrUpstreamUnavailable.
func (c *Client) Publish(ctx context.Context, p Payload) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "ecosystem.publish", trace.WithAttributes(
		attribute.String("ecosystem.source_site", p.SourceSite),
		attribute.String("ecosystem.source_id", p.SourceID),
	))
	defer span.End()

	start := time.Now()
	body, err := c.do(ctx, p)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if c.observer != nil {
		c.observer.ObserveHubCall(outcome, time.Since(start))
	}
	return body, err
}

func (c *Client) do(ctx context.Context, p Payload) (json.RawMessage, error) {
	buf, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("build hub request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(c.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(c.secret, buf))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hub request: %w: %v", apperr.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read hub response: %w: %v", apperr.ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("hub status %d: %w: %s", resp.StatusCode, apperr.ErrUpstreamUnavailable, truncate(raw, 256))
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("hub returned non-JSON body: %w", apperr.ErrUpstreamUnavailable)
	}
	return json.RawMessage(raw), nil
}

// Sign returns "sha256=<hex>" for body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

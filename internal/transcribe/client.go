// Package transcribe submits recordings to the external transcription
// service's /predict endpoint.
package transcribe

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/loqalabs/loqa-recorder/internal/decoding"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBase = "http://localhost:5000"
	DefaultPath = "/predict"
)

// Request is one upload: the WAV bytes plus the decoding options.
type Request struct {
	FileName string
	Audio    []byte
	Options  decoding.Options
}

// Response is the raw outcome of a completed HTTP exchange.
type Response struct {
	StatusCode int
	Body       []byte
}

type Client struct {
	baseURL    string
	path       string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer
	requests   metric.Int64Counter
	latency    metric.Float64Histogram
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

func WithPath(path string) ClientOption {
	return func(c *Client) {
		c.path = path
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds the whole exchange. Zero leaves it unbounded. It
// applies to a copy of any client passed with WithHTTPClient.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBase
	}
	if c.path == "" {
		c.path = DefaultPath
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.tracer = otel.Tracer("github.com/loqalabs/loqa-recorder/transcribe")
	meter := otel.Meter("github.com/loqalabs/loqa-recorder")
	var err error
	if c.requests, err = meter.Int64Counter("recorder.transcriptions",
		metric.WithDescription("Transcription requests by outcome")); err != nil {
		c.logger.Warn("failed to create transcriptions counter", slog.String("error", err.Error()))
	}
	if c.latency, err = meter.Float64Histogram("recorder.transcription.duration",
		metric.WithDescription("Transcription round trip"),
		metric.WithUnit("s")); err != nil {
		c.logger.Warn("failed to create transcription duration histogram", slog.String("error", err.Error()))
	}
	return c
}

// URL is the endpoint uploads are posted to.
func (c *Client) URL() string {
	if strings.Contains(c.path, "://") {
		return c.path
	}
	return strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(c.path, "/")
}

// Submit posts req once. Any completed exchange, whatever its status, is
// returned as a Response; only transport failures are errors.
func (c *Client) Submit(ctx context.Context, req Request) (Response, error) {
	ctx, span := c.tracer.Start(ctx, "transcribe.submit", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	started := time.Now()

	resp, err := c.submit(ctx, req)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "transport_error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		outcome = "server_error"
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	if err == nil {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if c.requests != nil {
		c.requests.Add(ctx, 1, attrs)
	}
	if c.latency != nil {
		c.latency.Record(ctx, time.Since(started).Seconds(), attrs)
	}
	return resp, err
}

func (c *Client) submit(ctx context.Context, req Request) (Response, error) {
	if len(req.Audio) == 0 {
		return Response{}, errors.New("audio is empty")
	}
	if req.FileName == "" {
		return Response{}, errors.New("filename is not set")
	}

	body, contentType, err := encodeForm(req)
	if err != nil {
		return Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(), body)
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate")
	httpReq.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("post %s: %w", c.URL(), err)
	}
	defer resp.Body.Close()

	var r io.Reader
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return Response{}, fmt.Errorf("decode gzip body: %w", err)
		}
		defer gz.Close()
		r = gz
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return Response{}, fmt.Errorf("decode deflate body: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		r = resp.Body
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return Response{}, fmt.Errorf("read response body: %w", err)
	}
	return Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func encodeForm(req Request) (*bytes.Buffer, string, error) {
	b := &bytes.Buffer{}
	mp := multipart.NewWriter(b)

	fp, err := mp.CreateFormFile("audio", req.FileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := fp.Write(req.Audio); err != nil {
		return nil, "", err
	}
	for _, f := range req.Options.Fields() {
		if err := mp.WriteField(f.Name, f.Value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.Name, err)
		}
	}
	if err := mp.Close(); err != nil {
		return nil, "", err
	}
	return b, mp.FormDataContentType(), nil
}

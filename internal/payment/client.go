package payment

import (
	"context"
	"errors"
	"fmt"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	ServerKey  string
	Production bool
	SnapURL    string // override host Snap, mis. untuk httptest
	APIURL     string // override host Core API
	Timeout    time.Duration
}

// Client wraps the Snap and Core API SDK clients behind one circuit breaker.
type Client struct {
	snap snap.Client
	core coreapi.Client
	cb   *gobreaker.CircuitBreaker
	log  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}

	hc := &http.Client{
		Timeout:   timeout,
		Transport: newHostRewrite(cfg.SnapURL, cfg.APIURL),
	}
	sdkHTTP := &midtrans.HttpClientImplementation{HttpClient: hc, Logger: sdkLogger{logger.Sugar()}}

	c := &Client{log: logger}
	c.snap.New(cfg.ServerKey, env)
	c.snap.HttpClient = sdkHTTP
	c.core.New(cfg.ServerKey, env)
	c.core.HttpClient = sdkHTTP

	settings := gobreaker.Settings{
		Name:        "PaymentGateway",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		// transaksi tidak ditemukan bukan tanda gateway down
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrTransactionNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	c.cb = gobreaker.NewCircuitBreaker(settings)
	return c
}

func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	items := make([]midtrans.ItemDetails, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, midtrans.ItemDetails{
			ID:    it.ID,
			Name:  truncate(it.Name, 50),
			Price: it.Price.IntPart(),
			Qty:   int32(it.Quantity),
		})
	}
	body := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderRef,
			GrossAmt: req.GrossAmount.IntPart(),
		},
		CustomerDetail: &midtrans.CustomerDetails{FName: "User" + req.CustomerID},
	}
	if len(items) > 0 {
		body.Items = &items
	}

	return executeWithBreaker(c.cb, func() (Session, error) {
		return withContext(ctx, func() (Session, error) {
			start := time.Now()
			resp, merr := c.snap.CreateTransaction(body)
			c.log.Debug("gateway call", zap.String("op", "snap.create"), zap.Duration("elapsed", time.Since(start)))
			if merr != nil {
				return Session{}, fmt.Errorf("%w: snap status %d: %s", ErrGateway, merr.StatusCode, merr.Message)
			}
			if resp == nil || resp.Token == "" {
				msg := ""
				if resp != nil {
					msg = strings.Join(resp.ErrorMessages, "; ")
				}
				return Session{}, fmt.Errorf("%w: snap returned no token: %s", ErrGateway, msg)
			}
			return Session{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
		})
	})
}

// Status asks the gateway for the authoritative state of a transaction id or order reference.
func (c *Client) Status(ctx context.Context, id string) (TransactionStatus, error) {
	return executeWithBreaker(c.cb, func() (TransactionStatus, error) {
		return withContext(ctx, func() (TransactionStatus, error) {
			start := time.Now()
			resp, merr := c.core.CheckTransaction(url.PathEscape(id))
			c.log.Debug("gateway call", zap.String("op", "core.status"), zap.Duration("elapsed", time.Since(start)))

			// status API bisa balas HTTP 200 dengan status_code 404 di body
			if (merr != nil && merr.StatusCode == http.StatusNotFound) || (resp != nil && resp.StatusCode == "404") {
				return TransactionStatus{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
			}
			if merr != nil {
				return TransactionStatus{}, fmt.Errorf("%w: status api %d: %s", ErrGateway, merr.StatusCode, merr.Message)
			}
			if resp == nil {
				return TransactionStatus{}, fmt.Errorf("%w: empty status response", ErrGateway)
			}
			return TransactionStatus{
				StatusCode:        resp.StatusCode,
				StatusMessage:     resp.StatusMessage,
				TransactionID:     resp.TransactionID,
				OrderID:           resp.OrderID,
				GrossAmount:       resp.GrossAmount,
				PaymentType:       resp.PaymentType,
				TransactionStatus: resp.TransactionStatus,
				FraudStatus:       resp.FraudStatus,
			}, nil
		})
	})
}

// withContext returns early when ctx ends. The SDK call itself is bounded by the HTTP client timeout.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		return *new(T), fmt.Errorf("%w: %v", ErrGateway, err)
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return *new(T), fmt.Errorf("%w: %v", ErrGateway, ctx.Err())
	}
}

// hostRewrite sends SDK requests to override hosts; app.* is Snap, the rest is Core API.
type hostRewrite struct {
	snap, api *url.URL
	next      http.RoundTripper
}

func newHostRewrite(snapURL, apiURL string) http.RoundTripper {
	if snapURL == "" && apiURL == "" {
		return http.DefaultTransport
	}
	rw := &hostRewrite{next: http.DefaultTransport}
	if u, err := url.Parse(snapURL); err == nil && snapURL != "" {
		rw.snap = u
	}
	if u, err := url.Parse(apiURL); err == nil && apiURL != "" {
		rw.api = u
	}
	return rw
}

func (h *hostRewrite) RoundTrip(req *http.Request) (*http.Response, error) {
	target := h.api
	if strings.HasPrefix(req.URL.Host, "app.") {
		target = h.snap
	}
	if target == nil {
		return h.next.RoundTrip(req)
	}
	out := req.Clone(req.Context())
	out.URL.Scheme = target.Scheme
	out.URL.Host = target.Host
	out.Host = target.Host
	return h.next.RoundTrip(out)
}

// sdkLogger routes SDK log lines into zap.
type sdkLogger struct{ s *zap.SugaredLogger }

func (l sdkLogger) Error(format string, value ...interface{}) { l.s.Errorf(format, value...) }
func (l sdkLogger) Info(format string, value ...interface{})  { l.s.Debugf(format, value...) }
func (l sdkLogger) Debug(format string, value ...interface{}) { l.s.Debugf(format, value...) }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

package httpx

import (
	"github.com/ariefcatur/go-order-reconciler/internal/idempotency"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"net/http"
	"time"
)

// Deps is everything the router needs. Idem may be nil, then retries are not deduplicated.
type Deps struct {
	Logger   *zap.Logger
	Verifier TokenVerifier
	Orders   *OrdersHandler
	Cart     *CartHandler
	Idem     idempotency.Store
	Locker   idempotency.Locker
	IdemTTL  time.Duration
	Timeout  time.Duration
}

func NewRouter(d Deps) *chi.Mux {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Timeout <= 0 {
		d.Timeout = 15 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(d.Logger), middleware.Recoverer)
	r.Use(middleware.Timeout(d.Timeout))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	writeErr := errorWriter(d.Logger)
	opts := []idempotency.Option{
		idempotency.WithLogger(d.Logger),
		idempotency.WithErrorWriter(writeErr),
		idempotency.WithRetention(d.IdemTTL),
		// 502 payment_session_failed tetap disimpan: ordernya sudah ter-commit
		idempotency.WithStoreFilter(func(s int) bool {
			return (s >= 200 && s < 300) || s == http.StatusBadGateway
		}),
	}
	if d.Locker != nil {
		opts = append(opts, idempotency.WithLocker(d.Locker, 0))
	}
	idem := idempotency.Middleware(d.Idem, opts...)
	authn := Authenticate(d.Verifier, writeErr)

	if d.Orders != nil {
		d.Orders.writeErr = writeErr
		d.Orders.Register(r, authn, idem)
	}
	if d.Cart != nil {
		d.Cart.writeErr = writeErr
		d.Cart.Register(r, authn)
	}
	return r
}

// requestLogger writes one line per request, tagged with chi's request id.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

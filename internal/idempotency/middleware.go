package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"github.com/ariefcatur/go-order-reconciler/internal/auth"
	"go.uber.org/zap"
	"net/http"
	"strings"
	"time"
)

const (
	HeaderKey    = "Idempotency-Key"
	HeaderReplay = "X-Idempotent-Replay"

	defaultLockTTL = 30 * time.Second
)

type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

type config struct {
	header      string
	locker      Locker
	lockTTL     time.Duration
	logger      *zap.Logger
	writeError  ErrorWriter
	shouldStore func(status int) bool
	retention   time.Duration
}

type Option func(*config)

func WithHeader(name string) Option {
	return func(c *config) {
		if name = strings.TrimSpace(name); name != "" {
			c.header = name
		}
	}
}

// WithLocker rejects a second concurrent request for the same key with ErrKeyInProgress.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(c *config) {
		c.locker = l
		if ttl > 0 {
			c.lockTTL = ttl
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithErrorWriter(fn ErrorWriter) Option {
	return func(c *config) {
		if fn != nil {
			c.writeError = fn
		}
	}
}

// WithStoreFilter decides which response statuses are recorded. Default: 2xx only.
func WithStoreFilter(fn func(status int) bool) Option {
	return func(c *config) {
		if fn != nil {
			c.shouldStore = fn
		}
	}
}

// WithRetention ignores stored records older than d, even if the sweeper has not purged them yet.
func WithRetention(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.retention = d
		}
	}
}

// Middleware replays the first recorded outcome for an Idempotency-Key instead of
// running the handler again. Requests without a key or without a principal pass through.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	cfg := config{
		header:      HeaderKey,
		lockTTL:     defaultLockTTL,
		logger:      zap.NewNop(),
		writeError:  defaultErrorWriter,
		shouldStore: func(status int) bool { return status >= 200 && status < 300 },
		retention:   DefaultTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(cfg.header))
			p, authed := auth.FromContext(r.Context())
			if key == "" || !authed {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			log := cfg.logger.With(zap.String("idempotency_key", key), zap.String("user_id", p.UserID))

			replayed, err := cfg.lookup(ctx, store, key, p.UserID, r, w, log)
			if err != nil || replayed {
				if err != nil {
					cfg.writeError(w, r, err)
				}
				return
			}

			if cfg.locker != nil {
				token, ok, err := cfg.locker.Acquire(ctx, key, cfg.lockTTL)
				if err != nil {
					// lock hanya optimasi; DB unique key tetap jadi penjaga terakhir
					log.Warn("idempotency lock unavailable", zap.Error(err))
				} else if !ok {
					cfg.writeError(w, r, ErrKeyInProgress)
					return
				} else {
					defer func() {
						if err := cfg.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
							log.Warn("idempotency lock release", zap.Error(err))
						}
					}()
					// request pertama bisa saja selesai di antara lookup dan acquire
					if replayed, err := cfg.lookup(ctx, store, key, p.UserID, r, w, log); err != nil || replayed {
						if err != nil {
							cfg.writeError(w, r, err)
						}
						return
					}
				}
			}

			rec := newResponseRecorder(w)
			next.ServeHTTP(rec, r)

			if cfg.shouldStore(rec.Status()) {
				err := store.Insert(context.WithoutCancel(ctx), Record{
					Key:         key,
					UserID:      p.UserID,
					Method:      r.Method,
					Path:        r.URL.Path,
					StatusCode:  rec.Status(),
					ContentType: rec.Header().Get("Content-Type"),
					Body:        rec.Body(),
				})
				switch {
				case errors.Is(err, ErrDuplicateRecord):
					log.Info("idempotency key already recorded by a concurrent request")
				case err != nil:
					log.Error("persist idempotency record", zap.Error(err))
				}
			}

			if err := rec.Commit(); err != nil {
				log.Debug("flush response", zap.Error(err))
			}
		})
	}
}

// lookup writes the stored response and returns true when the key was already used
// by the same user on the same route.
func (c *config) lookup(ctx context.Context, store Store, key, userID string, r *http.Request, w http.ResponseWriter, log *zap.Logger) (bool, error) {
	rec, err := store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !rec.CreatedAt.IsZero() && time.Since(rec.CreatedAt) > c.retention {
		log.Debug("idempotency record past retention, treated as new", zap.Time("created_at", rec.CreatedAt))
		return false, nil
	}
	if rec.UserID != userID {
		log.Error("security: idempotency key used by another user", zap.String("owner", rec.UserID))
		return false, ErrKeyMisuse
	}
	if rec.Method != r.Method || rec.Path != r.URL.Path {
		log.Warn("idempotency key reused for a different request",
			zap.String("method", r.Method), zap.String("path", r.URL.Path),
			zap.String("recorded_method", rec.Method), zap.String("recorded_path", rec.Path),
		)
		return false, ErrKeyReused
	}

	log.Info("idempotency hit")
	writeStored(w, rec)
	return true, nil
}

func writeStored(w http.ResponseWriter, rec Record) {
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(HeaderReplay, "true")
	status := rec.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(rec.Body) > 0 {
		_, _ = w.Write(rec.Body)
	}
}

func defaultErrorWriter(w http.ResponseWriter, _ *http.Request, err error) {
	status, code := http.StatusInternalServerError, "idempotency_store_error"
	switch {
	case errors.Is(err, ErrKeyMisuse):
		status, code = http.StatusBadRequest, "idempotency_key_misuse"
	case errors.Is(err, ErrKeyReused):
		status, code = http.StatusBadRequest, "idempotency_key_reused"
	case errors.Is(err, ErrKeyInProgress):
		status, code = http.StatusConflict, "idempotency_in_progress"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": code, "message": err.Error()})
}

type responseRecorder struct {
	parent http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseRecorder(parent http.ResponseWriter) *responseRecorder {
	return &responseRecorder{parent: parent, header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) Body() []byte {
	return append([]byte(nil), r.body.Bytes()...)
}

func (r *responseRecorder) Commit() error {
	dst := r.parent.Header()
	for k, v := range r.header {
		dst[k] = v
	}
	r.parent.WriteHeader(r.Status())
	if r.body.Len() == 0 {
		return nil
	}
	_, err := r.parent.Write(r.body.Bytes())
	return err
}

package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"io"
	"net/http"
	"strconv"
	"strings"
)

var errValidation = errors.New("validation failed")

const maxBodyBytes = 1 << 20

var validate = validator.New()

// ValidationError carries the failing fields of a request body.
type ValidationError struct {
	Fields map[string]string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", errValidation, e.Err)
	}
	return errValidation.Error()
}

func (e *ValidationError) Unwrap() error { return errValidation }

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return &ValidationError{Err: fmt.Errorf("invalid json: %w", err)}
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make(map[string]string, len(ve))
			for _, fe := range ve {
				fields[strings.ToLower(fe.Field()[:1])+fe.Field()[1:]] = fe.Tag()
			}
			return &ValidationError{Fields: fields}
		}
		return &ValidationError{Err: err}
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{Fields: map[string]string{name: "invalid"}}
	}
	return id, nil
}

// queryInt returns 0 when the parameter is absent so callers fall back to defaults.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &ValidationError{Fields: map[string]string{name: "invalid"}}
	}
	return n, nil
}

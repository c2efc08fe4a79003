package validators

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
)

// ParseQueryInt reads an optional integer query parameter within [min, max].
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseLimit reads ?limit=. Values above max are clamped rather than
// rejected; zero, negative and non-numeric values are rejected.
func ParseLimit(r *http.Request, defaultVal, max int) (int, error) {
	limit, err := ParseQueryInt(r, "limit", defaultVal, 1, math.MaxInt)
	if err != nil {
		return 0, err
	}
	if limit > max {
		return max, nil
	}
	return limit, nil
}

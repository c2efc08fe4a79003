package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type movementBody struct {
	Type   string `json:"type" validate:"required,oneof=Deuda Abono"`
	Amount int    `json:"amount" validate:"min=1"`
}

func TestDecodeJSONBody(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"type":"Deuda","amount":5}`},
		{name: "empty", body: ``, wantErr: "request body is required"},
		{name: "unknown field", body: `{"type":"Deuda","amount":5,"extra":1}`, wantErr: "invalid request body"},
		{name: "trailing object", body: `{"type":"Deuda","amount":5}{"type":"Abono"}`, wantErr: "single JSON object"},
		{name: "bad enum", body: `{"type":"Prestamo","amount":5}`, wantErr: "validation failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dest movementBody
			err := DecodeJSONBody(req, &dest)
			if tc.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "Deuda", dest.Type)
				return
			}
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestDecodeJSONBodyFieldDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":0}`))
	err := DecodeJSONBody(req, &movementBody{})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["type"])
	assert.Equal(t, "must be at least 1", details["amount"])
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=7&bad=x&big=500", nil)

	v, err := ParseQueryInt(req, "limit", 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = ParseQueryInt(req, "missing", 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	_, err = ParseQueryInt(req, "bad", 10, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseQueryInt(req, "big", 10, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeQuery(t *testing.T) {
	assert.Equal(t, "juan perez", SanitizeQuery("  juan \t\n perez  ", 0))
	assert.Equal(t, "Peña", SanitizeQuery("Peña Gómez", 4))
	assert.Equal(t, "a b", SanitizeQuery("a\x00b", 0))
	assert.Equal(t, "", SanitizeQuery("   ", 10))
}

func TestParseLimit(t *testing.T) {
	v, err := ParseLimit(httptest.NewRequest(http.MethodGet, "/", nil), 10, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	v, err = ParseLimit(httptest.NewRequest(http.MethodGet, "/?limit=5000", nil), 10, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, v)

	_, err = ParseLimit(httptest.NewRequest(http.MethodGet, "/?limit=0", nil), 10, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

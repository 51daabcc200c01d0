package validator

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID       string          `json:"id" validate:"required"`
	Title    string          `json:"title" validate:"max=10"`
	Price    decimal.Decimal `json:"price" validate:"gte=0"`
	Quantity int             `json:"quantity" validate:"gte=0"`
}

type batch struct {
	Items []item `json:"items" validate:"max=2,dive"`
	Mode  string `json:"mode" validate:"omitempty,oneof=merge replace"`
}

func TestValidate_Success(t *testing.T) {
	b := batch{Items: []item{{ID: "1", Title: "Laptop", Price: decimal.NewFromInt(10)}}}
	assert.NoError(t, Validate(b))
}

func TestValidate_ReportsJSONPaths(t *testing.T) {
	b := batch{Items: []item{{ID: "1"}, {Title: "Laptop"}}}
	err := Validate(b)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "is required", valErr.Fields()["items[1].id"])
}

func TestValidate_NegativeDecimal(t *testing.T) {
	b := batch{Items: []item{{ID: "1", Price: decimal.RequireFromString("-0.01")}}}
	err := Validate(b)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields()["items[0].price"], "greater than or equal to 0")
}

func TestValidate_NegativeQuantity(t *testing.T) {
	b := batch{Items: []item{{ID: "1", Quantity: -1}}}
	err := Validate(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "items[0].quantity")
}

func TestValidate_SliceMax(t *testing.T) {
	b := batch{Items: []item{{ID: "1"}, {ID: "2"}, {ID: "3"}}}
	err := Validate(b)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must contain at most 2 items", valErr.Fields()["items"])
}

func TestValidate_StringMaxAndOneOf(t *testing.T) {
	b := batch{Items: []item{{ID: "1", Title: "a very long title"}}, Mode: "append"}
	err := Validate(b)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Contains(t, fields["items[0].title"], "at most 10 characters")
	assert.Contains(t, fields["mode"], "one of")
}

func TestDecodeAndValidate_Success(t *testing.T) {
	body := `{"items":[{"id":"1","title":"Laptop","price":"3499.99","quantity":5}]}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))

	var b batch
	err := DecodeAndValidate(httptest.NewRecorder(), req, &b)

	require.NoError(t, err)
	require.Len(t, b.Items, 1)
	assert.True(t, decimal.RequireFromString("3499.99").Equal(b.Items[0].Price))
}

func TestDecodeAndValidate_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)

	var b batch
	err := DecodeAndValidate(httptest.NewRecorder(), req, &b)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{invalid"))

	var b batch
	err := DecodeAndValidate(httptest.NewRecorder(), req, &b)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeAndValidate_ValidationFails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[{"quantity":1}]}`))

	var b batch
	err := DecodeAndValidate(httptest.NewRecorder(), req, &b)

	var valErr *ValidationError
	assert.ErrorAs(t, err, &valErr)
}

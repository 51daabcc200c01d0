package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
	"github.com/gmaxsoft/elasticsearch-project/pkg/httputil"
	"github.com/gmaxsoft/elasticsearch-project/pkg/validator"
)

// MaxImportProducts bounds the number of products accepted by one import request.
const MaxImportProducts = 10000

// Importer rebuilds the index from supplied products or from the configured source.
type Importer interface {
	Import(ctx context.Context, products []domain.Product) (*domain.ImportOutcome, error)
	Load(ctx context.Context) (*domain.ImportOutcome, error)
}

// ImportRequest is the JSON request body for a catalog import.
type ImportRequest struct {
	Products []domain.Product `json:"products" validate:"max=10000,dive"`
}

// ImportHandler handles catalog import requests.
type ImportHandler struct {
	importer Importer
	logger   *slog.Logger
}

// NewImportHandler creates a new import HTTP handler.
func NewImportHandler(importer Importer, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		importer: importer,
		logger:   logger,
	}
}

// Import handles POST /api/import. An empty body reloads the configured source.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	err := validator.DecodeAndValidate(w, r, &req)

	var outcome *domain.ImportOutcome
	switch {
	case errors.Is(err, io.EOF):
		outcome, err = h.importer.Load(r.Context())
	case err != nil:
		httputil.WriteValidationError(w, err)
		return
	default:
		outcome, err = h.importer.Import(r.Context(), req.Products)
	}
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: outcome})
}

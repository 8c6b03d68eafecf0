package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/ezyeats/internal/domain/apperr"
)

// fail maps a domain error to an HTTP error response.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *apperr.ValidationError
		notFound   *apperr.NotFoundError
		state      *apperr.InvalidStateError
		conflict   *apperr.ConflictError
		storage    *apperr.PersistenceError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &state):
		writeError(w, http.StatusConflict, state.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Error())
	case errors.As(err, &storage):
		zctx.From(r.Context()).Error("Storage failure", zap.String("op", storage.Op), zap.Error(storage.Err))
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, please retry")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// customer returns the authenticated customer or writes 401.
func customer(w http.ResponseWriter, r *http.Request) (Customer, bool) {
	c, ok := CustomerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	}
	return c, ok
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"cmdb/services/inventory"
)

const maxBodyBytes = 4 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// respondEngineError maps engine outcomes onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, inventory.ErrMalformedReport), errors.Is(err, inventory.ErrPrincipalRequired):
		respondError(w, http.StatusBadRequest, err)
	case errors.Is(err, inventory.ErrNoPendingAsset):
		respondJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "status": "already resolved"})
	case errors.Is(err, inventory.ErrNotFound):
		respondError(w, http.StatusNotFound, err)
	case errors.Is(err, inventory.ErrTransactionFailure):
		respondError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, err)
	default:
		// Identity conflicts land here: a data integrity fault, not a client error.
		respondError(w, http.StatusInternalServerError, err)
	}
}

func (a *API) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.opts.RequestTimeout)
}

func defaultDuration(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cmdb/services/inventory"
)

type decisionRequest struct {
	Principal string `json:"principal"`
}

type batchRequest struct {
	SNs       []string `json:"sns"`
	Principal string   `json:"principal"`
}

type batchItem struct {
	SN      string     `json:"sn"`
	AssetID *uuid.UUID `json:"asset_id,omitempty"`
	Error   string     `json:"error,omitempty"`
}

type batchResponse struct {
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Items     []batchItem `json:"items"`
}

func (a *API) handleListPending(w http.ResponseWriter, r *http.Request) {
	filter := inventory.PendingFilter{Manufacturer: strings.TrimSpace(r.URL.Query().Get("manufacturer"))}
	if v := r.URL.Query().Get("asset_type"); v != "" {
		t, err := inventory.ParseAssetType(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		filter.AssetType = t
	}

	ctx, cancel := a.withTimeout(r.Context())
	defer cancel()

	pending, err := a.engine.ListPending(ctx, filter)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

func (a *API) handleGetPending(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.withTimeout(r.Context())
	defer cancel()

	pending, err := a.engine.GetPending(ctx, chi.URLParam(r, "sn"))
	if errors.Is(err, inventory.ErrNoPendingAsset) {
		respondError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

func (a *API) handleApprove(w http.ResponseWriter, r *http.Request) {
	sn := chi.URLParam(r, "sn")
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}

	ctx, cancel := a.withTimeout(r.Context())
	defer cancel()

	id, err := a.engine.Approve(ctx, sn, principal)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sn": sn, "asset_id": id})
}

func (a *API) handleReject(w http.ResponseWriter, r *http.Request) {
	sn := chi.URLParam(r, "sn")
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}

	ctx, cancel := a.withTimeout(r.Context())
	defer cancel()

	if err := a.engine.Reject(ctx, sn, principal); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sn": sn, "status": "rejected"})
}

func (a *API) handleApproveMany(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeBatch(w, r)
	if !ok {
		return
	}
	ctx, cancel := a.withTimeout(r.Context())
	defer cancel()

	respondJSON(w, http.StatusOK, toBatchResponse(a.engine.ApproveMany(ctx, req.SNs, req.Principal)))
}

func (a *API) handleRejectMany(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeBatch(w, r)
	if !ok {
		return
	}
	ctx, cancel := a.withTimeout(r.Context())
	defer cancel()

	respondJSON(w, http.StatusOK, toBatchResponse(a.engine.RejectMany(ctx, req.SNs, req.Principal)))
}

// principal reads the deciding principal from the JSON body, falling back
// to the X-CMDB-Principal header. An empty body is allowed.
func (a *API) principal(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req decisionRequest
	if r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err)
			return "", false
		}
	}
	principal := firstNonEmpty(req.Principal, r.Header.Get(headerPrincipal))
	if principal == "" {
		respondError(w, http.StatusBadRequest, inventory.ErrPrincipalRequired)
		return "", false
	}
	return principal, true
}

func (a *API) decodeBatch(w http.ResponseWriter, r *http.Request) (batchRequest, bool) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return req, false
	}
	req.Principal = firstNonEmpty(req.Principal, r.Header.Get(headerPrincipal))
	if req.Principal == "" {
		respondError(w, http.StatusBadRequest, inventory.ErrPrincipalRequired)
		return req, false
	}
	if len(req.SNs) == 0 {
		respondError(w, http.StatusBadRequest, errors.New("sns must not be empty"))
		return req, false
	}
	return req, true
}

func toBatchResponse(res inventory.BatchResult) batchResponse {
	out := batchResponse{Succeeded: res.Succeeded, Failed: res.Failed, Items: make([]batchItem, 0, len(res.Items))}
	for _, item := range res.Items {
		bi := batchItem{SN: item.SN, AssetID: item.AssetID}
		if item.Err != nil {
			bi.Error = item.Err.Error()
		}
		out.Items = append(out.Items, bi)
	}
	return out
}

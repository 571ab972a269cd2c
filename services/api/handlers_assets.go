package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cmdb/services/inventory"
)

const maxPageSize = 1000

func (a *API) handleListAssets(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAssetFilter(r.URL.Query())
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := a.withTimeout(r.Context())
	defer cancel()

	assets, err := a.engine.ListAssets(ctx, filter)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"assets": assets})
}

func (a *API) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid asset id: %w", err))
		return
	}

	ctx, cancel := a.withTimeout(r.Context())
	defer cancel()

	asset, err := a.engine.GetAsset(ctx, id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"asset": asset})
}

func (a *API) handleAssetBySN(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.withTimeout(r.Context())
	defer cancel()

	asset, err := a.engine.FindAssetBySN(ctx, chi.URLParam(r, "sn"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"asset": asset})
}

func (a *API) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := inventory.EventFilter{
		SN:   strings.TrimSpace(q.Get("sn")),
		Type: inventory.EventType(q.Get("event_type")),
	}
	if v := q.Get("asset_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Errorf("invalid asset_id: %w", err))
			return
		}
		filter.AssetID = &id
	}
	limit, err := intParam(q, "limit")
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	filter.Limit = limit

	ctx, cancel := a.withTimeout(r.Context())
	defer cancel()

	events, err := a.engine.ListEvents(ctx, filter)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

func parseAssetFilter(q url.Values) (inventory.AssetFilter, error) {
	filter := inventory.AssetFilter{
		Manufacturer: strings.TrimSpace(q.Get("manufacturer")),
		TimeField:    q.Get("time_field"),
	}
	if v := q.Get("asset_type"); v != "" {
		t, err := inventory.ParseAssetType(v)
		if err != nil {
			return filter, err
		}
		filter.AssetType = t
	}
	switch filter.TimeField {
	case "", "c_time", "m_time":
	default:
		return filter, fmt.Errorf("time_field must be c_time or m_time")
	}

	var err error
	if filter.Since, err = timeParam(q, "since"); err != nil {
		return filter, err
	}
	if filter.Until, err = timeParam(q, "until"); err != nil {
		return filter, err
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && !filter.Until.After(filter.Since) {
		return filter, fmt.Errorf("until must be after since")
	}
	if filter.Limit, err = intParam(q, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = intParam(q, "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

func timeParam(q url.Values, name string) (time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC3339: %w", name, err)
	}
	return t, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	if name == "limit" && n > maxPageSize {
		n = maxPageSize
	}
	return n, nil
}

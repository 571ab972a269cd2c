package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

const (
	headerAgent     = "X-CMDB-Agent"
	headerPrincipal = "X-CMDB-Principal"

	legacyFormField = "asset_data"
)

// handleSubmitReport accepts either a bare report document or an envelope
// of the form {"agent": "...", "report": {...}}.
func (a *API) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	raw, envelopeAgent, err := decodeReport(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	a.submit(w, r, raw, firstNonEmpty(envelopeAgent, r.Header.Get(headerAgent)))
}

// handleLegacyReport serves older collectors, which post the report as a
// JSON string in the asset_data form field.
func (a *API) handleLegacyReport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	data := r.PostFormValue(legacyFormField)
	if data == "" {
		respondError(w, http.StatusBadRequest, fmt.Errorf("%s form field is required", legacyFormField))
		return
	}
	raw, _, err := decodeReport([]byte(data))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	agent := r.Header.Get(headerAgent)
	if agent == "" {
		agent = "agent@" + remoteHost(r)
	}
	a.submit(w, r, raw, agent)
}

func (a *API) submit(w http.ResponseWriter, r *http.Request, raw map[string]any, agent string) {
	ctx, cancel := a.withTimeout(r.Context())
	defer cancel()

	res, err := a.engine.Submit(ctx, raw, agent)
	if err != nil {
		a.log.Debug().Err(err).Str("agent", agent).Msg("report not accepted")
		respondEngineError(w, err)
		return
	}
	status := http.StatusOK
	if res.Staged && !res.Refresh {
		status = http.StatusAccepted
	}
	respondJSON(w, status, res)
}

func decodeReport(body []byte) (map[string]any, string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, "", fmt.Errorf("decode report: %w", err)
	}
	if doc == nil {
		return nil, "", errors.New("report must be a JSON object")
	}
	inner, ok := doc["report"].(map[string]any)
	if !ok {
		return doc, "", nil
	}
	agent, _ := doc["agent"].(string)
	return inner, strings.TrimSpace(agent), nil
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/company-brochure/internal/db"
	"github.com/jonathan/company-brochure/internal/pipeline"
	"github.com/jonathan/company-brochure/internal/types"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 64 << 10

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ModelOption describes a model for UI dropdowns.
type ModelOption struct {
	Key  types.Model `json:"key"`
	Name string      `json:"name"`
}

// OptionsResponse lists the selectable models and tones with request limits.
type OptionsResponse struct {
	Models   []ModelOption      `json:"models"`
	Tones    []types.ToneOption `json:"tones"`
	Defaults RequestDefaults    `json:"defaults"`
}

// RequestDefaults are the defaults and bounds of a GenerationRequest.
type RequestDefaults struct {
	Model           types.Model `json:"model,omitempty"`
	Tone            types.Tone  `json:"tone"`
	Temperature     float64     `json:"temperature"`
	MaxContentChars int         `json:"max_content_chars"`
	MinContentChars int         `json:"min_content_chars"`
	MaxAllowedChars int         `json:"max_allowed_chars"`
}

// SuggestLinksRequest is the body of POST /links.
type SuggestLinksRequest struct {
	BaseURL     string `json:"base_url"`
	CompanyName string `json:"company_name"`
}

type progressPayload struct {
	Stage   pipeline.State `json:"stage"`
	Message string         `json:"message"`
}

type chunkPayload struct {
	Text string `json:"text"`
}

// terminalPayload is the data of the complete, failed and cancelled events.
type terminalPayload struct {
	SessionID uuid.UUID               `json:"session_id"`
	Status    pipeline.State          `json:"status"`
	Message   string                  `json:"message"`
	Kind      string                  `json:"kind,omitempty"`
	Stage     pipeline.State          `json:"stage,omitempty"`
	Artifact  *types.BrochureArtifact `json:"artifact,omitempty"`
}

// terminalEvent maps a terminal state to its SSE event name.
func terminalEvent(status pipeline.State) string {
	switch status {
	case pipeline.StateComplete:
		return "complete"
	case pipeline.StateCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleOptions lists the configured models and the tones.
func (s *Server) handleOptions(w http.ResponseWriter, _ *http.Request) {
	resp := OptionsResponse{
		Models: []ModelOption{},
		Tones:  types.ToneOptions(),
		Defaults: RequestDefaults{
			Tone:            types.ToneProfessional,
			Temperature:     types.DefaultTemperature,
			MaxContentChars: types.DefaultMaxContentChars,
			MinContentChars: types.MinMaxContentChars,
			MaxAllowedChars: types.MaxMaxContentChars,
		},
	}
	for _, m := range s.engine.Models() {
		resp.Models = append(resp.Models, ModelOption{Key: m, Name: m.DisplayName()})
	}
	if len(resp.Models) > 0 {
		resp.Defaults.Model = resp.Models[0].Key
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleBrochureStream runs a generation session and streams its events.
// The session is cancelled when the client disconnects.
func (s *Server) handleBrochureStream(w http.ResponseWriter, r *http.Request) {
	// Zero is a valid temperature, so the default is filled before decoding.
	req := types.GenerationRequest{Temperature: types.DefaultTemperature}
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	session, err := s.engine.NewSession(req)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, describeValidation(err))
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	log := s.log.WithFields(logrus.Fields{
		"session_id": session.ID().String(),
		"url":        session.Request().BaseURL,
	})
	log.Info("brochure stream started")

	_, err = session.Run(r.Context(), func(ev pipeline.Event) {
		var writeErr error
		switch ev.Kind {
		case pipeline.EventProgress:
			writeErr = sse.WriteEvent("progress", progressPayload{Stage: ev.Stage, Message: ev.Message})
		case pipeline.EventChunk:
			writeErr = sse.WriteEvent("chunk", chunkPayload{Text: ev.Chunk})
		case pipeline.EventTerminal:
			payload := terminalPayload{
				SessionID: session.ID(),
				Status:    ev.Outcome.Status,
				Message:   ev.Message,
				Artifact:  ev.Outcome.Artifact,
			}
			if f := ev.Outcome.Err; f != nil {
				payload.Kind = f.Kind
				payload.Stage = f.Stage
			}
			writeErr = sse.WriteEvent(terminalEvent(ev.Outcome.Status), payload)
			log.WithField("status", ev.Outcome.Status).Info("brochure stream finished")
		}
		if writeErr != nil {
			// The request context is cancelled once the client is gone.
			log.WithError(writeErr).Debug("failed to write stream event")
		}
	})
	if err != nil {
		sse.WriteError(err.Error())
	}
}

// handleSuggestLinks returns the link selection for a homepage.
func (s *Server) handleSuggestLinks(w http.ResponseWriter, r *http.Request) {
	var req SuggestLinksRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	baseURL, err := types.NormalizeBaseURL(req.BaseURL)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	selection, err := s.engine.SuggestLinks(r.Context(), baseURL, req.CompanyName)
	if err != nil {
		s.log.WithError(err).WithField("url", baseURL).Warn("link suggestion failed")
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, selection)
}

// handleGetBrochure returns a stored artifact.
func (s *Server) handleGetBrochure(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid brochure ID")
		return
	}

	artifact, err := s.store.GetBrochure(r.Context(), id)
	if err != nil {
		s.log.WithError(err).WithField("session_id", idStr).Error("failed to load brochure")
		s.errorResponse(w, http.StatusInternalServerError, "failed to load brochure")
		return
	}
	if artifact == nil {
		nf := &ErrNotFound{Resource: "brochure", ID: idStr}
		s.errorResponse(w, HTTPStatus(nf), nf.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, artifact)
}

// handleListBrochures lists stored brochures, optionally for one company.
func (s *Server) handleListBrochures(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			s.errorResponse(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxListLimit))
			return
		}
		limit = n
	}

	company := r.URL.Query().Get("company")
	summaries, err := s.store.ListBrochures(r.Context(), company, limit)
	if err != nil {
		s.log.WithError(err).WithField("company", company).Error("failed to list brochures")
		s.errorResponse(w, http.StatusInternalServerError, "failed to list brochures")
		return
	}
	if summaries == nil {
		summaries = []db.BrochureSummary{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"brochures": summaries})
}

// handleClearCache drops every cached page.
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.engine.ClearCache(r.Context())
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":     "cleared",
		"cleared_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// decodeJSON decodes a bounded request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

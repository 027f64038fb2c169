package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/c4pt0r/sqlground/internal/runner"
)

type errorBody struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Index     *int   `json:"index,omitempty"`
	Statement string `json:"statement,omitempty"`
}

type response map[string]any

// executeRequest accepts both the mode/script names and the panel/sql names
// used by older clients.
type executeRequest struct {
	Mode     string `json:"mode"`
	Panel    string `json:"panel"`
	Script   string `json:"script"`
	SQL      string `json:"sql"`
	Database string `json:"database"`
}

func (req executeRequest) mode() string {
	if req.Mode != "" {
		return req.Mode
	}
	return req.Panel
}

func (req executeRequest) script() string {
	if req.Script != "" {
		return req.Script
	}
	return req.SQL
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, response{"ok": false, "error": &errorBody{Message: msg}})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, response{"ok": true})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	database := r.URL.Query().Get("database")
	if database == "" {
		database = s.database
	}

	tree, err := s.catalog.Tree(r.Context(), database)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("database", database).Msg("failed to load schema")
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, response{"ok": true, "schema": tree})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "Request body too large.")
			return
		}
		writeError(w, r, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	mode, err := runner.ParseMode(req.mode())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid mode.")
		return
	}

	database := req.Database
	if database == "" {
		database = s.database
	}

	res, err := s.runner.Run(r.Context(), runner.Request{
		Mode:            mode,
		Script:          req.script(),
		Database:        database,
		EnforceReadOnly: true,
	})
	if mode == runner.SchemaDefinition || mode == runner.AccessControl {
		s.catalog.Invalidate()
	}

	if err != nil {
		logger.Info().Err(err).Str("mode", mode.String()).Str("database", database).Msg("script failed")
		writeJSON(w, r, http.StatusBadRequest, response{"ok": false, "results": outcomes(res), "error": errorFrom(err)})
		return
	}
	writeJSON(w, r, http.StatusOK, response{"ok": true, "results": outcomes(res)})
}

// outcomes never returns nil so a result list is always rendered as an
// array.
func outcomes(res *runner.Result) []runner.Outcome {
	if res == nil || res.Outcomes == nil {
		return []runner.Outcome{}
	}
	return res.Outcomes
}

func errorFrom(err error) *errorBody {
	var runErr *runner.Error
	if !errors.As(err, &runErr) {
		return &errorBody{Message: err.Error()}
	}
	body := &errorBody{Message: runErr.Message, Code: runErr.Code}
	if runErr.Located() {
		idx := runErr.Index
		body.Index = &idx
		body.Statement = runErr.Statement
	}
	return body
}

package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/teranos/bkingest/errors"
	"github.com/teranos/bkingest/ingest"
	"github.com/teranos/bkingest/logger"
)

// errorBody is the JSON shape of every failed request
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Stage string `json:"stage,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, log *zap.SugaredLogger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debugw("Failed to encode response", logger.FieldError, err)
	}
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, log *zap.SugaredLogger, status int, message string) {
	writeJSON(w, log, status, errorBody{Error: message})
}

// writeIngestError maps a registration failure to a status code and body
func writeIngestError(w http.ResponseWriter, log *zap.SugaredLogger, err error) {
	body := errorBody{Error: err.Error()}
	var ie *ingest.Error
	if errors.As(err, &ie) {
		body.Kind = ie.Kind.String()
		body.Stage = string(ie.Stage)
	}
	writeJSON(w, log, statusFor(ingest.KindOf(err)), body)
}

// statusFor maps error kinds: document faults are 4xx, store faults 5xx
func statusFor(kind ingest.Kind) int {
	switch kind {
	case ingest.MalformedXML, ingest.UnknownDocumentKind:
		return http.StatusBadRequest
	case ingest.FilesNotRegistered, ingest.UnknownFileType, ingest.UnknownEventType,
		ingest.MissingEventTypeID, ingest.InvalidRunNumber, ingest.RunNumberMissing,
		ingest.ReplicaTargetNotFound:
		return http.StatusUnprocessableEntity
	case ingest.KindNone:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

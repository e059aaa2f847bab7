package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"tracefood/internal/auth"
	"tracefood/pkg/domain"
)

// Transport-level error kinds. Domain kinds come from domain.ErrorKind.
const (
	KindMalformedRequest = "MalformedRequest"
	KindUnauthenticated  = "Unauthenticated"
	KindUnknownMethod    = "UnknownMethod"
	KindInternal         = "internal"
)

var kindStatus = map[string]int{
	"DuplicateLot":          http.StatusConflict,
	"AlreadyInitialized":    http.StatusConflict,
	"LotNotFound":           http.StatusNotFound,
	"UnauthorizedActor":     http.StatusForbidden,
	"MisconfiguredRegistry": http.StatusUnprocessableEntity,
	"RuleViolation":         http.StatusUnprocessableEntity,
	"InvalidArgument":       http.StatusBadRequest,
	KindMalformedRequest:    http.StatusBadRequest,
	KindUnauthenticated:     http.StatusUnauthorized,
	KindUnknownMethod:       http.StatusNotFound,
}

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type requestError struct {
	kind string
	err  error
}

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func malformed(err error) error { return requestError{kind: KindMalformedRequest, err: err} }

func classify(err error) (string, int) {
	var re requestError
	if errors.As(err, &re) {
		return re.kind, kindStatus[re.kind]
	}
	if errors.Is(err, auth.ErrMissingToken) || errors.Is(err, auth.ErrInvalidToken) {
		return KindUnauthenticated, http.StatusUnauthorized
	}
	kind := domain.ErrorKind(err)
	if status, ok := kindStatus[kind]; ok {
		return kind, status
	}
	return KindInternal, http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) (string, int) {
	kind, status := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, ErrorBody{Error: msg, Kind: kind})
	return kind, status
}

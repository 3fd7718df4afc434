package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"

	"go.uber.org/zap"

	"github.com/parcabul/broker/internal/pipeline"
	"github.com/parcabul/broker/internal/store"
)

const maxBodyBytes = 1 << 20

type failure struct {
	OK      bool                  `json:"ok"`
	Error   string                `json:"error"`
	Details []pipeline.FieldError `json:"details,omitempty"`
	Status  int                   `json:"upstream_status,omitempty"`
	Detail  string                `json:"upstream_detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, failure{Error: msg})
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *pipeline.ValidationError
		ue *pipeline.UpstreamError
		pe *pipeline.PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, failure{Error: "validation failed", Details: ve.Fields})
	case errors.As(err, &ue):
		writeJSON(w, http.StatusBadGateway, failure{
			Error:  "catalog request failed",
			Status: ue.Status(),
			Detail: ue.Detail(),
		})
	case errors.As(err, &pe):
		logError(r, "api: request not recorded", err)
		writeFail(w, http.StatusInternalServerError, "request could not be recorded")
	case errors.Is(err, store.ErrDuplicate):
		writeFail(w, http.StatusConflict, "already exists")
	case errors.Is(err, store.ErrNotFound):
		writeFail(w, http.StatusNotFound, "not found")
	default:
		logError(r, "api: unexpected error", err)
		writeFail(w, http.StatusInternalServerError, "unexpected error")
	}
}

func logError(r *http.Request, msg string, err error) {
	zap.L().Error(msg,
		zap.String("request_id", RequestIDFrom(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
}

// decode reads a JSON body into v. The second result is false when a 400
// has already been written.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeFail(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		var wrongType *json.UnmarshalTypeError
		if errors.As(err, &wrongType) {
			writeError(w, r, typeError(wrongType))
			return false
		}
		writeFail(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

// typeError names the field whose JSON value has the wrong type, e.g. a
// quoted "2020" where a year number is expected.
func typeError(e *json.UnmarshalTypeError) *pipeline.ValidationError {
	return &pipeline.ValidationError{Fields: []pipeline.FieldError{{
		Field:   e.Field,
		Rule:    "type",
		Message: fmt.Sprintf("must be a %s, got %s", jsonKind(e.Type), e.Value),
	}}}
}

func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return t.Kind().String()
	}
}

package apiutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Pagination mirrors the list-endpoint envelope.
type Pagination struct {
	Page       int64 `json:"page"`
	Limit      int64 `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

func NewPagination(page, limit, total int64) Pagination {
	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}

type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// RespondData writes the standard success envelope.
func RespondData(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, envelope{Success: true, Data: data}); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// RespondList writes a success envelope with pagination.
func RespondList(w http.ResponseWriter, status int, data any, pagination Pagination) {
	if err := WriteJSON(w, status, envelope{Success: true, Data: data, Pagination: &pagination}); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON list response")
	}
}

// RespondError writes the standard failure envelope.
func RespondError(w http.ResponseWriter, status int, message string) {
	if err := WriteJSON(w, status, envelope{Success: false, Error: message}); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON error response")
	}
}

// RespondRejection writes a failure envelope that still carries data, for
// business-rule rejections the client branches on.
func RespondRejection(w http.ResponseWriter, status int, message string, data any) {
	if err := WriteJSON(w, status, envelope{Success: false, Error: message, Data: data}); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON rejection response")
	}
}

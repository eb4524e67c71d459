package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lorawan-framesec/internal/auth"
	"github.com/lorawan-server/lorawan-framesec/internal/framesec"
	"github.com/lorawan-server/lorawan-framesec/internal/models"
)

const maxBodySize = 64 << 10

// ========== Auth handlers ==========

// HandleToken exchanges client credentials for an access token
func (s *RESTServer) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req models.TokenRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	token, err := s.auth.Authenticate(req.ClientID, req.ClientSecret)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		log.Warn().Str("client_id", req.ClientID).Msg("Token request with invalid credentials")
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate token")
		s.respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	s.respondJSON(w, http.StatusOK, models.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.config.JWT.AccessTokenTTL.Seconds()),
	})
}

// ========== Frame handlers ==========

// HandleSeal encrypts and authenticates a payload
func (s *RESTServer) HandleSeal(w http.ResponseWriter, r *http.Request) {
	var req models.SealRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	resp, err := s.service.Seal(r.Context(), &req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// HandleOpen verifies and decrypts a received frame
func (s *RESTServer) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var req models.OpenRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	resp, err := s.service.Open(r.Context(), &req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// ========== System handlers ==========

// HandleHealth health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": s.config.Server.Name,
		"version": s.config.Server.Version,
		"time":    time.Now(),
	})
}

// decodeRequest decodes and validates a JSON body, writing the error response itself
func (s *RESTServer) decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := s.validator.Validate(v); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}

	return true
}

// respondServiceError maps service errors to status codes
func (s *RESTServer) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, framesec.ErrBadRequest):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, framesec.ErrUnknownDevice):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, framesec.ErrAuthentication):
		s.respondError(w, http.StatusUnprocessableEntity, "frame authentication failed")
	default:
		log.Error().
			Err(err).
			Str("path", r.URL.Path).
			Str("client_id", clientID(r)).
			Msg("Frame request failed")
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, models.ErrorResponse{Error: message})
}

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/dmitrijs2005/filegate/internal/common"
	"github.com/dmitrijs2005/filegate/internal/server/models"
	"github.com/dmitrijs2005/filegate/internal/server/services"
)

const (
	uploadField        = "file"
	defaultContentType = "application/octet-stream"
	maxJSONBody        = 1 << 20
)

type messageResponse struct {
	Message string `json:"message"`
	OTP     string `json:"otp,omitempty"`
}

type verifyRequest struct {
	Identity string `json:"user_id"`
	OTP      string `json:"otp"`
}

type resendRequest struct {
	Identity string `json:"user_id"`
}

type loginRequest struct {
	Identity string `json:"user_id"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string         `json:"access_token"`
	User        models.Profile `json:"user"`
}

type uploadResponse struct {
	Message string `json:"message"`
	Key     string `json:"key"`
}

type listResponse struct {
	Files []string `json:"files"`
}

type downloadResponse struct {
	URL string `json:"url"`
}

type deleteRequest struct {
	Key string `json:"key"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := s.users.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "otp_sent", OTP: out.Code})
}

func (s *Server) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.users.VerifyOTP(r.Context(), req.Identity, req.OTP); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "verified"})
}

func (s *Server) resendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := s.users.ResendOTP(r.Context(), req.Identity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "otp_sent", OTP: out.Code})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.users.Login(r.Context(), req.Identity, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{AccessToken: res.AccessToken, User: res.Profile})
}

// upload streams the first "file" part of a multipart body to storage.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: multipart body", common.ErrInvalidField))
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: multipart body", common.ErrInvalidField))
			return
		}
		if part.FormName() != uploadField {
			part.Close()
			continue
		}

		contentType := part.Header.Get("Content-Type")
		if _, _, err := mime.ParseMediaType(contentType); err != nil {
			contentType = defaultContentType
		}

		key, err := s.files.Upload(r.Context(), identity, part.FileName(), contentType, part)
		part.Close()
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, uploadResponse{Message: "uploaded", Key: key})
		return
	}

	s.writeError(w, r, fmt.Errorf("%w: %s", common.ErrMissingField, uploadField))
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	keys, err := s.files.List(r.Context(), identity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}

	writeJSON(w, http.StatusOK, listResponse{Files: keys})
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	url, err := s.files.Download(r.Context(), identity, r.URL.Query().Get("key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, downloadResponse{URL: url})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	var req deleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.files.Delete(r.Context(), identity, req.Key); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "deleted"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body", common.ErrMissingField)
		}
		return fmt.Errorf("%w: request body", common.ErrInvalidField)
	}
	return nil
}

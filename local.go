package authcore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// readFields collects string fields from a JSON or form-encoded body.
func readFields(r *http.Request) (map[string]string, error) {
	out := map[string]string{}
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("error parsing form")
		}
		for k := range r.PostForm {
			out[k] = r.PostForm.Get(k)
		}
		return out, nil
	}
	if r.Body == nil || r.ContentLength == 0 {
		return out, nil
	}
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("invalid post body")
	}
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

func (h *Handler) parseBody(w http.ResponseWriter, r *http.Request) (map[string]string, bool) {
	fields, err := readFields(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return fields, true
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.parseBody(w, r)
	if !ok {
		return
	}
	account, err := h.Service.Register(r.Context(), Registration{
		Email:    fields["email"],
		Password: fields["password"],
		Name:     fields["name"],
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "success", "user": account})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.parseBody(w, r)
	if !ok {
		return
	}
	email, password := fields["email"], fields["password"]
	if err := ValidateEmail(email); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if password == "" {
		writeValidationError(w, NewAuthError(ErrCodeMissingField, "Password is required", "password"))
		return
	}

	account, err := h.Service.Login(r.Context(), email, password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := h.Binder.Bind(r.Context(), account); err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "user": account.Public()})
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Service.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "Email verified successfully!"})
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.parseBody(w, r)
	if !ok {
		return
	}
	err := h.Service.ForgotPassword(r.Context(), fields["email"])
	if errors.Is(err, ErrAccountNotVerified) {
		writeError(w, http.StatusBadRequest, "Email not verified.")
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "If that email is registered, a reset link has been sent."})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.parseBody(w, r)
	if !ok {
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = fields["token"]
	}
	if err := h.Service.ResetPassword(r.Context(), token, fields["password"]); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Password has been reset successfully."})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.parseBody(w, r)
	if !ok {
		return
	}
	account := AccountFromContext(r.Context())
	err := h.Service.ChangePassword(r.Context(), account.ID, fields["currentPassword"], fields["newPassword"])
	if errors.Is(err, ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "Current password is incorrect.")
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Password changed successfully."})
}

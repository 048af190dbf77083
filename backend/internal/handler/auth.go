package handler

import (
	"net/http"

	"github.com/parley-dev/parley/shared/api"
	"github.com/parley-dev/parley/shared/domain"
	"github.com/parley-dev/parley/shared/utils"
)

const tokenTypeBearer = "bearer"

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body api.CredentialsRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	_, token, err := h.auth.Register(r.Context(), domain.Credentials{Email: body.Email, Password: body.Password})
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	h.setAccessCookie(w, token)
	writeJSONStatus(w, http.StatusCreated, api.TokenResponse{AccessToken: token, TokenType: tokenTypeBearer})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body api.LoginRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	_, token, err := h.auth.Login(r.Context(), domain.Credentials{Email: body.Email, Password: body.Password})
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	h.setAccessCookie(w, token)
	writeJSON(w, api.TokenResponse{AccessToken: token, TokenType: tokenTypeBearer})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearAccessCookie(w)
	writeJSON(w, api.MessageResponse{Message: "Logged out"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	u, err := h.auth.Me(r.Context(), user.Id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSON(w, api.UserResponse{Id: u.Id, Email: u.Email, CreatedAt: u.CreatedAt})
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	if err := h.auth.DeleteAccount(r.Context(), user.Id); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	h.clearAccessCookie(w)
	writeJSON(w, api.MessageResponse{Message: "Account deleted"})
}

// UpdateProfile changes the account email and re-issues the access token.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var body api.UpdateProfileRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	u, token, err := h.auth.UpdateEmail(r.Context(), user.Id, body.Email)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	h.setAccessCookie(w, token)
	writeJSON(w, api.ProfileResponse{
		UserResponse: api.UserResponse{Id: u.Id, Email: u.Email, CreatedAt: u.CreatedAt},
		AccessToken:  token,
		TokenType:    tokenTypeBearer,
	})
}

// ChangePassword revokes older tokens, the response carries a fresh one.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var body api.ChangePasswordRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	token, err := h.auth.ChangePassword(r.Context(), user.Id, body.OldPassword, body.NewPassword)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	h.setAccessCookie(w, token)
	writeJSON(w, api.TokenResponse{AccessToken: token, TokenType: tokenTypeBearer})
}

// ForgotPassword answers the same way whether or not the address is registered.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body api.ForgotPasswordRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	if err := h.auth.ForgotPassword(r.Context(), body.Email); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSON(w, api.MessageResponse{Message: "If the address is registered, a reset link has been sent"})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body api.ResetPasswordRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	if err := h.auth.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSON(w, api.MessageResponse{Message: "Password updated, you can login now"})
}

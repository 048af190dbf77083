package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/parley-dev/parley/shared/config"
	"github.com/parley-dev/parley/shared/domain"
	"github.com/parley-dev/parley/shared/errors"
	"github.com/parley-dev/parley/shared/logger"
	"github.com/parley-dev/parley/shared/utils"
	"golang.org/x/crypto/bcrypt"
)

const allConversations domain.AssistantId = -1

type AuthService interface {
	Register(ctx context.Context, creds domain.Credentials) (domain.User, string, error)
	Login(ctx context.Context, creds domain.Credentials) (domain.User, string, error)
	Me(ctx context.Context, id domain.UserId) (domain.User, error)
	UpdateEmail(ctx context.Context, id domain.UserId, email domain.Email) (domain.User, string, error)
	ChangePassword(ctx context.Context, id domain.UserId, oldPassword, newPassword domain.Password) (string, error)
	ForgotPassword(ctx context.Context, email domain.Email) error
	ResetPassword(ctx context.Context, token string, newPassword domain.Password) error
	DeleteAccount(ctx context.Context, id domain.UserId) error
}

type AuthStorage interface {
	SaveUser(ctx context.Context, user domain.User) (domain.UserId, error)
	UserByEmail(ctx context.Context, email domain.Email) (domain.User, error)
	UserById(ctx context.Context, id domain.UserId) (domain.User, error)
	UpdatePassword(ctx context.Context, id domain.UserId, passHash string) error
	UpdateEmail(ctx context.Context, id domain.UserId, email domain.Email) error
	DeleteUser(ctx context.Context, id domain.UserId) error
	SavePasswordReset(ctx context.Context, reset domain.PasswordReset) error
	ConsumePasswordReset(ctx context.Context, tokenHash string) (domain.PasswordReset, error)

	ListAssistants(ctx context.Context, owner domain.UserId) ([]domain.Assistant, error)
	ListFiles(ctx context.Context, owner domain.UserId) ([]domain.FileRecord, error)
	ConversationThreads(ctx context.Context, owner domain.UserId, assistant domain.AssistantId) ([]string, error)
}

type Email interface {
	Send(recipientEmail, subject, body string) error
	IsCorrect(email domain.Email) error
}

type Jwt interface {
	NewToken(user domain.User) (string, error)
}

// Revoker makes earlier tokens of a user invalid right away.
type Revoker interface {
	Revoke(userId domain.UserId, at time.Time)
}

type Auth struct {
	storage AuthStorage
	email   Email
	jwt     Jwt
	revoker Revoker
	reaper  *Reaper
	cfg     *config.Public
}

func NewAuth(storage AuthStorage, email Email, jwt Jwt, revoker Revoker, reaper *Reaper, cfg *config.Public) *Auth {
	return &Auth{
		storage: storage,
		email:   email,
		jwt:     jwt,
		revoker: revoker,
		reaper:  reaper,
		cfg:     cfg,
	}
}

func (a *Auth) Register(ctx context.Context, creds domain.Credentials) (domain.User, string, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if err := a.email.IsCorrect(email); err != nil {
		return domain.User{}, "", err
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Log.Error("failed to hash password", "error", err)
		return domain.User{}, "", err
	}
	id, err := a.storage.SaveUser(ctx, domain.User{Email: email, PassHash: string(passHash)})
	if err != nil {
		return domain.User{}, "", err
	}
	user, err := a.storage.UserById(ctx, id)
	if err != nil {
		return domain.User{}, "", err
	}

	token, err := a.jwt.NewToken(user)
	if err != nil {
		logger.Log.Error("failed to create jwt token", "user_id", id, "error", err)
		return domain.User{}, "", err
	}
	logger.Log.Info("user registered", "user_id", id)
	return user, token, nil
}

// Login returns the user and a fresh access token. Unknown email and wrong
// password produce the same error.
func (a *Auth) Login(ctx context.Context, creds domain.Credentials) (domain.User, string, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if err := a.email.IsCorrect(email); err != nil {
		return domain.User{}, "", err
	}

	user, err := a.storage.UserByEmail(ctx, email)
	if err != nil {
		// to not leak existing users
		if errors.IsNotFound(err) {
			return domain.User{}, "", invalidCredentials()
		}
		return domain.User{}, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PassHash), []byte(creds.Password)); err != nil {
		logger.Log.Debug("password verification failed", "user_id", user.Id)
		return domain.User{}, "", invalidCredentials()
	}

	token, err := a.jwt.NewToken(user)
	if err != nil {
		logger.Log.Error("failed to create jwt token", "user_id", user.Id, "error", err)
		return domain.User{}, "", err
	}
	return user, token, nil
}

func invalidCredentials() error {
	return &errors.ErrorWithStatusCode{Message: "Invalid credentials", StatusCode: http.StatusUnauthorized}
}

func (a *Auth) Me(ctx context.Context, id domain.UserId) (domain.User, error) {
	return a.storage.UserById(ctx, id)
}

// UpdateEmail changes the login address. Tokens carry the address, so a new
// one is issued. Keeping the current address is a no-op.
func (a *Auth) UpdateEmail(ctx context.Context, id domain.UserId, email domain.Email) (domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := a.email.IsCorrect(email); err != nil {
		return domain.User{}, "", err
	}
	user, err := a.storage.UserById(ctx, id)
	if err != nil {
		return domain.User{}, "", err
	}
	if user.Email != email {
		if err := a.storage.UpdateEmail(ctx, id, email); err != nil {
			return domain.User{}, "", err
		}
		user.Email = email
		logger.Log.Info("email changed", "user_id", id)
	}

	token, err := a.jwt.NewToken(user)
	if err != nil {
		logger.Log.Error("failed to create jwt token", "user_id", id, "error", err)
		return domain.User{}, "", err
	}
	return user, token, nil
}

// ChangePassword revokes every token issued so far and returns a new one.
func (a *Auth) ChangePassword(ctx context.Context, id domain.UserId, oldPassword, newPassword domain.Password) (string, error) {
	user, err := a.storage.UserById(ctx, id)
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PassHash), []byte(oldPassword)); err != nil {
		return "", errors.BadRequest("Current password is incorrect")
	}
	if err := a.setPassword(ctx, id, newPassword); err != nil {
		return "", err
	}
	return a.jwt.NewToken(user)
}

// ForgotPassword always succeeds for a well formed address so callers cannot
// probe for accounts. The mail goes out in the background, when delivery fails
// the link is logged instead.
func (a *Auth) ForgotPassword(ctx context.Context, email domain.Email) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := a.email.IsCorrect(email); err != nil {
		return err
	}
	user, err := a.storage.UserByEmail(ctx, email)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	}

	token := utils.GenerateResetToken()
	err = a.storage.SavePasswordReset(ctx, domain.PasswordReset{
		UserId:    user.Id,
		TokenHash: utils.HashToken(token),
		ExpiresAt: time.Now().UTC().Add(a.cfg.PasswordResetTTL),
	})
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(a.cfg.FrontendURL, "/"), token)
	body := fmt.Sprintf(`
		Hello,

		Use the link below to choose a new password. It expires in %s.

		%s

		If you did not request this, please ignore this email.
	`, a.cfg.PasswordResetTTL, link)

	go func() {
		if err := a.email.Send(email, "Reset your password", body); err != nil {
			logger.Log.Warn("reset email delivery failed, falling back to log", "user_id", user.Id, "link", link, "error", err)
		}
	}()
	return nil
}

func (a *Auth) ResetPassword(ctx context.Context, token string, newPassword domain.Password) error {
	reset, err := a.storage.ConsumePasswordReset(ctx, utils.HashToken(token))
	if err != nil {
		if errors.IsNotFound(err) {
			return errors.BadRequest("Reset link is invalid or expired")
		}
		return err
	}
	return a.setPassword(ctx, reset.UserId, newPassword)
}

func (a *Auth) setPassword(ctx context.Context, id domain.UserId, password domain.Password) error {
	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Log.Error("failed to hash password", "error", err)
		return err
	}
	if err := a.storage.UpdatePassword(ctx, id, string(passHash)); err != nil {
		return err
	}
	a.revoker.Revoke(id, time.Now())
	logger.Log.Info("password changed", "user_id", id)
	return nil
}

// DeleteAccount removes the user and everything it owns, then releases the
// external objects those rows referenced.
func (a *Auth) DeleteAccount(ctx context.Context, id domain.UserId) error {
	user, err := a.storage.UserById(ctx, id)
	if err != nil {
		return err
	}
	assistants, err := a.storage.ListAssistants(ctx, id)
	if err != nil {
		return err
	}
	threads, err := a.storage.ConversationThreads(ctx, id, allConversations)
	if err != nil {
		return err
	}
	files, err := a.storage.ListFiles(ctx, id)
	if err != nil {
		return err
	}

	if err := a.storage.DeleteUser(ctx, id); err != nil {
		return err
	}
	a.revoker.Revoke(id, time.Now())

	handles := make([]ExternalHandle, 0, 2*len(assistants)+len(threads)+len(files)+1)
	for _, as := range assistants {
		handles = append(handles,
			ExternalHandle{Kind: domain.HandleAssistant, Handle: as.ExternalHandle},
			ExternalHandle{Kind: domain.HandleThread, Handle: as.ThreadHandle},
		)
	}
	for _, t := range threads {
		handles = append(handles, ExternalHandle{Kind: domain.HandleThread, Handle: t})
	}
	for _, f := range files {
		handles = append(handles, ExternalHandle{Kind: domain.HandleFile, Handle: f.FileId})
	}
	handles = append(handles, ExternalHandle{Kind: domain.HandleThread, Handle: user.DefaultThreadHandle})
	a.reaper.ReleaseAll(ctx, handles)

	logger.Log.Info("account deleted", "user_id", id, "external_handles", len(handles))
	return nil
}

/*
Package handler provides the HTTP handlers and routing for the dmchat server.
*/
package handler

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"dmchat/internal/app/user"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/randx"
	"dmchat/internal/pkg/req"
	"dmchat/internal/pkg/resp"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 72
	maxNameLen     = 50
)

type SignupInput struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignup creates an account and starts a session for it.
func HandleSignup(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input SignupInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		input.FullName = strings.TrimSpace(input.FullName)
		input.Email = strings.TrimSpace(input.Email)

		if input.FullName == "" || utf8.RuneCountInString(input.FullName) > maxNameLen {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}
		if _, err := mail.ParseAddress(input.Email); err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		// bcrypt ignores everything past 72 bytes.
		if utf8.RuneCountInString(input.Password) < minPasswordLen || len(input.Password) > maxPasswordLen {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidPassword))
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrUnknown, err))
			return
		}

		account, err := deps.Users.Create(r.Context(), user.NewAccount{
			Email:        input.Email,
			FullName:     input.FullName,
			PasswordHash: string(hashedPassword),
		})
		if err != nil {
			if errors.Is(err, user.ErrDuplicate) {
				logx.Warn("Signup conflict: email already registered.")
				resp.RespondError(w, r, errs.NewError(errs.ErrUserAlreadyExists))
				return
			}

			resp.RespondError(w, r, errs.Wrap(errs.ErrUnknown, err))
			return
		}

		if !startSession(w, r, deps, account.ID) {
			return
		}

		resp.RespondCreated(w, r, http.StatusCreated, accountView(account))
	}
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin verifies credentials and starts a session.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		account, err := deps.Users.GetByEmail(r.Context(), strings.TrimSpace(input.Email))
		if err != nil {
			if !errors.Is(err, user.ErrNotFound) {
				resp.RespondError(w, r, errs.Wrap(errs.ErrUnknown, err))
				return
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(input.Password)); err != nil {
			logx.Warn("Login: password mismatch.", "user_id", account.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if !startSession(w, r, deps, account.ID) {
			return
		}

		resp.RespondSuccess(w, r, accountView(account))
	}
}

// HandleLogout clears the session cookie. Open websockets stay up until they close.
func HandleLogout(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwt.ClearSessionCookie(w, !deps.Config.IsDevelopment())
		resp.RespondSuccess(w, r, nil)
	}
}

// HandleCheckAuth returns the identity behind the current session.
func HandleCheckAuth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := currentIdentity(w, r, deps)
		if !ok {
			return
		}

		resp.RespondSuccess(w, r, identity)
	}
}

// HandleBlockUser adds the target to the caller's block list.
func HandleBlockUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := jwt.GetPayloadFromContext(r).ID
		target := chi.URLParam(r, "userId")

		if !randx.IsValidID(target) || target == me {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if err := deps.Users.Block(r.Context(), me, target); err != nil {
			if errors.Is(err, user.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}
			resp.RespondError(w, r, errs.Wrap(errs.ErrUnknown, err))
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

// HandleUnblockUser removes the target from the caller's block list.
func HandleUnblockUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := jwt.GetPayloadFromContext(r).ID
		target := chi.URLParam(r, "userId")

		if !randx.IsValidID(target) || target == me {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if err := deps.Users.Unblock(r.Context(), me, target); err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrUnknown, err))
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

// HandleBlockedUsers lists the identities on the caller's block list.
func HandleBlockedUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := jwt.GetPayloadFromContext(r).ID

		users, err := deps.Users.ListBlocked(r.Context(), me)
		if err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrUnknown, err))
			return
		}

		resp.RespondSuccess(w, r, users)
	}
}

// startSession issues a token for userID, sets the session cookie and reports success.
// The token is also returned in the X-Session-Token header for non-browser clients.
func startSession(w http.ResponseWriter, r *http.Request, deps *AppDeps, userID string) bool {
	token, err := jwt.GenerateToken(userID, deps.Config.JWTSecret, jwt.SessionExpiration)
	if err != nil {
		resp.RespondError(w, r, errs.Wrap(errs.ErrUnknown, err))
		return false
	}

	jwt.SetSessionCookie(w, token, !deps.Config.IsDevelopment())
	w.Header().Set(SessionTokenHeader, token)

	return true
}

// currentIdentity resolves the session to a directory identity, answering 401 if the
// account no longer exists.
func currentIdentity(w http.ResponseWriter, r *http.Request, deps *AppDeps) (user.Identity, bool) {
	identity, err := deps.Users.GetByID(r.Context(), jwt.GetPayloadFromContext(r).ID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return user.Identity{}, false
		}
		resp.RespondError(w, r, errs.Wrap(errs.ErrUnknown, err))
		return user.Identity{}, false
	}
	return identity, true
}

func accountView(a user.Account) map[string]any {
	return map[string]any{
		"_id":        a.ID,
		"fullName":   a.FullName,
		"username":   a.Username,
		"email":      a.Email,
		"profilePic": a.Avatar,
	}
}

package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/randx"
	"dmchat/internal/pkg/req"
	"dmchat/internal/pkg/resp"
)

// HandleSidebarUsers lists every user except the caller.
func HandleSidebarUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := jwt.GetPayloadFromContext(r).ID

		users, err := deps.Users.ListExcept(r.Context(), me)
		if err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrUnknown, err))
			return
		}

		resp.RespondSuccess(w, r, users)
	}
}

// HandleSearchUsers finds users whose username or full name contains ?query=.
func HandleSearchUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := jwt.GetPayloadFromContext(r).ID

		users, err := deps.Users.Search(r.Context(), me, r.URL.Query().Get("query"), user.SearchLimit)
		if err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrUnknown, err))
			return
		}

		resp.RespondSuccess(w, r, users)
	}
}

// HandleGetThread returns the conversation between the caller and {id}.
func HandleGetThread(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := jwt.GetPayloadFromContext(r).ID

		msgs, err := deps.Messages.Thread(r.Context(), me, chi.URLParam(r, "id"))
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, msgs)
	}
}

type SendMessageInput struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// HandleSendMessage stores a message to {id} and pushes it to the receiver if online.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := jwt.GetPayloadFromContext(r).ID

		var input SendMessageInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		msg, err := deps.Messages.Send(r.Context(), me, message.SendInput{
			ReceiverID: chi.URLParam(r, "id"),
			Text:       input.Text,
			Image:      input.Image,
		})
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondCreated(w, r, http.StatusCreated, msg)
	}
}

// HandleDeleteMessage deletes one of the caller's own messages.
func HandleDeleteMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := jwt.GetPayloadFromContext(r).ID

		id := chi.URLParam(r, "id")
		if !randx.IsValidID(id) {
			resp.RespondError(w, r, errs.NewError(errs.ErrMessageNotFound))
			return
		}

		if err := deps.Messages.Delete(r.Context(), me, id); err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]string{"_id": id})
	}
}

// HandleClearThread deletes the whole conversation between the caller and {userId}.
func HandleClearThread(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := jwt.GetPayloadFromContext(r).ID

		n, err := deps.Messages.ClearThread(r.Context(), me, chi.URLParam(r, "userId"))
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]int64{"deleted": n})
	}
}

type PresignImageInput struct {
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// HandlePresignImage returns a short-lived upload URL for a message image. The returned
// key is then sent as the image of a message.
func HandlePresignImage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Storage == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrImageUploadsDisabled))
			return
		}

		var input PresignImageInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := message.ValidateImage(input.MimeType, input.FileSize); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		mimeType := strings.ToLower(input.MimeType)
		key := randx.ObjectKey(message.ImageKeyPrefix, message.AllowedMIMETypes[mimeType])

		url, err := deps.Storage.PresignUpload(r.Context(), key, mimeType, input.FileSize, message.PresignedURLDuration)
		if err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrFileStorageFailed, err))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"presignedUrl": url,
			"fileKey":      key,
		})
	}
}

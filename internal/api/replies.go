package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/villetakanen/pelilauta-17-sub000/internal/api/respond"
	"github.com/villetakanen/pelilauta-17-sub000/internal/api/validate"
	"github.com/villetakanen/pelilauta-17-sub000/internal/services"
)

// CreateReply POST /threads/{key}/replies
func (h *ThreadHandler) CreateReply(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respond.WriteBadRequest(w, "expected multipart/form-data body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	markdown := r.FormValue("markdownContent")
	quoteRef := r.FormValue("quoteRef")
	if err := validate.Reply(markdown, quoteRef); err != nil {
		respond.FromError(w, r, err)
		return
	}
	files, closeFiles, err := formFiles(r.MultipartForm)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	defer closeFiles()

	reply, batch, err := h.svc.CreateReply(r.Context(), p, mux.Vars(r)["key"], services.CreateReplyInput{
		MarkdownContent: markdown,
		QuoteRef:        quoteRef,
		Files:           files,
	})
	if err != nil {
		respond.FromError(w, r, err)
		return
	}

	respond.WriteJSON(w, http.StatusAccepted, map[string]interface{}{"success": true, "replyKey": reply.Key})
	respond.Flush(w)
	batch.Dispatch()
}

// GetReply GET /threads/{key}/replies/{replyKey}
func (h *ThreadHandler) GetReply(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	reply, err := h.svc.GetReply(r.Context(), vars["key"], vars["replyKey"])
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, reply)
}

// UpdateReply PUT /threads/{key}/replies/{replyKey}
func (h *ThreadHandler) UpdateReply(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}

	var req struct {
		MarkdownContent string `json:"markdownContent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.Reply(req.MarkdownContent, ""); err != nil {
		respond.FromError(w, r, err)
		return
	}

	vars := mux.Vars(r)
	batch, err := h.svc.UpdateReply(r.Context(), p, vars["key"], vars["replyKey"], req.MarkdownContent)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	respond.Flush(w)
	batch.Dispatch()
}

package api

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"

	"github.com/villetakanen/pelilauta-17-sub000/internal/api/respond"
	"github.com/villetakanen/pelilauta-17-sub000/internal/api/validate"
	"github.com/villetakanen/pelilauta-17-sub000/internal/attachments"
	"github.com/villetakanen/pelilauta-17-sub000/internal/authz"
	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
	"github.com/villetakanen/pelilauta-17-sub000/internal/services"
)

// maxUploadMemory bounds the in-memory part of a multipart body; larger parts spill to disk.
const maxUploadMemory = 32 << 20

// filePartPrefix marks multipart parts carrying attachments.
const filePartPrefix = "file_"

// Inbox lists a principal's notifications.
type Inbox interface {
	ListFor(ctx context.Context, uid string) ([]model.NotificationRecord, error)
}

// ThreadHandler provides HTTP transport for thread, reply and label operations.
type ThreadHandler struct {
	svc   *services.ThreadService
	gate  *authz.Gate
	inbox Inbox
}

// NewThreadHandler builds the handler. inbox may be nil.
func NewThreadHandler(svc *services.ThreadService, gate *authz.Gate, inbox Inbox) *ThreadHandler {
	return &ThreadHandler{svc: svc, gate: gate, inbox: inbox}
}

// CreateThread POST /threads
func (h *ThreadHandler) CreateThread(w http.ResponseWriter, r *http.Request) {
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

	title := r.FormValue("title")
	markdown := r.FormValue("markdownContent")
	channel := r.FormValue("channel")
	if err := validate.CreateThread(title, markdown, channel); err != nil {
		respond.FromError(w, r, err)
		return
	}
	tags, err := validate.TagsField(r.FormValue("tags"))
	if err != nil {
		respond.FromError(w, r, err)
		return
	}

	files, closeFiles, err := formFiles(r.MultipartForm)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	defer closeFiles()

	t, batch, err := h.svc.CreateThread(r.Context(), p, services.CreateThreadInput{
		Title:           strings.TrimSpace(title),
		MarkdownContent: markdown,
		Channel:         channel,
		SiteKey:         r.FormValue("siteKey"),
		Tags:            tags,
		Files:           files,
	})
	if err != nil {
		respond.FromError(w, r, err)
		return
	}

	respond.WriteJSON(w, http.StatusAccepted, map[string]interface{}{"success": true, "threadKey": t.Key})
	respond.Flush(w)
	batch.Dispatch()
}

// GetThread GET /threads/{key}
func (h *ThreadHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetThread(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, t)
}

// UpdateThread PUT /threads/{key}
func (h *ThreadHandler) UpdateThread(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}

	var req struct {
		Title           *string  `json:"title,omitempty"`
		MarkdownContent string   `json:"markdownContent"`
		Tags            []string `json:"tags,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.UpdateThread(req.Title, req.MarkdownContent); err != nil {
		respond.FromError(w, r, err)
		return
	}

	t, batch, err := h.svc.UpdateThread(r.Context(), p, mux.Vars(r)["key"], services.UpdateThreadInput{
		Title:           req.Title,
		MarkdownContent: req.MarkdownContent,
		Tags:            req.Tags,
	})
	if err != nil {
		respond.FromError(w, r, err)
		return
	}

	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "tags": tags})
	respond.Flush(w)
	batch.Dispatch()
}

// DeleteThread DELETE /threads/{key}
func (h *ThreadHandler) DeleteThread(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	batch, err := h.svc.DeleteThread(r.Context(), p, mux.Vars(r)["key"])
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	respond.Flush(w)
	batch.Dispatch()
}

type labelsRequest struct {
	Labels []string `json:"labels"`
}

// AddLabels POST /threads/{key}/labels
func (h *ThreadHandler) AddLabels(w http.ResponseWriter, r *http.Request) {
	h.editLabels(w, r, h.svc.AddLabels)
}

// RemoveLabels DELETE /threads/{key}/labels
func (h *ThreadHandler) RemoveLabels(w http.ResponseWriter, r *http.Request) {
	h.editLabels(w, r, h.svc.RemoveLabels)
}

func (h *ThreadHandler) editLabels(w http.ResponseWriter, r *http.Request, edit func(context.Context, authz.Principal, string, []string) ([]string, error)) {
	p, err := h.principal(r)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	if err := h.gate.RequireAdmin(r.Context(), p); err != nil {
		respond.FromError(w, r, err)
		return
	}

	var req labelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.Labels(req.Labels); err != nil {
		respond.FromError(w, r, err)
		return
	}

	labels, err := edit(r.Context(), p, mux.Vars(r)["key"], req.Labels)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	if labels == nil {
		labels = []string{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "labels": labels})
}

// ListTag GET /tags/{tag}
func (h *ThreadHandler) ListTag(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]
	entries, err := h.svc.ListTagged(r.Context(), tag)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"tag": tag, "entries": entries})
}

// formFiles opens every file_ part in field-name order. The returned func
// closes them.
func formFiles(form *multipart.Form) ([]attachments.File, func(), error) {
	var names []string
	for name := range form.File {
		if strings.HasPrefix(name, filePartPrefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var (
		files  []attachments.File
		opened []multipart.File
	)
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	for _, name := range names {
		for _, fh := range form.File[name] {
			f, err := fh.Open()
			if err != nil {
				closeAll()
				return nil, func() {}, model.Errorf(model.ErrValidation, "unreadable file part %s", name)
			}
			opened = append(opened, f)
			files = append(files, attachments.File{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Size:        fh.Size,
				Body:        f,
			})
		}
	}
	return files, closeAll, nil
}

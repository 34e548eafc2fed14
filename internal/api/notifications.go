package api

import (
	"net/http"

	"github.com/villetakanen/pelilauta-17-sub000/internal/api/respond"
	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

// ListNotifications GET /notifications returns the caller's notifications.
func (h *ThreadHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	if h.inbox == nil {
		respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"notifications": []model.NotificationRecord{}})
		return
	}
	list, err := h.inbox.ListFor(r.Context(), p.UID)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	if list == nil {
		list = []model.NotificationRecord{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"notifications": list, "count": len(list)})
}

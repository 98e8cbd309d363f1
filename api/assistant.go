package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/medequip/internal/service"
)

type AssistantHandler struct {
	svc *service.AssistantService
}

func NewAssistantHandler(svc *service.AssistantService) *AssistantHandler {
	return &AssistantHandler{svc: svc}
}

type queryResponse struct {
	Response string `json:"response"`
}

func (h *AssistantHandler) Query(w http.ResponseWriter, r *http.Request) {
	var in service.QueryInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	answer, err := h.svc.Query(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, queryResponse{Response: answer}, "")
}

// OpenSession accepts an empty body for a session without equipment.
func (h *AssistantHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var in service.OpenSessionInput
	if err := decodeOptional(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	sess, err := h.svc.OpenSession(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, sess, "Session created")
}

func (h *AssistantHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sess, "")
}

func (h *AssistantHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.svc.DeleteSession(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"sessionId": id}, "Session deleted")
}

func (h *AssistantHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var in service.SendMessageInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	reply, err := h.svc.SendMessage(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, reply, "")
}

package api

import (
	"fmt"
	"net/http"

	"github.com/user/scrollterm/internal/db"
)

type createSessionRequest struct {
	Name    string `json:"name"`
	Command string `json:"command"`
	WorkDir string `json:"work_dir"`
}

type sessionInputRequest struct {
	Data string `json:"data"`
	Key  string `json:"key"`
}

type resizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type sessionResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Command string `json:"command"`
	WorkDir string `json:"work_dir,omitempty"`
	Status  string `json:"status"`
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	command := req.Command
	if command == "" {
		command = h.shell
	}
	if command == "" {
		jsonError(w, http.StatusBadRequest, "command is required")
		return
	}
	name := req.Name
	if name == "" {
		name = command
	}

	id, err := h.backend.CreateSession(r.Context(), name, command, req.WorkDir)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.sessionRepo != nil {
		err := h.sessionRepo.Create(r.Context(), &db.Session{
			ID:      id,
			Name:    name,
			Command: command,
			WorkDir: req.WorkDir,
		})
		if err != nil {
			// The PTY is already running; metadata failure is not fatal
			// for the caller but must not go unnoticed.
			h.backend.DestroySession(r.Context(), id)
			jsonError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	jsonResponse(w, http.StatusCreated, sessionResponse{
		ID:      id,
		Name:    name,
		Command: command,
		WorkDir: req.WorkDir,
		Status:  "running",
	})
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	if h.sessionRepo != nil {
		sessions, err := h.sessionRepo.List(r.Context(), db.SessionFilter{
			Status: r.URL.Query().Get("status"),
		})
		if err != nil {
			jsonError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]sessionResponse, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, sessionResponse{
				ID:      s.ID,
				Name:    s.Name,
				Command: s.Command,
				WorkDir: s.WorkDir,
				Status:  s.Status,
			})
		}
		jsonResponse(w, http.StatusOK, out)
		return
	}

	infos := h.backend.List()
	out := make([]sessionResponse, 0, len(infos))
	for _, info := range infos {
		status := "running"
		if !info.Active {
			status = "exited"
		}
		out = append(out, sessionResponse{ID: info.ID, Name: info.Name, Status: status})
	}
	jsonResponse(w, http.StatusOK, out)
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if h.sessionRepo != nil {
		sess, err := h.sessionRepo.Get(r.Context(), id)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if sess == nil {
			jsonError(w, http.StatusNotFound, fmt.Sprintf("session %q not found", id))
			return
		}
		jsonResponse(w, http.StatusOK, sessionResponse{
			ID:      sess.ID,
			Name:    sess.Name,
			Command: sess.Command,
			WorkDir: sess.WorkDir,
			Status:  sess.Status,
		})
		return
	}

	if !h.backend.HasSession(id) {
		jsonError(w, http.StatusNotFound, fmt.Sprintf("session %q not found", id))
		return
	}
	status := "exited"
	if h.backend.SessionExists(r.Context(), id) {
		status = "running"
	}
	jsonResponse(w, http.StatusOK, sessionResponse{ID: id, Status: status})
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Gate on presence, not liveness: an exited session stays tracked (with
	// its scrollback readable) until it is explicitly destroyed here.
	if !h.backend.HasSession(id) {
		jsonError(w, http.StatusNotFound, fmt.Sprintf("session %q not found", id))
		return
	}
	if err := h.backend.DestroySession(r.Context(), id); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if h.sessionRepo != nil {
		if err := h.sessionRepo.MarkEnded(r.Context(), id, "closed"); err != nil {
			jsonError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

func (h *handler) sendInput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req sessionInputRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Data == "" && req.Key == "" {
		jsonError(w, http.StatusBadRequest, "data or key is required")
		return
	}

	var err error
	if req.Key != "" {
		err = h.backend.SendKey(r.Context(), id, req.Key)
	} else {
		err = h.backend.SendInput(r.Context(), id, req.Data)
	}
	if err != nil {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

func (h *handler) resizeSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req resizeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Cols <= 0 || req.Rows <= 0 {
		jsonError(w, http.StatusBadRequest, "cols and rows must be positive")
		return
	}

	if err := h.backend.Resize(r.Context(), id, req.Cols, req.Rows); err != nil {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

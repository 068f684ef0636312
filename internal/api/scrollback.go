package api

import (
	"net/http"
	"strconv"

	"github.com/user/scrollterm/internal/scrollback"
)

type scrollbackResponse struct {
	Lines     []string `json:"lines"`
	Partial   string   `json:"partial,omitempty"`
	LineCount int      `json:"line_count"`
}

type scrollbackPageResponse struct {
	Lines      []string `json:"lines"`
	StartIndex int      `json:"start_index"`
	LineCount  int      `json:"line_count"`
}

func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// getScrollback returns the most recent lines plus the current partial
// line. With no lines parameter it returns the whole retained history.
func (h *handler) getScrollback(w http.ResponseWriter, r *http.Request) {
	buf, err := h.backend.Scrollback(r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}

	count, ok := queryInt(r, "lines", buf.LineCount())
	if !ok {
		jsonError(w, http.StatusBadRequest, "lines must be an integer")
		return
	}

	jsonResponse(w, http.StatusOK, scrollbackResponse{
		Lines:     buf.LastLines(count),
		Partial:   buf.Partial(),
		LineCount: buf.LineCount(),
	})
}

// getScrollbackBefore pages backward from a line index. Indices are only
// stable between reads while no writes or evictions happen; callers page
// within a quiet window or re-anchor from line_count.
func (h *handler) getScrollbackBefore(w http.ResponseWriter, r *http.Request) {
	buf, err := h.backend.Scrollback(r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}

	before, ok := queryInt(r, "index", buf.LineCount())
	if !ok {
		jsonError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	count, ok := queryInt(r, "count", scrollback.DefaultCapacity)
	if !ok {
		jsonError(w, http.StatusBadRequest, "count must be an integer")
		return
	}

	lines, start := buf.LinesBefore(before, count)
	jsonResponse(w, http.StatusOK, scrollbackPageResponse{
		Lines:      lines,
		StartIndex: start,
		LineCount:  buf.LineCount(),
	})
}

func (h *handler) getScrollbackStats(w http.ResponseWriter, r *http.Request) {
	buf, err := h.backend.Scrollback(r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, buf.Stats())
}

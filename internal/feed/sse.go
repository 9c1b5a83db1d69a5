package feed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/httputil"
)

// SSEHandler streams a change feed subscription to the browser as
// server-sent events. When the subscription is dropped for lag, the stream
// ends with a "reset" event telling the client to re-fetch before
// resubscribing.
type SSEHandler struct {
	broker *Broker
	logger *slog.Logger
}

func NewSSEHandler(broker *Broker, logger *slog.Logger) *SSEHandler {
	return &SSEHandler{broker: broker, logger: logger}
}

// Register mounts the stream route. The route must not sit behind a request
// timeout middleware.
func (h *SSEHandler) Register(r chi.Router) {
	r.Get("/feed/{table}", h.handleStream)
}

func (h *SSEHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	table := Table(chi.URLParam(r, "table"))
	if !table.Valid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown feed table"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}

	filter := Filter{IssueID: r.URL.Query().Get("issue_id")}
	sub := h.broker.Subscribe(table, filter, 0)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-sub.C():
			if !open {
				// Lagged: force the client through a full re-fetch.
				fmt.Fprint(w, "event: reset\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.ErrorContext(r.Context(), "marshal sse event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Op, payload)
			flusher.Flush()
		}
	}
}

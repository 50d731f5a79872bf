package tracker

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"

	api "github.com/netvoice/tracker/api/v1alpha1"
	"github.com/netvoice/tracker/internal/tracker/channel"
	"github.com/netvoice/tracker/internal/tracker/history"
	"github.com/netvoice/tracker/internal/tracker/store"
)

func RegisterApi(router *chi.Mux, st *store.Store, ch *channel.Channel, hist *history.Controller) {
	router.Get("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		reply := StatusReply{
			Connected:       ch.Connected(),
			Loading:         st.Loading(),
			LastError:       st.LastError(),
			ViewingHistory:  hist != nil && hist.Viewing(),
			LiveOperationId: st.CurrentId(),
		}
		_ = render.Render(w, r, reply)
	})
	router.Get("/api/v1/operation", func(w http.ResponseWriter, r *http.Request) {
		op := st.Current()
		if op == nil {
			http.Error(w, "no live operation", http.StatusNotFound)
			return
		}
		_ = render.Render(w, r, OperationReply{Operation: op})
	})
	router.Get("/api/v1/operations/recent", func(w http.ResponseWriter, r *http.Request) {
		_ = render.Render(w, r, RecentReply{Operations: st.Recent()})
	})
}

type StatusReply struct {
	Connected       bool   `json:"connected"`
	Loading         bool   `json:"loading"`
	LastError       string `json:"last_error,omitempty"`
	ViewingHistory  bool   `json:"viewing_history"`
	LiveOperationId string `json:"live_operation_id,omitempty"`
}

func (s StatusReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type OperationReply struct {
	*api.Operation
}

func (o OperationReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type RecentReply struct {
	Operations []api.Operation `json:"operations"`
}

func (rp RecentReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

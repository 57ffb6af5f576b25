package api

import (
	"net/http"
	"time"
)

// statusView is the node's health snapshot.
type statusView struct {
	ChainID       string `json:"chainId"`
	Version       string `json:"version"`
	HeadHeight    uint64 `json:"headHeight"`
	HeadBlockID   string `json:"headBlockId"`
	HeadTimestamp int64  `json:"headTimestamp"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	head, err := s.cfg.Store.GetHead(r.Context())
	if err != nil {
		internalErr(w, err)
		return
	}

	view := statusView{
		ChainID:       s.cfg.ChainID,
		Version:       s.cfg.Version,
		HeadHeight:    head.Height,
		HeadBlockID:   head.BlockID,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if !head.Timestamp.IsZero() {
		view.HeadTimestamp = head.Timestamp.Unix()
	}
	ok(w, "status", view)
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers := s.cfg.Peers
	if peers == nil {
		peers = []string{}
	}
	ok(w, "peers", peers)
}

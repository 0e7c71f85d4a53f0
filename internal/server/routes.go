package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/duggee/stakeboard/internal/db"
	"github.com/duggee/stakeboard/internal/viewmodel"
	"github.com/duggee/stakeboard/internal/wallet"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// IntentError is the body of a rejected intent.
type IntentError struct {
	Error string          `json:"error"`
	Kind  string          `json:"kind"`
	View  *viewmodel.Page `json:"view,omitempty"`
}

// intentStatus maps a view-model error onto an HTTP status and a short kind.
func intentStatus(err error) (int, string) {
	switch {
	case errors.Is(err, viewmodel.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, viewmodel.ErrUnknownIntent):
		return http.StatusBadRequest, "unknown_intent"
	case errors.Is(err, viewmodel.ErrUnavailable):
		return http.StatusConflict, "unavailable"
	case errors.Is(err, viewmodel.ErrSubmission):
		return http.StatusBadGateway, "submission_failed"
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	nodeID := s.console.NodeID()
	if len(nodeID) > 16 {
		nodeID = nodeID[:16]
	}
	wallet := s.console.WalletStatus()
	writeJSON(w, map[string]interface{}{
		"status":    "ok",
		"version":   Version,
		"node_id":   nodeID,
		"uptime_ms": s.console.Uptime().Milliseconds(),
		"connected": wallet["connected"],
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, _ := s.console.SubmissionCount()
	writeJSON(w, map[string]interface{}{
		"node_id":     s.console.NodeID(),
		"uptime_ms":   s.console.Uptime().Milliseconds(),
		"chain":       s.console.ChainStatus(),
		"snapshot":    s.console.SnapshotStatus(),
		"wallet":      s.console.WalletStatus(),
		"submissions": map[string]int{"total": count},
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.console.View())
}

// handleIntent takes one intent object, or an array of intents that is
// applied as a unit (for example set_stake_text followed by submit_stake).
func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&raw); err != nil {
		writeError(w, 400, "invalid JSON body")
		return
	}
	var intents []viewmodel.Intent
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &intents); err != nil || len(intents) == 0 {
			writeError(w, 400, "expected a non-empty array of intents")
			return
		}
	} else {
		var in viewmodel.Intent
		if err := json.Unmarshal(trimmed, &in); err != nil {
			writeError(w, 400, "invalid JSON body")
			return
		}
		intents = []viewmodel.Intent{in}
	}
	for _, in := range intents {
		if in.Kind == "" {
			writeError(w, 400, "kind is required")
			return
		}
	}

	page, err := s.console.Dispatch(r.Context(), intents...)
	if err != nil {
		code, kind := intentStatus(err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(IntentError{Error: err.Error(), Kind: kind, View: &page})
		return
	}
	writeJSON(w, page)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.console.RequestRefresh()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "refresh requested"})
}

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, 400, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	subs, err := s.console.RecentSubmissions(limit)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	if subs == nil {
		subs = []db.Submission{}
	}
	writeJSON(w, subs)
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.console.WalletStatus())
}

func (s *Server) handleWalletGenerate(w http.ResponseWriter, r *http.Request) {
	if err := s.console.GenerateNewWallet(); err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, s.console.WalletStatus())
}

func (s *Server) handleWalletImport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil || body.Key == "" {
		writeError(w, 400, "key is required")
		return
	}
	if err := s.console.ImportWallet(body.Key); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	writeJSON(w, s.console.WalletStatus())
}

func (s *Server) handleWalletDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.console.DisconnectWallet(); err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, s.console.WalletStatus())
}

func (s *Server) handleWalletSign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil || body.Message == "" {
		writeError(w, 400, "message is required")
		return
	}
	signed, err := s.console.SignMessage(body.Message)
	if errors.Is(err, wallet.ErrNotConnected) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, signed)
}

func (s *Server) handleWalletVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Address   string `json:"address"`
		Message   string `json:"message"`
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
		writeError(w, 400, "invalid JSON body")
		return
	}
	if !common.IsHexAddress(body.Address) {
		writeError(w, 400, "address is not a hex address")
		return
	}
	sig, err := hexutil.Decode(body.Signature)
	if err != nil {
		writeError(w, 400, "signature must be 0x-prefixed hex")
		return
	}
	writeJSON(w, map[string]interface{}{
		"address": common.HexToAddress(body.Address).Hex(),
		"valid":   wallet.VerifyMessage(common.HexToAddress(body.Address), []byte(body.Message), sig),
	})
}

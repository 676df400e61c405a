package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"predictchain/services/eventarchive"
)

type pageParams struct {
	From  uint64 `json:"from"`
	Limit int    `json:"limit"`
}

type archiveParams struct {
	Type    string  `json:"type"`
	Market  *uint64 `json:"market"`
	AfterID uint64  `json:"afterId"`
	Limit   int     `json:"limit"`
}

func parseUintParam(params []json.RawMessage, idx int, name string) (uint64, error) {
	if len(params) <= idx {
		return 0, fmt.Errorf("missing %s parameter", name)
	}
	var v uint64
	if err := json.Unmarshal(params[idx], &v); err != nil {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return v, nil
}

func parseAddressParam(params []json.RawMessage, idx int) ([20]byte, error) {
	var out [20]byte
	if len(params) <= idx {
		return out, fmt.Errorf("missing address parameter")
	}
	var raw string
	if err := json.Unmarshal(params[idx], &raw); err != nil {
		return out, fmt.Errorf("address must be a string")
	}
	raw = strings.TrimSpace(raw)
	if !ethcommon.IsHexAddress(raw) {
		return out, fmt.Errorf("invalid address %q", raw)
	}
	return ethcommon.HexToAddress(raw), nil
}

// parsePage reads an optional {from, limit} object and clamps the limit.
func (s *Server) parsePage(params []json.RawMessage) (pageParams, error) {
	page := pageParams{}
	if len(params) > 0 {
		if err := json.Unmarshal(params[0], &page); err != nil {
			return page, fmt.Errorf("invalid page parameter")
		}
	}
	if page.Limit <= 0 || page.Limit > s.cfg.MaxPageSize {
		page.Limit = s.cfg.MaxPageSize
	}
	return page, nil
}

func (s *Server) handlePlatformConfig(w http.ResponseWriter, req *RPCRequest) {
	cfg, err := s.backend.PlatformConfig()
	if err != nil {
		s.writeBackendError(w, req, err)
		return
	}
	writeResult(w, req.ID, platformResult(cfg))
}

func (s *Server) handleCreators(w http.ResponseWriter, req *RPCRequest) {
	reg, err := s.backend.Creators()
	if err != nil {
		s.writeBackendError(w, req, err)
		return
	}
	writeResult(w, req.ID, creatorsResult(reg))
}

func (s *Server) handleMarketGet(w http.ResponseWriter, req *RPCRequest) {
	id, err := parseUintParam(req.Params, 0, "market id")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	m, err := s.backend.Market(id)
	if err != nil {
		s.writeBackendError(w, req, err)
		return
	}
	writeResult(w, req.ID, marketResult(m, s.now().Unix()))
}

func (s *Server) handleMarketList(w http.ResponseWriter, req *RPCRequest) {
	page, err := s.parsePage(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	markets, err := s.backend.Markets(page.From, page.Limit)
	if err != nil {
		s.writeBackendError(w, req, err)
		return
	}
	now := s.now().Unix()
	out := make([]MarketResult, len(markets))
	for i, m := range markets {
		out[i] = marketResult(m, now)
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handlePrediction(w http.ResponseWriter, req *RPCRequest) {
	id, err := parseUintParam(req.Params, 0, "market id")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	user, err := parseAddressParam(req.Params, 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	pred, err := s.backend.Prediction(id, user)
	if err != nil {
		s.writeBackendError(w, req, err)
		return
	}
	writeResult(w, req.ID, predictionResult(pred))
}

func (s *Server) handleProposal(w http.ResponseWriter, req *RPCRequest) {
	id, err := parseUintParam(req.Params, 0, "market id")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	prop, err := s.backend.Proposal(id)
	if err != nil {
		s.writeBackendError(w, req, err)
		return
	}
	writeResult(w, req.ID, proposalResult(prop, s.now().Unix()))
}

func (s *Server) handlePointsStats(w http.ResponseWriter, req *RPCRequest) {
	user, err := parseAddressParam(req.Params, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	stats, err := s.backend.PointsStats(user)
	if err != nil {
		s.writeBackendError(w, req, err)
		return
	}
	writeResult(w, req.ID, pointsStatsResult(user, stats))
}

func (s *Server) handleRedemption(w http.ResponseWriter, req *RPCRequest) {
	id, err := parseUintParam(req.Params, 0, "redemption id")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	r, err := s.backend.Redemption(id)
	if err != nil {
		s.writeBackendError(w, req, err)
		return
	}
	writeResult(w, req.ID, redemptionResult(r))
}

func (s *Server) handleProfile(w http.ResponseWriter, req *RPCRequest) {
	user, err := parseAddressParam(req.Params, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	profile, ok, err := s.backend.Profile(user)
	if err != nil {
		s.writeBackendError(w, req, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "profile not found", nil)
		return
	}
	writeResult(w, req.ID, profileResult(profile))
}

func (s *Server) handleBalance(w http.ResponseWriter, req *RPCRequest) {
	addr, err := parseAddressParam(req.Params, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	bal, err := s.backend.Balance(addr)
	if err != nil {
		s.writeBackendError(w, req, err)
		return
	}
	pts, err := s.backend.PointsBalance(addr)
	if err != nil {
		s.writeBackendError(w, req, err)
		return
	}
	writeResult(w, req.ID, BalanceResult{Address: formatAddress(addr), Token: formatAmount(bal), Points: formatAmount(pts)})
}

func (s *Server) handleEvents(w http.ResponseWriter, req *RPCRequest) {
	page, err := s.parsePage(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	evts, err := s.backend.Events(page.From, page.Limit)
	if err != nil {
		s.writeBackendError(w, req, err)
		return
	}
	writeResult(w, req.ID, eventResults(page.From, evts))
}

func (s *Server) handleArchiveQuery(w http.ResponseWriter, req *RPCRequest) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "event archive disabled", nil)
		return
	}
	params := archiveParams{}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid archive filter", nil)
			return
		}
	}
	if params.Limit <= 0 || params.Limit > s.cfg.MaxPageSize {
		params.Limit = s.cfg.MaxPageSize
	}
	recs, err := s.archive.Query(eventarchive.Filter{
		Type:     params.Type,
		MarketID: params.Market,
		AfterID:  params.AfterID,
		Limit:    params.Limit,
	})
	if err != nil {
		s.writeBackendError(w, req, err)
		return
	}
	out, err := archivedEventResults(recs)
	if err != nil {
		s.writeBackendError(w, req, err)
		return
	}
	writeResult(w, req.ID, out)
}

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillm/volume-bot/internal/domain"
	"github.com/kirillm/volume-bot/internal/execution"
)

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !s.decode(w, r, &req) {
		return
	}

	order, err := s.engine.CreateOrder(r.Context(), req.Pair(), req.Spec())
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendSuccess(w, order)
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !s.decode(w, r, &req) {
		return
	}

	specs := make([]execution.OrderSpec, 0, len(req.Orders))
	for _, o := range req.Orders {
		specs = append(specs, o.Spec())
	}

	outcome, err := s.engine.CreateBatch(r.Context(), req.Pair(), specs)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendSuccess(w, outcome)
}

func (s *Server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !s.decode(w, r, &req) {
		return
	}

	outcome, err := s.engine.CancelBatch(r.Context(), req.Pair(), req.OrderIDs)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendSuccess(w, outcome)
}

func (s *Server) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	pair, err := s.queryPair(r)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	orders, err := s.engine.GetAllOpenOrders(r.Context(), pair)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendSuccess(w, orders)
}

func (s *Server) handleSyncOrders(w http.ResponseWriter, r *http.Request) {
	var req PairRequest
	if !s.decode(w, r, &req) {
		return
	}

	report, err := s.engine.SyncOpenOrders(r.Context(), req.Pair())
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendSuccess(w, report)
}

func (s *Server) handleRefreshOrder(w http.ResponseWriter, r *http.Request) {
	pair, err := s.queryPair(r)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	order, err := s.engine.UpdateOrderStatus(r.Context(), pair, chi.URLParam(r, "orderId"))
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendSuccess(w, order)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	pair, err := s.queryPair(r)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	entries, err := s.audit.Entries(r.Context(), pair, getQueryParamInt(r, "limit", 100))
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendSuccess(w, entries)
}

func (s *Server) handleUpdateCredentials(w http.ResponseWriter, r *http.Request) {
	id, err := botID(r)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	var req CredentialsRequest
	if !s.decode(w, r, &req) {
		return
	}

	bot, err := s.bots.UpdateCredentials(r.Context(), id, domain.Credentials{APIKey: req.APIKey, SecretKey: req.SecretKey})
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendSuccess(w, bot)
}

func (s *Server) handleResetBalances(w http.ResponseWriter, r *http.Request) {
	id, err := botID(r)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	bot, err := s.bots.ResetBalances(r.Context(), id)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendSuccess(w, bot)
}

func (s *Server) handleResetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := botID(r)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	records, err := s.bots.History(r.Context(), id, getQueryParamInt(r, "limit", 50))
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendSuccess(w, records)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := botID(r)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	var req StatusRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.bots.SetStatus(r.Context(), id, req.Status); err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendSuccess(w, map[string]interface{}{"id": id, "status": req.Status})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := botID(r)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	resp := ScheduleResponse{BotID: id}
	if next, ok := s.schedule.NextRun(id); ok {
		resp.Scheduled = true
		resp.NextRun = next.UTC().Format(time.RFC3339)
	}
	s.sendSuccess(w, resp)
}

func (s *Server) handleKillSwitchStatus(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, s.engine.KillSwitch().GetStatus())
}

func (s *Server) handleKillSwitchActivate(w http.ResponseWriter, r *http.Request) {
	var req KillSwitchRequest
	if !s.decode(w, r, &req) {
		return
	}

	ks := s.engine.KillSwitch()
	ks.Activate(req.Reason)
	if s.alerts != nil {
		s.alerts.KillSwitchChanged(true, req.Reason)
	}
	s.sendSuccess(w, ks.GetStatus())
}

func (s *Server) handleKillSwitchDeactivate(w http.ResponseWriter, r *http.Request) {
	ks := s.engine.KillSwitch()
	ks.Deactivate()
	if s.alerts != nil {
		s.alerts.KillSwitchChanged(false, "")
	}
	s.sendSuccess(w, ks.GetStatus())
}

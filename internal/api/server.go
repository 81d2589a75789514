// Package api HTTP ops API: операции движка ордеров, журнал, ключи ботов и kill switch.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillm/volume-bot/internal/audit"
	"github.com/kirillm/volume-bot/internal/botconfig"
	"github.com/kirillm/volume-bot/internal/domain"
	"github.com/kirillm/volume-bot/internal/execution"
	"github.com/kirillm/volume-bot/pkg/utils"
)

// Schedule расписание планировщика
type Schedule interface {
	NextRun(botID int64) (time.Time, bool)
}

// KillSwitchAlerts оповещение о переключении kill switch
type KillSwitchAlerts interface {
	KillSwitchChanged(active bool, reason string)
}

type Server struct {
	logger   *utils.Logger
	engine   *execution.Engine
	audit    *audit.Log
	bots     *botconfig.Service
	schedule Schedule
	alerts   KillSwitchAlerts
	validate *validator.Validate
	token    string
	port     int
	started  time.Time
	http     *http.Server
}

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func NewServer(
	logger *utils.Logger,
	engine *execution.Engine,
	auditLog *audit.Log,
	bots *botconfig.Service,
	schedule Schedule,
	alerts KillSwitchAlerts,
	token string,
	port int,
) *Server {
	if logger == nil {
		logger = utils.Discard()
	}
	s := &Server{
		logger:   logger.With("component", "api"),
		engine:   engine,
		audit:    auditLog,
		bots:     bots,
		schedule: schedule,
		alerts:   alerts,
		validate: validator.New(),
		token:    token,
		port:     port,
		started:  time.Now(),
	}
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Routes собирает роутер ops API
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(metricsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(tokenAuth(s.token))

		api.Post("/orders", s.handleCreateOrder)
		api.Post("/orders/batch", s.handleCreateBatch)
		api.Post("/orders/cancel", s.handleCancelBatch)
		api.Get("/orders/open", s.handleOpenOrders)
		api.Post("/orders/sync", s.handleSyncOrders)
		api.Post("/orders/{orderId}/refresh", s.handleRefreshOrder)

		api.Get("/logs", s.handleLogs)

		api.Put("/bots/{id}/credentials", s.handleUpdateCredentials)
		api.Post("/bots/{id}/reset-balances", s.handleResetBalances)
		api.Get("/bots/{id}/reset-history", s.handleResetHistory)
		api.Put("/bots/{id}/status", s.handleSetStatus)
		api.Get("/bots/{id}/schedule", s.handleSchedule)

		api.Get("/kill-switch", s.handleKillSwitchStatus)
		api.Post("/kill-switch", s.handleKillSwitchActivate)
		api.Delete("/kill-switch", s.handleKillSwitchDeactivate)
	})

	return r
}

// Start блокируется до остановки сервера
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server on %s", s.http.Addr)

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown дожидается завершения активных запросов
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"uptime":      time.Since(s.started).Round(time.Second).String(),
		"kill_switch": s.engine.KillSwitch().IsActive(),
	})
}

// decode читает JSON тело и проверяет его теги validate
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.sendError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// sendFailure переводит ошибку домена в HTTP статус
func (s *Server) sendFailure(w http.ResponseWriter, err error) {
	var exErr *domain.ExchangeError

	switch {
	case errors.As(err, &exErr):
		s.sendError(w, domain.ExchangeMessage(err), http.StatusBadGateway)
	case errors.Is(err, domain.ErrEmergencyStop):
		s.sendError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrNotFound):
		s.sendError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrMissingCredentials),
		errors.Is(err, domain.ErrUnsupportedExchange):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("Request failed: %v", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) sendSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(Response{
		Success: true,
		Data:    data,
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   message,
	})
}

func getQueryParam(r *http.Request, key string, defaultValue string) string {
	if value := r.URL.Query().Get(key); value != "" {
		return value
	}
	return defaultValue
}

func getQueryParamInt(r *http.Request, key string, defaultValue int) int {
	if value := r.URL.Query().Get(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// botID разбирает {id} из пути
func botID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad bot id %q", domain.ErrInvalidInput, chi.URLParam(r, "id"))
	}
	return id, nil
}

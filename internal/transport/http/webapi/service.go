// Package webapi exposes the administrative operations over HTTP for the
// dashboard: account management, top-ups, live clients and the session log.
package webapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"warnet-server-go/internal/domain/billing"
	"warnet-server-go/internal/domain/ledger"
	"warnet-server-go/internal/domain/registry"
	"warnet-server-go/internal/platform/config"
	"warnet-server-go/internal/platform/errors"
	"warnet-server-go/internal/platform/logging"
	httptransport "warnet-server-go/internal/transport/http"
)

// Service is the HTTP layer over the ledger and the client registry.
type Service struct {
	config   *config.Config
	logger   *logging.Logger
	ledger   *ledger.Service
	registry *registry.Registry
	started  time.Time
}

// NewService wires the admin API service.
func NewService(cfg *config.Config, logger *logging.Logger, svc *ledger.Service, reg *registry.Registry) (*Service, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "config is required")
	}
	if svc == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "ledger service is required")
	}
	if reg == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "registry is required")
	}

	return &Service{
		config:   cfg,
		logger:   logger,
		ledger:   svc,
		registry: reg,
		started:  time.Now(),
	}, nil
}

// Register mounts the routes on the API group. Everything except the status
// probe sits behind the token middleware.
func (s *Service) Register(router *gin.RouterGroup) {
	router.GET("/status", s.handleStatus)

	secured := router.Group("")
	secured.Use(s.authMiddleware())
	{
		secured.POST("/users", s.handleUserCreate)
		secured.GET("/users", s.handleUserList)
		secured.GET("/users/:username", s.handleUserGet)
		secured.DELETE("/users/:username", s.handleUserDelete)
		secured.POST("/users/:username/balance", s.handleBalanceAdd)

		secured.GET("/tiers", s.handleTierList)
		secured.GET("/quote", s.handleQuote)
		secured.GET("/clients", s.handleClientList)
		secured.GET("/sessions", s.handleSessionList)
		secured.GET("/summary", s.handleSummary)
	}

	s.logger.InfoTag("HTTP", "admin API routes registered")
}

func (s *Service) handleStatus(c *gin.Context) {
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	}, "Admin service is running")
}

type createUserRequest struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	Hours    float64 `json:"hours"`
	PCType   string  `json:"pc_type"`
}

func (s *Service) handleUserCreate(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.ledger.AddUser(c.Request.Context(), req.Username, req.Password, req.Hours, req.PCType); err != nil {
		s.respondLedgerError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusCreated, gin.H{"username": req.Username}, "user created")
}

func (s *Service) handleUserList(c *gin.Context) {
	accounts, err := s.ledger.ListUsers(c.Request.Context())
	if err != nil {
		s.respondLedgerError(c, err)
		return
	}

	type userView struct {
		Username     string  `json:"username"`
		BalanceMin   int     `json:"balance_minutes"`
		BalanceHours float64 `json:"balance_hours"`
		Tier         string  `json:"tier"`
	}
	out := make([]userView, 0, len(accounts))
	for _, account := range accounts {
		out = append(out, userView{
			Username:     account.Username,
			BalanceMin:   account.Balance,
			BalanceHours: billing.HoursFromMinutes(account.Balance),
			Tier:         account.Tier,
		})
	}
	httptransport.RespondSuccess(c, http.StatusOK, out, "")
}

func (s *Service) handleUserGet(c *gin.Context) {
	account, err := s.ledger.GetUser(c.Request.Context(), c.Param("username"))
	if err != nil {
		s.respondLedgerError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"username":        account.Username,
		"balance_minutes": account.Balance,
		"balance_hours":   billing.HoursFromMinutes(account.Balance),
		"tier":            account.Tier,
		"created_at":      account.CreatedAt,
	}, "")
}

func (s *Service) handleUserDelete(c *gin.Context) {
	if err := s.ledger.DeleteUser(c.Request.Context(), c.Param("username")); err != nil {
		s.respondLedgerError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, nil, "user deleted")
}

type addBalanceRequest struct {
	Hours  float64 `json:"hours"`
	PCType string  `json:"pc_type"`
}

func (s *Service) handleBalanceAdd(c *gin.Context) {
	var req addBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}

	price, err := s.ledger.AddBalance(c.Request.Context(), c.Param("username"), req.Hours, req.PCType)
	if err != nil {
		s.respondLedgerError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{"price": price}, "balance credited")
}

func (s *Service) handleTierList(c *gin.Context) {
	table := s.ledger.Tiers()
	type tierView struct {
		Name           string  `json:"name"`
		MinutesPerHour int     `json:"minutes_per_hour"`
		PricePerHour   float64 `json:"price_per_hour"`
	}
	out := make([]tierView, 0)
	for _, name := range table.Names() {
		tier, _ := table.Lookup(name)
		out = append(out, tierView{
			Name:           tier.Name,
			MinutesPerHour: tier.MinutesPerHour,
			PricePerHour:   tier.PricePerHour,
		})
	}
	httptransport.RespondSuccess(c, http.StatusOK, out, "")
}

func (s *Service) handleQuote(c *gin.Context) {
	hours, err := strconv.ParseFloat(c.Query("hours"), 64)
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "hours must be a number")
		return
	}

	price, err := s.ledger.Quote(hours, c.Query("pc_type"))
	if err != nil {
		s.respondLedgerError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{"price": price}, "")
}

func (s *Service) handleClientList(c *gin.Context) {
	httptransport.RespondSuccess(c, http.StatusOK, s.registry.Snapshot(), "")
}

func (s *Service) handleSessionList(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httptransport.RespondError(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	sessions, err := s.ledger.ListSessions(c.Request.Context(), c.Query("username"), limit)
	if err != nil {
		s.respondLedgerError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, sessions, "")
}

// handleSummary mirrors the dashboard status bar: live counts plus host
// memory and CPU load.
func (s *Service) handleSummary(c *gin.Context) {
	accounts, err := s.ledger.ListUsers(c.Request.Context())
	if err != nil {
		s.respondLedgerError(c, err)
		return
	}

	summary := gin.H{
		"connected_clients": s.registry.Count(),
		"active_sessions":   s.registry.SessionCount(),
		"total_users":       len(accounts),
		"uptime_seconds":    int(time.Since(s.started).Seconds()),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		summary["memory_used_percent"] = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		summary["cpu_percent"] = percents[0]
	}

	httptransport.RespondSuccess(c, http.StatusOK, summary, "")
}

// authMiddleware checks the AuthorToken header against the configured admin
// token. An empty configured token disables the check for local setups.
func (s *Service) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := s.config.Admin.Token
		if expected == "" {
			c.Next()
			return
		}

		token := c.GetHeader("AuthorToken")
		if token == "" {
			httptransport.RespondError(c, http.StatusUnauthorized, "missing AuthorToken header")
			c.Abort()
			return
		}
		if token != expected {
			s.logger.WarnTag("HTTP", "rejected admin token", "remote", c.ClientIP())
			httptransport.RespondError(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Service) respondLedgerError(c *gin.Context, err error) {
	if errors.IsKind(err, errors.KindValidation) {
		httptransport.RespondError(c, http.StatusBadRequest, errors.Reason(err))
		return
	}
	s.logger.ErrorTag("HTTP", "admin operation failed", "path", c.Request.URL.Path, "error", err)
	httptransport.RespondError(c, http.StatusInternalServerError, "internal error")
}

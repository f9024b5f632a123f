package rest

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/isey69/sale-forces-crm-sub000"
	"github.com/isey69/sale-forces-crm-sub000/internal/present/rest/presenter"
	"github.com/isey69/sale-forces-crm-sub000/internal/usecase"
)

// RealtimeSource streams events for the customers last sent on input.
type RealtimeSource interface {
	Realtime(ctx context.Context, input <-chan []string, output chan<- crm.Event)
}

type Handler struct {
	customer     *usecase.CustomerUsecase
	relationship *usecase.RelationshipUsecase
	call         *usecase.CallUsecase
	signal       RealtimeSource
	gatherer     prometheus.Gatherer
	logger       *zap.Logger
}

func NewHandler(
	customer *usecase.CustomerUsecase,
	relationship *usecase.RelationshipUsecase,
	call *usecase.CallUsecase,
	signal RealtimeSource,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		customer:     customer,
		relationship: relationship,
		call:         call,
		signal:       signal,
		gatherer:     gatherer,
		logger:       logger.Named("rest"),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo, mutations ...echo.MiddlewareFunc) {
	e.GET("/healthz", h.handleHealth)
	if h.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	e.POST("/customers", h.handleCreateCustomer, mutations...)
	e.GET("/customers", h.handleListCustomers)
	e.GET("/customers/:id", h.handleGetCustomer)
	e.PUT("/customers/:id", h.handleUpdateCustomer, mutations...)
	e.DELETE("/customers/:id", h.handleDeleteCustomer, mutations...)
	e.GET("/customers/:id/relationships", h.handleGetRelationships)
	e.GET("/customers/:id/relationships/cache", h.handleRelationshipCache)
	e.POST("/customers/:id/history", h.handleAddHistory, mutations...)
	e.GET("/customers/:id/history", h.handleListHistory)
	e.GET("/customers/:id/statistics", h.handleStatistics)

	e.POST("/relationships", h.handleAddRelationship, mutations...)
	e.DELETE("/relationships", h.handleRemoveRelationship, mutations...)

	e.POST("/calls", h.handleScheduleCall, mutations...)
	e.GET("/calls", h.handleListCalls)
	e.GET("/calls/:id", h.handleGetCall)
	e.POST("/calls/:id/outcome", h.handleLogOutcome, mutations...)
	e.DELETE("/calls/:id", h.handleCancelCall, mutations...)

	e.DELETE("/history/:id", h.handleDeleteHistory, mutations...)

	e.GET("/realtime", h.handleRealtime)
}

func (h *Handler) handleHealth(c echo.Context) error {
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleCreateCustomer(c echo.Context) error {
	var req crm.CustomerRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	customer, err := h.customer.Create(c.Request().Context(), req)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Created(c, customer)
}

func (h *Handler) handleListCustomers(c echo.Context) error {
	customers, err := h.customer.List(c.Request().Context(), c.QueryParam("type"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, customers)
}

func (h *Handler) handleGetCustomer(c echo.Context) error {
	customer, err := h.customer.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, customer)
}

func (h *Handler) handleUpdateCustomer(c echo.Context) error {
	var req crm.CustomerRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	customer, err := h.customer.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, customer)
}

func (h *Handler) handleDeleteCustomer(c echo.Context) error {
	if err := h.customer.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.NoContent(c)
}

func (h *Handler) handleGetRelationships(c echo.Context) error {
	partners, err := h.relationship.GetRelationships(c.Request().Context(), c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, partners)
}

func (h *Handler) handleRelationshipCache(c echo.Context) error {
	cache, err := h.relationship.RebuildRelationshipCache(c.Request().Context(), c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, cache)
}

func (h *Handler) handleAddRelationship(c echo.Context) error {
	var req crm.RelationshipRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if err := h.relationship.AddRelationship(c.Request().Context(), req.CustomerIDA, req.CustomerIDB); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.NoContent(c)
}

func (h *Handler) handleRemoveRelationship(c echo.Context) error {
	err := h.relationship.RemoveRelationship(c.Request().Context(), c.QueryParam("a"), c.QueryParam("b"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.NoContent(c)
}

func (h *Handler) handleScheduleCall(c echo.Context) error {
	var req crm.ScheduleCallRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	call, err := h.call.ScheduleCall(c.Request().Context(), req)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Created(c, call)
}

func (h *Handler) handleListCalls(c echo.Context) error {
	customerID := c.QueryParam("customerId")
	if customerID == "" {
		return presenter.BadRequestMessage(c, "customerId is required")
	}
	calls, err := h.call.ListScheduledCalls(c.Request().Context(), customerID)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, calls)
}

func (h *Handler) handleGetCall(c echo.Context) error {
	call, err := h.call.GetScheduledCall(c.Request().Context(), c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, call)
}

func (h *Handler) handleLogOutcome(c echo.Context) error {
	var req crm.LogOutcomeRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	entry, err := h.call.LogOutcome(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Created(c, entry)
}

func (h *Handler) handleCancelCall(c echo.Context) error {
	if err := h.call.CancelScheduledCall(c.Request().Context(), c.Param("id")); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.NoContent(c)
}

func (h *Handler) handleAddHistory(c echo.Context) error {
	var req crm.HistoryEntryRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	entry, err := h.call.AddAdHocHistoryEntry(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Created(c, entry)
}

func (h *Handler) handleListHistory(c echo.Context) error {
	entries, err := h.call.ListCallHistory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, entries)
}

func (h *Handler) handleDeleteHistory(c echo.Context) error {
	if err := h.call.DeleteHistoryEntry(c.Request().Context(), c.Param("id")); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.NoContent(c)
}

func (h *Handler) handleStatistics(c echo.Context) error {
	stats, err := h.call.GetStatistics(c.Request().Context(), c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, stats)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Request struct {
	Type      string   `json:"type"`
	Customers []string `json:"customers"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	if h.signal == nil {
		return c.JSON(http.StatusServiceUnavailable, crm.ErrorResponse{Error: "realtime is not configured"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket", zap.Error(err))
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	output := make(chan crm.Event)
	go h.signal.Realtime(ctx, input, output)

	quit := make(chan struct{})
	go func() {
		defer close(quit)
		for {
			var req Request
			err := ws.ReadJSON(&req)
			if err != nil {
				if wsErr, ok := err.(*websocket.CloseError); ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						h.logger.Debug("websocket closed", zap.Error(wsErr))
					}
				} else {
					h.logger.Debug("error reading message", zap.Error(err))
				}
				return
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.Customers:
				case <-ctx.Done():
					return
				}
				h.logger.Debug("socket subscribe", zap.Strings("customers", req.Customers))
			case "h": // heartbeat
			default:
				h.logger.Info("unknown request type", zap.String("type", req.Type))
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event := <-output:
			if err := ws.WriteJSON(event); err != nil {
				h.logger.Debug("error writing message", zap.Error(err))
				return nil
			}
		}
	}
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/salesbot/internal/common"
	"github.com/suPer8Hu/salesbot/internal/httpapi/middleware"
	"github.com/suPer8Hu/salesbot/internal/order"
)

func (h *Handler) ListOrders(c *gin.Context) {
	tenantID := middleware.TenantID(c)

	status := order.Status(c.Query("status"))
	if status != "" && !status.Valid() {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid status")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	orders, err := h.orders.List(c.Request.Context(), tenantID, status, limit)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantID).Msg("list orders")
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{"orders": orders})
}

// DeliverOrder is the operator's pending_delivery -> delivered step.
func (h *Handler) DeliverOrder(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid order id")
		return
	}

	o, err := h.orders.MarkDelivered(c.Request.Context(), tenantID, id)
	switch {
	case errors.Is(err, order.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "order not found")
		return
	case errors.Is(err, order.ErrIllegalTransition), errors.Is(err, order.ErrStaleOrder):
		common.Fail(c, http.StatusConflict, 40901, "order is not pending delivery")
		return
	case err != nil:
		log.Error().Err(err).Str("tenant", tenantID).Uint64("order", id).Msg("deliver order")
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	log.Info().Str("tenant", tenantID).Uint64("order", o.ID).Msg("order delivered")
	common.OK(c, o)
}

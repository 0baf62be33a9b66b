package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MorphGate/morphgate/internal/middleware"
	"github.com/MorphGate/morphgate/internal/model"
	"github.com/MorphGate/morphgate/internal/pkg/apperrors"
	"github.com/MorphGate/morphgate/internal/service"
)

type MarketHandler struct {
	svc *service.GatewayService
}

func NewMarketHandler(svc *service.GatewayService) *MarketHandler {
	return &MarketHandler{svc: svc}
}

func (h *MarketHandler) Supply(c *gin.Context) {
	tenant := tenantFrom(c)

	var req model.SupplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	resp, err := h.svc.SupplyWithProtection(c.Request.Context(), tenant, req)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "market_id", resp.MarketID)
	middleware.AddAuditContext(c, "tx_hash", resp.TxHash)

	c.JSON(http.StatusOK, resp)
}

func (h *MarketHandler) SupplyCollateral(c *gin.Context) {
	tenant := tenantFrom(c)

	var req model.CollateralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	resp, err := h.svc.SupplyCollateral(c.Request.Context(), tenant, req)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "market_id", resp.MarketID)
	middleware.AddAuditContext(c, "tx_hash", resp.TxHash)

	c.JSON(http.StatusOK, resp)
}

func (h *MarketHandler) Borrow(c *gin.Context) {
	tenant := tenantFrom(c)

	var req model.BorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	resp, err := h.svc.BorrowWithHealthCheck(c.Request.Context(), tenant, req)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "market_id", resp.MarketID)
	middleware.AddAuditContext(c, "tx_hash", resp.TxHash)

	c.JSON(http.StatusOK, resp)
}

func (h *MarketHandler) Withdraw(c *gin.Context) {
	h.handleExit(c, h.svc.Withdraw)
}

func (h *MarketHandler) WithdrawCollateral(c *gin.Context) {
	h.handleExit(c, h.svc.WithdrawCollateral)
}

func (h *MarketHandler) Repay(c *gin.Context) {
	h.handleExit(c, h.svc.Repay)
}

type exitOp func(ctx context.Context, tenant *model.Tenant, req model.WithdrawRequest) (*model.ExecutionResponse, error)

func (h *MarketHandler) handleExit(c *gin.Context, fn exitOp) {
	tenant := tenantFrom(c)

	var req model.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	resp, err := fn(c.Request.Context(), tenant, req)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "market_id", resp.MarketID)
	middleware.AddAuditContext(c, "tx_hash", resp.TxHash)

	c.JSON(http.StatusOK, resp)
}

func (h *MarketHandler) Info(c *gin.Context) {
	var params model.MarketParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	resp, err := h.svc.MarketInfo(c.Request.Context(), params)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *MarketHandler) Efficiency(c *gin.Context) {
	eff, err := h.svc.Efficiency(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"market_id":  c.Param("id"),
		"efficiency": eff,
	})
}

func tenantFrom(c *gin.Context) *model.Tenant {
	if tenantVal, exists := c.Get(middleware.ContextTenantKey); exists {
		if tenant, ok := tenantVal.(*model.Tenant); ok {
			return tenant
		}
	}
	return nil
}

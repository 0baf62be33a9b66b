package handler

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/MorphGate/morphgate/internal/middleware"
	"github.com/MorphGate/morphgate/internal/model"
	"github.com/MorphGate/morphgate/internal/pkg/apperrors"
	"github.com/MorphGate/morphgate/internal/service"
)

// HeaderCallerAddress lets an admin request act as a specific address.
// Without it, the admin-key-authenticated request acts as the owner.
const HeaderCallerAddress = "X-Caller-Address"

type AdminHandler struct {
	svc *service.GatewayService
}

func NewAdminHandler(svc *service.GatewayService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

func (h *AdminHandler) Recover(c *gin.Context) {
	var req model.RecoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	resp, err := h.svc.EmergencyRecover(c.Request.Context(), h.callerFrom(c), req)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "action", "emergency_recover")
	middleware.AddAuditContext(c, "token", req.Token)
	middleware.AddAuditContext(c, "tx_hash", resp.TxHash)

	c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) TransferOwnership(c *gin.Context) {
	var req model.OwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	if err := h.svc.TransferOwnership(h.callerFrom(c), req); err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "action", "transfer_ownership")
	middleware.AddAuditContext(c, "new_owner", req.NewOwner)

	c.JSON(http.StatusOK, gin.H{
		"status": "transferred",
		"owner":  req.NewOwner,
	})
}

func (h *AdminHandler) Owner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"owner": h.svc.Owner().Hex()})
}

func (h *AdminHandler) callerFrom(c *gin.Context) common.Address {
	if raw := c.GetHeader(HeaderCallerAddress); common.IsHexAddress(raw) {
		return common.HexToAddress(raw)
	}
	return h.svc.Owner()
}

package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alaskacg/tongass-listings/internal/service"
	"github.com/alaskacg/tongass-listings/pkg/response"
)

// WebhookSignatureHeader 支付方回调签名头
const WebhookSignatureHeader = "X-Payment-Signature"

const maxWebhookBody = 64 << 10

// PaymentWebhook 支付方回调
// @Summary 支付回调
// @Tags 支付
// @Accept json
// @Produce json
// @Param X-Payment-Signature header string true "sha256=<hex HMAC>"
// @Param request body service.WebhookEvent true "回调内容"
// @Success 200 {object} response.Response{data=service.WebhookResult}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/payments/webhook [post]
func (h *Handler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}
	if err := h.payments.VerifyWebhook(body, c.GetHeader(WebhookSignatureHeader)); err != nil {
		response.Error(c, err)
		return
	}
	var ev service.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		response.BadRequest(c, "invalid JSON body")
		return
	}
	res, err := h.payments.HandleWebhook(c.Request.Context(), ev)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

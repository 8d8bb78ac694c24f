package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/medledger/medledger/internal/platform/hipaa"
)

type Handler struct {
	svc *Service
	enc *hipaa.EncryptionService
}

func NewHandler(svc *Service, enc *hipaa.EncryptionService) *Handler {
	return &Handler{svc: svc, enc: enc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/chain", h.GetChain)
	g.GET("/mine", h.Mine)
	g.GET("/block/:id", h.GetBlock)
	g.POST("/transactions/new", h.NewTransaction)
	g.GET("/transactions/pending", h.PendingTransactions)
}

type newTransactionRequest struct {
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
	Signature string  `json:"signature"`
	Payload   string  `json:"payload"`
}

func (h *Handler) GetChain(c echo.Context) error {
	chain, err := h.svc.Chain(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"chain":  chain,
		"length": len(chain),
	})
}

func (h *Handler) Mine(c echo.Context) error {
	block, err := h.svc.Mine(c.Request().Context())
	if err != nil {
		if errors.Is(err, ErrStaleTip) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "new block forged",
		"block":   block,
	})
}

func (h *Handler) GetBlock(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("id"))
	if err != nil || index < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid block id")
	}
	block, err := h.svc.Block(c.Request().Context(), index)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if block == nil {
		return echo.NewHTTPError(http.StatusNotFound, "block not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"block": block,
		"hash":  block.Hash(),
	})
}

func (h *Handler) NewTransaction(c echo.Context) error {
	var req newTransactionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	payload := req.Payload
	if payload != "" {
		encrypted, err := h.enc.EncryptField(payload)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		payload = encrypted
	}

	tx := Transaction{
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Amount:    req.Amount,
		Signature: req.Signature,
		Payload:   payload,
		Timestamp: h.svc.now(),
	}
	id, err := h.svc.Submit(c.Request().Context(), tx)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"transaction_id": id,
		"message":        "transaction will be included in the next mined block",
	})
}

func (h *Handler) PendingTransactions(c echo.Context) error {
	pending := h.svc.Pool().Pending()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"pending_transactions": pending,
		"count":                len(pending),
	})
}

package engine

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/kivu-pay/kivu_pay/internal/identity"
	"github.com/kivu-pay/kivu_pay/internal/ledger"
	"github.com/kivu-pay/kivu_pay/internal/store"
	"github.com/kivu-pay/kivu_pay/internal/wallet"
)

// Handler exposes wallet and transfer endpoints.
type Handler struct {
	engine *Engine
}

// NewHandler constructs the engine HTTP handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type moveRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type transferRequest struct {
	ToUserID    string          `json:"to_user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Balance returns the caller's wallet view.
func (h *Handler) Balance(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	view, err := h.engine.GetWallet(c.UserContext(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(view)
}

// History returns the caller's ledger entries, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)
	entries, err := h.engine.History(c.UserContext(), userID, limit, offset)
	if err != nil {
		return httpError(err)
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": entries})
}

// Deposit credits the caller's wallet.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req moveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	userID, _ := c.Locals("user_id").(string)
	entry, err := h.engine.Deposit(c.UserContext(), userID, req.Amount, req.Description, clientMeta(c))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(entry)
}

// Withdraw debits the caller's wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req moveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	userID, _ := c.Locals("user_id").(string)
	entry, err := h.engine.Withdraw(c.UserContext(), userID, req.Amount, req.Description, clientMeta(c))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(entry)
}

// Transfer moves funds from the caller to another user.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	userID, _ := c.Locals("user_id").(string)
	receipt, err := h.engine.Transfer(c.UserContext(), userID, req.ToUserID, req.Amount, req.Description, clientMeta(c))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(receipt)
}

// Freeze stops all operations on a user's wallet. Admin endpoint.
func (h *Handler) Freeze(c *fiber.Ctx) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	if err := h.engine.Freeze(c.UserContext(), c.Params("user_id"), req.Reason); err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "frozen"})
}

// Unfreeze lifts a wallet freeze. Admin endpoint.
func (h *Handler) Unfreeze(c *fiber.Ctx) error {
	if err := h.engine.Unfreeze(c.UserContext(), c.Params("user_id")); err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "active"})
}

// FindTransfer returns both legs recorded under a reference number. Admin
// endpoint.
func (h *Handler) FindTransfer(c *fiber.Ctx) error {
	entries, err := h.engine.FindTransfer(c.UserContext(), c.Params("reference"))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"entries": entries})
}

func clientMeta(c *fiber.Ctx) ClientMeta {
	return ClientMeta{
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}

func httpError(err error) error {
	switch {
	case errors.Is(err, wallet.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, identity.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSelfTransfer):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrWalletFrozen):
		return fiber.NewError(http.StatusLocked, err.Error())
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrLimitExceeded):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrKYCRequired), errors.Is(err, ErrFraudDetected):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrLockTimeout):
		return fiber.NewError(http.StatusServiceUnavailable, "wallet busy, retry shortly")
	default:
		return err
	}
}

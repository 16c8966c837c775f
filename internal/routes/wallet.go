package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kivu-pay/kivu_pay/internal/engine"
)

// RegisterWalletRoutes wires the authenticated wallet endpoints. Deposits and
// withdrawals go through the idempotency middleware so network retries cannot
// move money twice.
func RegisterWalletRoutes(r fiber.Router, h *engine.Handler, idem fiber.Handler) {
	group := r.Group("/wallet")
	group.Get("", h.Balance)
	group.Get("/transactions", h.History)
	group.Post("/deposit", idem, h.Deposit)
	group.Post("/withdraw", idem, h.Withdraw)
}

package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kivu-pay/kivu_pay/internal/engine"
)

// RegisterTransferRoutes wires the wallet-to-wallet transfer endpoint behind
// the idempotency middleware.
func RegisterTransferRoutes(r fiber.Router, h *engine.Handler, idem fiber.Handler) {
	r.Post("/transfers", idem, h.Transfer)
}

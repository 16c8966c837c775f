package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/kivu-pay/kivu_pay/internal/engine"
	"github.com/kivu-pay/kivu_pay/internal/identity"
)

// RegisterAdminRoutes wires the admin surface: wallet freezes, KYC decisions
// and transfer lookups by reference number. The caller must already be behind
// JWTAuth plus RequireAdmin.
func RegisterAdminRoutes(r fiber.Router, h *engine.Handler, ids *identity.Service) {
	r.Post("/wallets/:user_id/freeze", h.Freeze)
	r.Post("/wallets/:user_id/unfreeze", h.Unfreeze)
	r.Get("/transfers/:reference", h.FindTransfer)

	r.Put("/users/:user_id/kyc", func(c *fiber.Ctx) error {
		var req struct {
			Status identity.KYCStatus `json:"status"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		if err := ids.SetKYC(c.UserContext(), c.Params("user_id"), req.Status); err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				return fiber.NewError(http.StatusNotFound, err.Error())
			}
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(fiber.Map{"user_id": c.Params("user_id"), "kyc_status": req.Status})
	})
}

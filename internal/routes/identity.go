package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kivu-pay/kivu_pay/internal/identity"
)

// RegisterIdentityRoutes wires the public registration endpoint. Registration
// provisions the user's wallet in the same atomic unit.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/identity/register", h.Register)
}

// RegisterProfileRoutes wires the authenticated profile endpoints.
func RegisterProfileRoutes(r fiber.Router, h *identity.Handler) {
	r.Get("/me", h.Me)
	r.Post("/identity/kyc", h.SubmitKYC)
}

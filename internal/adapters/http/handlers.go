package http

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/olehbas/marshrut/internal/core/domain"
)

// callbackPayload is the decoded body of the provider's server-to-server
// confirmation. order_id carries the booking group ID.
type callbackPayload struct {
	Status    string `json:"status"`
	OrderID   string `json:"order_id"`
	PaymentID int64  `json:"payment_id"`
	ErrCode   string `json:"err_code"`
}

// PaymentCallbackHandler receives the gateway's signed confirmation.
// The signature is verified before anything is trusted; a stale group
// (timed out, cancelled) answers 409 so the provider surfaces the
// failure instead of settling money for freed seats.
func PaymentCallbackHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		data := c.FormValue("data")
		signature := c.FormValue("signature")
		if data == "" || signature == "" {
			return errBadRequest(c, "data and signature are required")
		}

		raw, err := deps.Gateway.VerifyCallback(data, signature)
		if err != nil {
			return newError(c, 403, "forbidden", "invalid callback signature")
		}

		var payload callbackPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return errBadRequest(c, "malformed callback payload")
		}
		if payload.OrderID == "" {
			return errBadRequest(c, "order_id is required")
		}

		log := LoggerFromCtx(c.UserContext())
		log.Info("payment callback", "order_id", payload.OrderID, "status", payload.Status)

		switch payload.Status {
		case "success", "wait_accept", "sandbox":
		default:
			// Failures and intermediate states leave the group armed; the
			// payment timeout owns cleanup.
			return c.JSON(fiber.Map{"result": "ignored", "status": payload.Status})
		}

		paymentRef := payload.OrderID
		if err := deps.Bookings.ConfirmPaid(c.UserContext(), payload.OrderID, paymentRef); err != nil {
			return errDomain(c, err)
		}
		return c.JSON(fiber.Map{"result": "ok"})
	}
}

// AvailabilityHandler answers how many units of a kind remain free on a
// segment. Display-only: the booking path re-checks atomically.
func AvailabilityHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		routeCode := c.Params("code")
		from := c.Query("from")
		to := c.Query("to")
		if from == "" || to == "" {
			return errBadRequest(c, "from and to station codes are required")
		}

		kind := domain.KindTicket
		if k := strings.ToLower(c.Query("kind")); k == string(domain.KindPackage) {
			kind = domain.KindPackage
		}

		free, err := deps.Inventory.AvailableByCodes(c.UserContext(), routeCode, from, to, kind)
		if err != nil {
			return errDomain(c, err)
		}

		return c.JSON(fiber.Map{
			"route": routeCode,
			"from":  from,
			"to":    to,
			"kind":  kind,
			"free":  free,
		})
	}
}

// RouteHandler returns the route with its ordered stops.
func RouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		route, err := deps.Routes.GetRoute(c.UserContext(), c.Params("code"))
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(route)
	}
}

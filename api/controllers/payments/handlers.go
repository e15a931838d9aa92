package payments

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	internalpayments "github.com/angelmondragon/storefront-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// maxBodyBytes bounds the two raw payment bodies; both are a handful of fields.
const maxBodyBytes = 16 << 10

type errorBody struct {
	Error string `json:"error"`
}

type createOrderRequest struct {
	Amount json.RawMessage `json:"amount"`
}

type createOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type verifyRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

// CreateOrder serves POST /createorder. Its bodies are the bare objects the
// storefront checkout widget expects, not the API envelopes.
func CreateOrder(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			responses.WriteJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
			return
		}
		if svc == nil {
			responses.WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "Payment gateway not configured"})
			return
		}

		var payload createOrderRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
			responses.WriteJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid amount"})
			return
		}
		amount, err := internalpayments.ParseAmount(payload.Amount)
		if err != nil {
			responses.WriteJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid amount"})
			return
		}

		order, err := svc.CreateOrder(r.Context(), amount, nil)
		if err != nil {
			switch {
			case pkgerrors.HasCode(err, pkgerrors.CodeValidation):
				responses.WriteJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid amount"})
			case pkgerrors.HasCode(err, pkgerrors.CodeDependency):
				responses.WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "Order creation failed"})
			default:
				responses.WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "Payment gateway not configured"})
			}
			return
		}

		if len(order.Raw) > 0 {
			responses.WriteJSON(w, http.StatusOK, order.Raw)
			return
		}
		responses.WriteJSON(w, http.StatusOK, createOrderResponse{
			ID:       order.ID,
			Amount:   order.AmountMinor,
			Currency: order.Currency,
			Receipt:  order.Receipt,
		})
	}
}

// VerifyPayment serves POST /verifypayment. It answers only whether the
// signature is authentic; it never records anything.
func VerifyPayment(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			responses.WriteJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
			return
		}
		if svc == nil {
			responses.WriteJSON(w, http.StatusInternalServerError, verifyResponse{Verified: false})
			return
		}

		var payload verifyRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
			responses.WriteJSON(w, http.StatusBadRequest, verifyResponse{Verified: false})
			return
		}
		confirmation := internalpayments.Confirmation{
			OrderID:   payload.OrderID,
			PaymentID: payload.PaymentID,
			Signature: payload.Signature,
		}
		if !confirmation.Complete() {
			responses.WriteJSON(w, http.StatusBadRequest, verifyResponse{Verified: false})
			return
		}

		ok, err := svc.Verify(r.Context(), confirmation)
		if err != nil {
			responses.WriteJSON(w, http.StatusInternalServerError, verifyResponse{Verified: false})
			return
		}
		if !ok {
			responses.WriteJSON(w, http.StatusBadRequest, verifyResponse{Verified: false})
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(r.Context(), "gateway_order_id", confirmation.OrderID), "payment signature verified")
		}
		responses.WriteJSON(w, http.StatusOK, verifyResponse{Verified: true})
	}
}

package enums

import "fmt"

// CheckoutState is a step of a user's checkout attempt.
type CheckoutState string

const (
	CheckoutStateIdle                        CheckoutState = "idle"
	CheckoutStateValidating                  CheckoutState = "validating"
	CheckoutStateCreatingGatewayOrder        CheckoutState = "creating_gateway_order"
	CheckoutStateAwaitingGatewayConfirmation CheckoutState = "awaiting_gateway_confirmation"
	CheckoutStateVerifyingSignature          CheckoutState = "verifying_signature"
	CheckoutStatePersistingOrder             CheckoutState = "persisting_order"
	CheckoutStateComplete                    CheckoutState = "complete"
	CheckoutStateFailed                      CheckoutState = "failed"
)

var validCheckoutStates = []CheckoutState{
	CheckoutStateIdle,
	CheckoutStateValidating,
	CheckoutStateCreatingGatewayOrder,
	CheckoutStateAwaitingGatewayConfirmation,
	CheckoutStateVerifyingSignature,
	CheckoutStatePersistingOrder,
	CheckoutStateComplete,
	CheckoutStateFailed,
}

func (s CheckoutState) String() string {
	return string(s)
}

func (s CheckoutState) IsValid() bool {
	for _, candidate := range validCheckoutStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanStart reports whether a new attempt may begin from this state. An
// attempt left in verifying_signature by an interrupted request has
// persisted nothing and may be replaced.
func (s CheckoutState) CanStart() bool {
	switch s {
	case "", CheckoutStateIdle, CheckoutStateFailed, CheckoutStateComplete,
		CheckoutStateAwaitingGatewayConfirmation, CheckoutStateVerifyingSignature:
		return true
	}
	return false
}

// CanConfirm reports whether a gateway confirmation may be processed. The
// in-flight states are accepted so an interrupted confirmation can be replayed.
func (s CheckoutState) CanConfirm() bool {
	switch s {
	case CheckoutStateAwaitingGatewayConfirmation, CheckoutStateVerifyingSignature, CheckoutStatePersistingOrder:
		return true
	}
	return false
}

func ParseCheckoutState(value string) (CheckoutState, error) {
	for _, candidate := range validCheckoutStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout state %q", value)
}

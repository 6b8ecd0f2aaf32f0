package panel

import (
	"errors"
	"fmt"

	"github.com/ashureev/docdesk/internal/domain"
	"github.com/ashureev/docdesk/internal/gateway"
)

// ErrBusy is returned when an operation is attempted while the same
// operation is still in flight.
var ErrBusy = errors.New("operation already in flight")

// Validation reasons.
const (
	ReasonNoFile     = "no file"
	ReasonWrongType  = "wrong type"
	ReasonEmptyInput = "empty input"
)

// ValidationError is a failure detected locally before any network call.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Reason)
}

func outcomeOf(err error) domain.Outcome {
	if err == nil {
		return domain.OutcomeSuccess
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return domain.OutcomeValidation
	}
	var gwErr *gateway.GatewayError
	if errors.As(err, &gwErr) {
		return domain.OutcomeGateway
	}
	return domain.OutcomeTransport
}

package audit

import (
	"fmt"

	"github.com/gosuda/clinaudit/internal/domain"
)

// Every audit sentinel wraps domain.ErrInvalidInput.
var (
	// ErrUnknownAction is returned when Record is called with an action type
	// outside the closed enumeration.
	ErrUnknownAction = fmt.Errorf("%w: unknown action type", domain.ErrInvalidInput)
	// ErrInvalidPayload is returned when a payload cannot be encoded as JSON.
	ErrInvalidPayload = fmt.Errorf("%w: payload is not JSON encodable", domain.ErrInvalidInput)
	// ErrInvalidTimeRange is returned when from is after to.
	ErrInvalidTimeRange = fmt.Errorf("%w: from must not be after to", domain.ErrInvalidInput)
	// ErrUnsupportedFormat is returned for export formats other than json and csv.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported export format", domain.ErrInvalidInput)
)

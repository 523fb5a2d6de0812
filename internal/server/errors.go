package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	costingdomain "github.com/bistrokit/stockbook/internal/costing/domain"
	depletiondomain "github.com/bistrokit/stockbook/internal/depletion/domain"
	fiscalperioddomain "github.com/bistrokit/stockbook/internal/fiscalperiod/domain"
	gldomain "github.com/bistrokit/stockbook/internal/gl/domain"
	ledgerdomain "github.com/bistrokit/stockbook/internal/ledger/domain"
	lotdomain "github.com/bistrokit/stockbook/internal/lot/domain"
	organizationdomain "github.com/bistrokit/stockbook/internal/organization/domain"
	receivingdomain "github.com/bistrokit/stockbook/internal/receiving/domain"
	stocktakedomain "github.com/bistrokit/stockbook/internal/stocktake/domain"
	"github.com/bistrokit/stockbook/pkg/db/pagination"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) {
		return vErr
	}
	return nil
}

// validationSentinels are the bad-input errors of the domain packages,
// all reported as 400 with their sentinel text as the code.
var validationSentinels = []error{
	ledgerdomain.ErrInvalidOrganization,
	ledgerdomain.ErrInvalidBranch,
	ledgerdomain.ErrInvalidItem,
	ledgerdomain.ErrInvalidLocation,
	ledgerdomain.ErrInvalidQty,
	ledgerdomain.ErrInvalidReason,
	lotdomain.ErrInvalidLotNumber,
	lotdomain.ErrInvalidQty,
	costingdomain.ErrInvalidUnitCost,
	costingdomain.ErrInvalidQty,
	gldomain.ErrInvalidSourceID,
	receivingdomain.ErrInvalidQty,
	receivingdomain.ErrInvalidUnitCost,
	depletiondomain.ErrInvalidQty,
	stocktakedomain.ErrInvalidCount,
	organizationdomain.ErrInvalidOrganization,
	pagination.ErrInvalidToken,
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return http.StatusBadRequest, errorPayload{
				Type:    "validation_error",
				Message: "validation error",
				Errors: []ValidationError{
					{Field: "request", Code: sentinel.Error(), Message: sentinel.Error()},
				},
			}
		}
	}

	switch {
	case errors.Is(err, ledgerdomain.ErrInsufficientStock),
		errors.Is(err, lotdomain.ErrInsufficientLotQty):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "insufficient_stock",
			Message: err.Error(),
		}
	case errors.Is(err, lotdomain.ErrLotConflict),
		errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, fiscalperioddomain.ErrPeriodLocked):
		return http.StatusConflict, errorPayload{
			Type:    "period_locked",
			Message: "fiscal period is locked for posting",
		}
	case errors.Is(err, lotdomain.ErrLotNotFound),
		errors.Is(err, gldomain.ErrEntryNotFound),
		errors.Is(err, organizationdomain.ErrOrganizationMissing),
		errors.Is(err, organizationdomain.ErrBranchMissing),
		errors.Is(err, ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

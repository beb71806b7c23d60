package rest

import (
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// errorBody — единый формат ошибок API: машиночитаемый kind плюс сообщение.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const (
	kindValidation            = "validation"
	kindNotFound              = "not_found"
	kindInvalidTransition     = "invalid_transition"
	kindInsufficientInventory = "insufficient_inventory"
	kindAlreadyProcessed      = "already_processed"
	kindCancelled             = "cancelled"
	kindConflict              = "conflict"
	kindInternal              = "internal"
)

// classify сопоставляет доменную ошибку HTTP-статусу и kind. Неизвестные
// ошибки считаются внутренними и не раскрывают деталей наружу.
func classify(err error) (int, string) {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound, kindNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, kindInvalidTransition
	case errors.Is(err, domain.ErrInsufficientInventory):
		return http.StatusConflict, kindInsufficientInventory
	case errors.Is(err, domain.ErrAlreadyProcessed),
		errors.Is(err, domain.ErrOperationNotPending):
		return http.StatusConflict, kindAlreadyProcessed
	case errors.Is(err, domain.ErrOperationCancelled):
		return http.StatusConflict, kindCancelled
	case domain.IsVersionConflict(err):
		return http.StatusConflict, kindConflict
	case isValidation(err):
		return http.StatusBadRequest, kindValidation
	default:
		return http.StatusInternalServerError, kindInternal
	}
}

func isValidation(err error) bool {
	for _, sentinel := range []error{
		domain.ErrItemsRequired,
		domain.ErrItemQtyInvalid,
		domain.ErrItemPriceInvalid,
		domain.ErrTotalMismatch,
		domain.ErrCustomerEmailRequired,
		domain.ErrProductIDRequired,
		domain.ErrQuantityInvalid,
		domain.ErrNegativeQuantity,
		domain.ErrTrackingRequired,
		domain.ErrTargetsRequired,
		domain.ErrTagsRequired,
		domain.ErrUnknownOperationType,
		domain.ErrReturnQtyExceeded,
		domain.ErrAmountExceedsRequested,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

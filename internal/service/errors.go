package service

import (
	"errors"

	"github.com/basket/taskvault/internal/domain"
)

// ErrorMessage is the flattened error shape the facade exposes. Callers get
// a plain message for every failure except validation errors, which pass
// through typed so input mistakes stay distinguishable from system faults.
type ErrorMessage string

func (e ErrorMessage) Error() string { return string(e) }

func flatten(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) && de.Kind == domain.KindValidation {
		return de
	}
	return ErrorMessage(err.Error())
}

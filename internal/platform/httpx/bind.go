package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/loomledger/loomledger/internal/shared"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Bind decodes the JSON body into target and validates its struct tags.
func Bind(r *http.Request, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return err
	}
	return Validate(target)
}

// Validate runs struct tag validation and folds failures into shared.ErrValidation.
func Validate(target any) error {
	if err := validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}

// IDParam parses a positive integer URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", shared.ErrValidation, name, raw)
	}
	return id, nil
}

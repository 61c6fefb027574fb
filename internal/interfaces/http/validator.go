package httpinterface

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/pkg/mathutil"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("amount", validateAmount)
}

// validateAmount accepts strictly positive decimal strings.
func validateAmount(fl validator.FieldLevel) bool {
	amount, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return amount.IsPositive()
}

func validateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf(
				"invalid %s (%s)", strings.ToLower(e.Field()), e.Tag(),
			))
		}
		return fmt.Errorf("%w: %s", errBadRequest, strings.Join(msgs, ", "))
	}
	return nil
}

func parseXMR(amount string) (uint64, error) {
	return parseUnits(amount, domain.XMRPrecision)
}

func parsePrice(price string) (uint64, error) {
	return parseUnits(price, domain.PricePrecision)
}

func parseUnits(amount string, precision int32) (uint64, error) {
	if amount == "" {
		return 0, nil
	}
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", errBadRequest, err)
	}
	units, err := mathutil.ToAtomicUnits(dec, precision)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", errBadRequest, err)
	}
	return units, nil
}

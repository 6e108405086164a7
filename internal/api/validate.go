package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"cvrpsolver/internal/model"
	"cvrpsolver/internal/opt"
)

var errBadRequest = errors.New("invalid request")

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

func validateSolveRequest(req *model.SolveRequest) error {
	if err := validate.Struct(req); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("%s fails %s", strings.TrimPrefix(fe.Namespace(), "SolveRequest."), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", errBadRequest, strings.Join(msgs, "; "))
	}
	if len(req.Demand) != req.Dimension {
		return fmt.Errorf("%w: demand has %d entries, want %d", errBadRequest, len(req.Demand), req.Dimension)
	}
	if req.Demand[0] != 0 {
		return fmt.Errorf("%w: depot demand must be 0", errBadRequest)
	}
	for i, d := range req.Demand {
		if d > req.Capacity {
			return fmt.Errorf("%w: customer %d demand %d exceeds capacity %d", opt.ErrUnplaceableCustomer, i, d, req.Capacity)
		}
	}
	return nil
}

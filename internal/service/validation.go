package service

import (
	"errors"
	"fmt"
	"strings"

	"exam_platform_backend/internal/util"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validateStruct runs the struct tags and folds failures into one
// BadRequest message.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return util.BadRequestError(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return util.BadRequestError("validation failed: " + strings.Join(msgs, "; "))
}

package util

import (
	"quiz_assessment_backend/internal/model"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators 注册自定义校验规则，启动时调用一次
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		return model.QuestionType(fl.Field().String()).Valid()
	})
}

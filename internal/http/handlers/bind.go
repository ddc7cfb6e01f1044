package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/geocoder89/parcelhub/internal/domain/parcel"
	"github.com/geocoder89/parcelhub/internal/domain/payment"
	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/domain/station"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// enum rules usable in binding tags, with the message shown when they fail
var enumRules = map[string]struct {
	valid   func(string) bool
	message string
}{
	"station_code":   {station.ValidCode, "must be a station code of 3-10 letters or digits"},
	"delivery_type":  {func(s string) bool { return parcel.DeliveryType(s).Valid() }, "must be one of standard, express"},
	"payment_method": {func(s string) bool { return payment.Method(s).Valid() }, "must be one of cash, mobile_money"},
	"role":           {func(s string) bool { return role.Role(s).Valid() }, "must be one of user, admin, superadmin"},
}

var registerOnce sync.Once

// RegisterValidators installs the enum rules and makes validation errors
// report JSON field names.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})

		for tag, rule := range enumRules {
			valid := rule.valid
			_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
				return valid(fl.Field().String())
			})
		}
	})
}

// BindJSON decodes and validates the body into out. On failure it writes a
// 400 listing the offending fields and returns false.
func BindJSON(ctx *gin.Context, out any) bool {
	RegisterValidators()

	if err := ctx.ShouldBindJSON(out); err != nil {
		RespondBadRequest(ctx, "Invalid request body", bindErrorDetails(err))
		return false
	}
	return true
}

// respondFieldErrors reports checks a binding tag cannot express, such as
// fields that depend on the caller's role.
func respondFieldErrors(ctx *gin.Context, fields ...FieldError) {
	RespondBadRequest(ctx, "Invalid request body", gin.H{"fields": fields})
}

func bindErrorDetails(err error) gin.H {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{
				Field:   jsonPath(fe.Namespace()),
				Rule:    fe.Tag(),
				Param:   fe.Param(),
				Message: ruleMessage(fe.Tag(), fe.Param()),
			})
		}
		return gin.H{"fields": fields}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return gin.H{"json": "invalid_json_syntax"}
	}

	// Field already holds the dotted path of JSON keys
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return gin.H{
			"json":  "invalid_json_type",
			"field": typeErr.Field,
			"fields": []FieldError{{
				Field:   typeErr.Field,
				Rule:    "type",
				Message: "must be of type " + typeErr.Type.String(),
			}},
		}
	}

	return gin.H{"reason": err.Error()}
}

// jsonPath drops the root struct name from a validator namespace such as
// "CreateRequest.sender.phone".
func jsonPath(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return rest
}

func ruleMessage(rule, param string) string {
	if r, ok := enumRules[rule]; ok {
		return r.message
	}

	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a valid UUID"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "len":
		return "must be exactly " + param
	case "gt":
		return "must be greater than " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	}

	if param != "" {
		return "failed " + rule + " validation (" + param + ")"
	}
	return "failed " + rule + " validation"
}

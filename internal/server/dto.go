package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/p-n-ai/pai-academy/internal/catalog"
)

const maxBodyBytes = 1 << 20

type progressRequest struct {
	WatchTime *float64 `json:"watchTime" validate:"required,gte=0"`
}

type submissionRequest struct {
	Answers map[string]catalog.Answer `json:"answers" validate:"required,min=1"`
}

type certificateRequest struct {
	Type string `json:"type" validate:"required,oneof=BRONZE SILVER GOLD"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names rather than Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. Every failure is a
// *catalog.ValidationError.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return catalog.Invalid("body", "request body is required")
		}
		return catalog.Invalid("body", "malformed JSON: "+err.Error())
	}

	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		flds := make([]catalog.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			flds = append(flds, catalog.FieldError{Field: fe.Field(), Error: describe(fe)})
		}
		return catalog.NewValidationError(flds...)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be at least " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func invalidLimit() error {
	return catalog.Invalid("limit", "must be between 1 and 200")
}

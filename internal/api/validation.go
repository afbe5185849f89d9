package api

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

//go:embed schema/claim.json
var claimSchemaJSON string

var claimSchema = jsonschema.MustCompileString("claim.json", claimSchemaJSON)

var validate = validator.New(validator.WithRequiredStructEnabled())

// errValidation marks request errors that map to 400.
var errValidation = errors.New("validation failed")

// decodeClaim reads a claim body, checks it against the claim schema and
// converts it for the tenant.
func decodeClaim(r *http.Request, tenantID string) (domain.Claim, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return domain.Claim{}, fmt.Errorf("%w: reading body: %v", errValidation, err)
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return domain.Claim{}, fmt.Errorf("%w: invalid JSON request body", errValidation)
	}
	if err := claimSchema.Validate(doc); err != nil {
		return domain.Claim{}, fmt.Errorf("%w: %s", errValidation, schemaMessage(err))
	}

	var req domain.ClaimRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return domain.Claim{}, fmt.Errorf("%w: %v", errValidation, err)
	}
	return req.ToClaim(tenantID), nil
}

// decodeJSON decodes a body into v and runs struct validation.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON request body", errValidation)
	}
	return validateStruct(v)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", errValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", errValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// schemaMessage flattens a schema error to its innermost causes.
func schemaMessage(err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}

	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := strings.TrimPrefix(e.InstanceLocation, "/")
			if loc == "" {
				msgs = append(msgs, e.Message)
			} else {
				msgs = append(msgs, loc+": "+e.Message)
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return strings.Join(msgs, "; ")
}

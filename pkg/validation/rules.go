package validation

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FormField is the key used for errors that concern the whole submission
// rather than a single field.
const FormField = "_form"

// Kind selects the syntax check applied to a field.
type Kind string

const (
	KindText  Kind = "text"
	KindName  Kind = "name"
	KindEmail Kind = "email"
)

// FieldRule declares the checks for one contact form field. Lengths count
// characters, not bytes, and apply to the trimmed value.
type FieldRule struct {
	Field    string `json:"field"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
	Min      int    `json:"min,omitempty"`
	Max      int    `json:"max,omitempty"`
	Kind     Kind   `json:"kind"`
}

// ContactRules is the rule table shared by the server handler and the client
// pipeline. Order here is the order errors are reported in.
var ContactRules = []FieldRule{
	{Field: "name", Label: "Name", Required: true, Min: 2, Max: 100, Kind: KindName},
	{Field: "email", Label: "Email", Required: true, Max: 254, Kind: KindEmail},
	{Field: "subject", Label: "Subject", Required: true, Min: 1, Max: 200, Kind: KindText},
	{Field: "message", Label: "Message", Required: true, Min: 10, Max: 1000, Kind: KindText},
}

// Tag renders the rule as a validator tag. The validator stops at the first
// failing tag, so the order is required, syntax, length, then the
// disposable-domain check.
func (r FieldRule) Tag() string {
	var tags []string
	if r.Required {
		tags = append(tags, "required")
	} else {
		tags = append(tags, "omitempty")
	}
	switch r.Kind {
	case KindName:
		tags = append(tags, "portfolio_name")
	case KindEmail:
		tags = append(tags, "portfolio_email")
	}
	if r.Min > 0 {
		tags = append(tags, "min="+strconv.Itoa(r.Min))
	}
	if r.Max > 0 {
		tags = append(tags, "max="+strconv.Itoa(r.Max))
	}
	if r.Kind == KindEmail {
		tags = append(tags, "not_disposable")
	}
	return strings.Join(tags, ",")
}

// FieldError is a single user-facing validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result is the outcome of validating a submission.
type Result struct {
	Valid       bool
	Suspicious  bool
	FieldErrors map[string]string
}

// Errors returns the field errors in rule order, followed by the form-level
// error when present.
func (r Result) Errors() []FieldError {
	out := make([]FieldError, 0, len(r.FieldErrors))
	for _, rule := range ContactRules {
		if msg, ok := r.FieldErrors[rule.Field]; ok {
			out = append(out, FieldError{Field: rule.Field, Message: msg})
		}
	}
	if msg, ok := r.FieldErrors[FormField]; ok {
		out = append(out, FieldError{Field: FormField, Message: msg})
	}
	return out
}

// Fields returns the names of the failing fields in rule order.
func (r Result) Fields() []string {
	errs := r.Errors()
	names := make([]string, len(errs))
	for i, e := range errs {
		names[i] = e.Field
	}
	return names
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	RegisterValidators(v)
	return v
}

// Validate checks values (keyed by field name) against ContactRules. Values
// are trimmed before checking. Each field is judged on its own and reports at
// most one message; the combined text is then scanned for injection patterns.
func Validate(values map[string]string) Result {
	res := Result{Valid: true, FieldErrors: map[string]string{}}

	trimmed := make([]string, 0, len(ContactRules))
	for _, rule := range ContactRules {
		value := strings.TrimSpace(values[rule.Field])
		trimmed = append(trimmed, value)

		if msg := checkRule(rule, value); msg != "" {
			res.Valid = false
			res.FieldErrors[rule.Field] = msg
		}
	}

	if ContainsSuspicious(trimmed...) {
		res.Valid = false
		res.Suspicious = true
		res.FieldErrors[FormField] = MsgInvalidInput
	}

	return res
}

// ValidateField checks a single field the way Validate would, without the
// injection scan. It returns the message to show, or "" when the value passes.
// Unknown fields always pass.
func ValidateField(field, value string) string {
	rule, ok := RuleFor(field)
	if !ok {
		return ""
	}
	return checkRule(rule, strings.TrimSpace(value))
}

// RuleFor looks up the rule for a field name.
func RuleFor(field string) (FieldRule, bool) {
	for _, rule := range ContactRules {
		if rule.Field == field {
			return rule, true
		}
	}
	return FieldRule{}, false
}

func checkRule(rule FieldRule, value string) string {
	err := validate.Var(value, rule.Tag())
	if err == nil {
		return ""
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return formatRuleError(rule, "")
	}
	return formatRuleError(rule, verrs[0].Tag())
}

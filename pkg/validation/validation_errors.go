package validation

import "fmt"

// Form-level messages
const (
	MsgInvalidInput = "Invalid input detected."
	MsgFixErrors    = "Please correct the errors in the form."
)

// formatRuleError converts a failed tag on rule into a user-friendly message.
// Messages only ever contain the rule's own label and limits.
func formatRuleError(rule FieldRule, tag string) string {
	label := rule.Label

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required.", label)

	case "min", "max":
		if rule.Min > 0 {
			return fmt.Sprintf("%s must be between %d and %d characters.", label, rule.Min, rule.Max)
		}
		return fmt.Sprintf("%s is too long (maximum %d characters).", label, rule.Max)

	case "portfolio_name":
		return fmt.Sprintf("%s contains invalid characters.", label)

	case "portfolio_email":
		return "Please provide a valid email address."

	case "not_disposable":
		return "Disposable email addresses are not allowed."

	default:
		// Fallback for unknown tags
		return fmt.Sprintf("%s is invalid.", label)
	}
}

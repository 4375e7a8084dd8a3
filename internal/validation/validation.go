// Package validation provides field validators and request middleware for the risk API.
package validation

import (
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// ethAddressRegex requires the 0x prefix, which common.IsHexAddress does not
var ethAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidEthAddress checks if a string is a 0x-prefixed 20-byte hex
// address. Mixed-case input must carry a valid EIP-55 checksum.
func IsValidEthAddress(addr string) bool {
	return ethAddressRegex.MatchString(addr) && HasValidChecksum(addr)
}

// HasValidChecksum reports whether addr's letter case is consistent with
// EIP-55. All-lower and all-upper hex carry no checksum and pass.
func HasValidChecksum(addr string) bool {
	digits := strings.TrimPrefix(addr, "0x")
	if digits == strings.ToLower(digits) || digits == strings.ToUpper(digits) {
		return true
	}
	return common.HexToAddress(addr).Hex() == addr
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)

	if len(s) > maxLen {
		s = s[:maxLen]
	}

	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// SanitizeAddress returns the lower-case 0x form of a trimmed address.
// Bare 40-char hex gains the prefix; anything that is not an address is
// only lower-cased.
func SanitizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return strings.ToLower(addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex())
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	if len(e) == 1 {
		return e[0].Field + ": " + e[0].Message
	}
	return fmt.Sprintf("%s: %s (and %d more)", e[0].Field, e[0].Message, len(e)-1)
}

// Validate runs validators and collects every failure
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAddress checks if a field is a valid Ethereum address
func ValidAddress(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !ethAddressRegex.MatchString(value) {
			return &ValidationError{Field: field, Message: "must be a valid Ethereum address (0x...)"}
		}
		if !HasValidChecksum(value) {
			return &ValidationError{Field: field, Message: "has an invalid EIP-55 checksum"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// NonNegative checks that an integer count is >= 0
func NonNegative(field string, value int) func() *ValidationError {
	return func() *ValidationError {
		if value < 0 {
			return &ValidationError{Field: field, Message: "must not be negative"}
		}
		return nil
	}
}

// InRange checks that a float lies in [min, max] and is finite.
func InRange(field string, value, min, max float64) func() *ValidationError {
	return func() *ValidationError {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return &ValidationError{Field: field, Message: "must be a finite number"}
		}
		if value < min || value > max {
			return &ValidationError{Field: field, Message: fmt.Sprintf("must be between %g and %g", min, max)}
		}
		return nil
	}
}

// OptionalInRange is InRange for pointer fields; nil passes.
func OptionalInRange(field string, value *float64, min, max float64) func() *ValidationError {
	return func() *ValidationError {
		if value == nil {
			return nil
		}
		return InRange(field, *value, min, max)()
	}
}

// OneOf checks that a non-empty value is in the allowed set
func OneOf(field, value string, allowed ...string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return &ValidationError{Field: field, Message: "must be one of " + strings.Join(allowed, ", ")}
	}
}

// AddressParamMiddleware validates the :address URL parameter on routes that use it.
func AddressParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := c.Param("address")
		if addr != "" && !IsValidEthAddress(addr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "address must be a valid Ethereum address (0x + 40 hex chars)",
			})
			return
		}
		c.Next()
	}
}

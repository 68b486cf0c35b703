// Package security validates user-supplied schedule text and push endpoints
// before they reach the store or a notification.
package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

var (
	ErrEndpointInvalid  = errors.New("endpoint is not a valid URL")
	ErrEndpointInsecure = errors.New("endpoint must use https")
)

const maxEndpointSize = 2048

type Guard struct {
	name        *InputValidator
	dosage      *InputValidator
	instruction *InputValidator
}

func NewGuard() *Guard {
	name := NewInputValidator(200)
	name.Required = true

	instruction := NewInputValidator(1000)
	instruction.AllowNewlines = true

	return &Guard{
		name:        name,
		dosage:      NewInputValidator(100),
		instruction: instruction,
	}
}

type ValidationResult struct {
	Valid  bool
	Errors []string
}

func (v *ValidationResult) AddError(err string) {
	v.Errors = append(v.Errors, err)
	v.Valid = false
}

// Error joins the collected errors, or returns "" when valid
func (v *ValidationResult) Error() string {
	if v.Valid {
		return ""
	}
	msg := v.Errors[0]
	for _, e := range v.Errors[1:] {
		msg += "; " + e
	}
	return msg
}

// CheckMedicine validates the text fields shown in alerts and push payloads
func (g *Guard) CheckMedicine(name, dosage, instruction string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if err := g.name.Validate(name); err != nil {
		result.AddError(fmt.Sprintf("medicine_name: %v", err))
	}
	if err := g.dosage.Validate(dosage); err != nil {
		result.AddError(fmt.Sprintf("dosage: %v", err))
	}
	if err := g.instruction.Validate(instruction); err != nil {
		result.AddError(fmt.Sprintf("instruction: %v", err))
	}

	return result
}

// CheckEndpoint accepts https push service URLs. Plain http is allowed only
// for loopback hosts.
func (g *Guard) CheckEndpoint(endpoint string) error {
	if len(endpoint) > maxEndpointSize {
		return ErrInputTooLarge
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ErrEndpointInvalid
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
		return ErrEndpointInsecure
	default:
		return ErrEndpointInvalid
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

var DefaultGuard = NewGuard()

func CheckMedicine(name, dosage, instruction string) *ValidationResult {
	return DefaultGuard.CheckMedicine(name, dosage, instruction)
}

func CheckEndpoint(endpoint string) error {
	return DefaultGuard.CheckEndpoint(endpoint)
}

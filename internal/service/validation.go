package service

import (
	"errors"
	"fmt"
	"strings"

	"salonbook/internal/domain"
	"salonbook/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

const minPasswordLength = 8

// contact is a validated set of client contact fields.
type contact struct {
	Name  string
	Email string
	Phone string
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips formatting characters and turns a 00 prefix into +.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ', r == '-', r == '(', r == ')', r == '.':
		default:
			// Любой другой символ делает номер невалидным
			b.WriteRune(r)
		}
	}
	out := b.String()
	if strings.HasPrefix(out, "00") {
		out = "+" + out[2:]
	}
	return out
}

func validateContact(name, email, phone string, phoneRequired bool) (contact, error) {
	c := contact{
		Name:  strings.TrimSpace(name),
		Email: NormalizeEmail(email),
		Phone: NormalizePhone(phone),
	}

	if err := validate.Var(c.Name, "required,max=120"); err != nil {
		return c, domain.ErrInvalidName
	}
	if err := validate.Var(c.Email, "required,email,max=254"); err != nil {
		return c, domain.ErrInvalidEmail
	}
	if c.Phone == "" {
		if phoneRequired {
			return c, domain.ErrInvalidPhone
		}
		return c, nil
	}
	if err := validate.Var(c.Phone, "e164"); err != nil {
		return c, domain.ErrInvalidPhone
	}
	return c, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return domain.ErrWeakPassword
	}
	return nil
}

type serviceRules struct {
	Name            string  `validate:"required,max=120"`
	Price           float64 `validate:"gte=0"`
	DurationMinutes int     `validate:"gt=0,lte=480"`
	Category        string  `validate:"max=60"`
}

func validateService(s *models.Service) error {
	err := validate.Struct(serviceRules{
		Name:            strings.TrimSpace(s.Name),
		Price:           s.Price,
		DurationMinutes: s.DurationMinutes,
		Category:        s.Category,
	})
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, describeValidation(err))
	}
	return nil
}

type professionalRules struct {
	Name     string `validate:"required,max=120"`
	Bio      string `validate:"max=2000"`
	Timezone string `validate:"omitempty,timezone"`
}

func validateProfessional(p *models.Professional) error {
	err := validate.Struct(professionalRules{
		Name:     strings.TrimSpace(p.Name),
		Bio:      p.Bio,
		Timezone: p.Timezone,
	})
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, describeValidation(err))
	}
	if p.WorkingHours.Open == "" && p.WorkingHours.Close == "" {
		return nil
	}
	open, closeAt, err := p.WorkingHours.Bounds()
	if err != nil {
		return fmt.Errorf("%w: working hours: %v", domain.ErrInvalidInput, err)
	}
	// Слоты строятся от открытия, границы должны лежать на сетке
	if open%models.SlotDuration != 0 || closeAt%models.SlotDuration != 0 {
		return fmt.Errorf("%w: working hours must start and end on the half hour", domain.ErrInvalidInput)
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

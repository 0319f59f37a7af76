package domain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/ecoleta/internal/core/domain"
)

func validForm() domain.RegistrationForm {
	return domain.RegistrationForm{
		Name:     "Mercado Verde",
		Email:    "contato@mercadoverde.com.br",
		Whatsapp: "41999990000",
		UF:       "PR",
		City:     "Curitiba",
		Location: domain.Coordinate{Latitude: -25.4284, Longitude: -49.2733},
		Items:    domain.NewSelection(1, 2),
	}
}

func TestRegistrationForm_Validate(t *testing.T) {
	reg, err := validForm().Validate()
	require.NoError(t, err)
	assert.Equal(t, "Mercado Verde", reg.Name)
	assert.Equal(t, []int{1, 2}, reg.Items)
	assert.Nil(t, reg.Image)
}

func TestRegistrationForm_ValidateCollectsAllProblems(t *testing.T) {
	_, err := domain.RegistrationForm{Email: "not-an-email"}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	for _, field := range []string{"name", "email", "whatsapp", "uf", "city", "location", "items"} {
		assert.Contains(t, verr.Fields, field)
	}
}

func TestRegistrationForm_ValidateRejectsOutOfRangeLocation(t *testing.T) {
	f := validForm()
	f.Location = domain.Coordinate{Latitude: 123, Longitude: 10}

	_, err := f.Validate()
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "location")
}

func TestNewErrorView(t *testing.T) {
	assert.Nil(t, domain.NewErrorView(nil))

	v := domain.NewErrorView(&domain.RemoteError{Service: "registry", Op: "list points", StatusCode: 503})
	assert.Equal(t, "upstream_error", v.Code)
	assert.True(t, v.Retryable)

	v = domain.NewErrorView(&domain.RemoteError{Service: "registry", Op: "create point", StatusCode: 400})
	assert.False(t, v.Retryable)

	v = domain.NewErrorView(domain.ErrPermissionDenied)
	assert.Equal(t, "permission_denied", v.Code)
}

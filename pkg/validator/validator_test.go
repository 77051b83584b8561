package validator

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/natours/natours/pkg/errors"
)

type signupRequest struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func validSignup() signupRequest {
	return signupRequest{
		Name:            "Laura Wilson",
		Email:           "laura@example.com",
		Password:        "pass1234",
		PasswordConfirm: "pass1234",
	}
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(validSignup()))
}

func TestValidate_MissingRequired_UsesJSONName(t *testing.T) {
	s := validSignup()
	s.Name = ""
	err := Validate(s)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "is required", fields["name"])
}

func TestValidate_InvalidEmail(t *testing.T) {
	s := validSignup()
	s.Email = "not-an-email"
	err := Validate(s)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be a valid email address", valErr.Fields()["email"])
}

func TestValidate_PasswordConfirmMismatch(t *testing.T) {
	s := validSignup()
	s.PasswordConfirm = "different1"
	err := Validate(s)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields()["passwordConfirm"], "must match")
}

type ratingStruct struct {
	Rating int    `json:"rating" validate:"min=1,max=5"`
	Short  string `json:"short" validate:"omitempty,min=3"`
}

func TestValidate_NumericAndStringBounds(t *testing.T) {
	err := Validate(ratingStruct{Rating: 6, Short: "ab"})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "must be at most 5", fields["rating"])
	assert.Equal(t, "must be at least 3 characters", fields["short"])
}

type oneofStruct struct {
	Role string `json:"role" validate:"oneof=user guide lead-guide admin"`
}

func TestValidate_OneOf(t *testing.T) {
	err := Validate(oneofStruct{Role: "root"})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields()["role"], "one of")
}

func TestValidationError_ErrorString(t *testing.T) {
	err := Validate(signupRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'name'")
	assert.Contains(t, err.Error(), "is required")
}

func TestValidationError_AppError(t *testing.T) {
	err := Validate(signupRequest{})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	appErr := valErr.AppError()
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.Contains(t, appErr.Fields, "email")
}

func TestDecodeAndValidate_Success(t *testing.T) {
	body := `{"name":"Laura Wilson","email":"laura@example.com","password":"pass1234","passwordConfirm":"pass1234"}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))

	var s signupRequest
	require.NoError(t, DecodeAndValidate(req, &s))
	assert.Equal(t, "Laura Wilson", s.Name)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{invalid"))

	var s signupRequest
	err := DecodeAndValidate(req, &s)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestDecodeAndValidate_ValidationFails(t *testing.T) {
	body := `{"name":"","email":"bad"}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))

	var s signupRequest
	err := DecodeAndValidate(req, &s)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Contains(t, appErr.Fields, "name")
}

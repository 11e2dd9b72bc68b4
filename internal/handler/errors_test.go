package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/credit-cpr/internal/model"
	"github.com/iliyamo/credit-cpr/internal/service"
)

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		&service.InputError{Msg: "bad"}:                              http.StatusBadRequest,
		service.ErrInvalidCredentials:                                http.StatusUnauthorized,
		service.ErrDenied:                                            http.StatusForbidden,
		&service.DeniedError{Reason: service.QuotaMessage}:           http.StatusForbidden,
		fmt.Errorf("lookup: %w", service.ErrNotFound):                http.StatusNotFound,
		service.ErrDuplicate:                                         http.StatusConflict,
		service.ErrAlreadyUsed:                                       http.StatusConflict,
		service.ErrExhausted:                                         http.StatusConflict,
		service.ErrExpired:                                           http.StatusGone,
		&service.ProviderError{Op: "checkout", Err: errors.New("x")}: http.StatusBadGateway,
		errors.New("disk on fire"):                                   http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestFailHidesInternalErrors(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	_ = fail(c, errors.New("dial tcp 10.0.0.3:3306: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	_ = failWith(c, service.ErrExhausted, service.MsgCodeExhausted)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), service.MsgCodeExhausted)
}

func TestRenderLetter(t *testing.T) {
	u := model.User{Email: "a@b.com"}
	l := model.DisputeLetter{
		Bureau:           "TransUnion",
		ErrorDescription: "Late payment reported in error",
		CreatedAt:        time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	out := renderLetter(u, l)
	assert.True(t, strings.HasPrefix(out, "To: TransUnion\nFrom: a@b.com\n"))
	assert.Contains(t, out, "March 1, 2026")
	assert.Contains(t, out, "Late payment reported in error")
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type windowQuery struct {
	Symbol string `param:"symbol" validate:"required,max=8"`
	Window string `query:"window" default:"1h"`
	Level  string `query:"level" default:"NORMAL" validate:"oneof=NORMAL WARNING"`
}

func newCtx(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestReadAndValidateRequestDefaults(t *testing.T) {
	c, _ := newCtx(http.MethodGet, "/x/BTC", "")
	c.SetParamNames("symbol")
	c.SetParamValues("BTC")

	var q windowQuery
	require.Nil(t, ReadAndValidateRequest(c, &q))
	assert.Equal(t, "BTC", q.Symbol)
	assert.Equal(t, "1h", q.Window)
	assert.Equal(t, "NORMAL", q.Level)
}

func TestReadAndValidateRequestErrors(t *testing.T) {
	c, _ := newCtx(http.MethodGet, "/x/ABCDEFGHIJ?level=LOUD", "")
	c.SetParamNames("symbol")
	c.SetParamValues("ABCDEFGHIJ")

	var q windowQuery
	out := ReadAndValidateRequest(c, &q)
	errs, ok := out.([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 2)
	assert.Equal(t, "ERR_MAX", errs[0].Code)
	assert.Equal(t, "Symbol must be at most 8 characters", errs[0].Message)
	assert.Equal(t, "ERR_ONEOF", errs[1].Code)
	assert.Equal(t, []string{"NORMAL", "WARNING"}, errs[1].Params["options"])
}

func TestAppErrorResponse(t *testing.T) {
	c, rec := newCtx(http.MethodGet, "/", "")
	err := NotFoundErrorf("no decision for %s", "BTCUSDT").WithParam("symbol", "BTCUSDT")
	require.NoError(t, AppErrorResponse(c, err))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body struct {
		Status int        `json:"status"`
		Data   []AppError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, body.Status)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "ERR_NOT_FOUND", body.Data[0].Code)
	assert.Equal(t, "BTCUSDT", body.Data[0].Params["symbol"])

	c, rec = newCtx(http.MethodGet, "/", "")
	require.NoError(t, AppErrorResponse(c, errors.New("db gone")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAppErrorUnwrap(t *testing.T) {
	base := errors.New("timeout")
	err := UnavailableError("store").WithError(base)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "store: timeout", err.Error())
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
}

func TestParseWindowWrapper(t *testing.T) {
	d, err := ParseWindow("2d")
	require.NoError(t, err)
	assert.Equal(t, 48.0, d.Hours())
	assert.Equal(t, 7, ParseIntDefault("x", 7))
}

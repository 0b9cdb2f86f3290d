package v1

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/slawatch/internal/profile"
)

func TestIDSerializesAsString(t *testing.T) {
	type payload struct {
		ChatID ID  `json:"chatId"`
		UserID *ID `json:"userId"`
	}

	out, err := json.Marshal(payload{ChatID: -1001234567890, UserID: ptr(ID(777))})
	require.NoError(t, err)
	require.JSONEq(t, `{"chatId":"-1001234567890","userId":"777"}`, string(out))

	var in payload
	require.NoError(t, json.Unmarshal([]byte(`{"chatId":"-1001234567890","userId":"777"}`), &in))
	require.Equal(t, int64(-1001234567890), in.ChatID.Int64())
	require.Equal(t, int64(777), in.UserID.Int64())

	require.Error(t, json.Unmarshal([]byte(`{"chatId":123}`), &in))
	require.Error(t, json.Unmarshal([]byte(`{"chatId":"abc"}`), &in))
}

func TestValidateHolidayDate(t *testing.T) {
	require.NoError(t, validateHolidayDate("2025-03-08"))
	require.NoError(t, validateHolidayDate("2024-01-01"))
	require.NoError(t, validateHolidayDate("2030-12-31"))

	require.Error(t, validateHolidayDate("08.03.2025"))
	require.Error(t, validateHolidayDate("2025-3-8"))
	require.Error(t, validateHolidayDate("2025-02-30"))
	require.Error(t, validateHolidayDate("2023-05-01"))
	require.Error(t, validateHolidayDate("2031-05-01"))
	require.Error(t, validateHolidayDate(""))
}

func TestValidateClock(t *testing.T) {
	require.NoError(t, validateClock("09:00"))
	require.NoError(t, validateClock("23:59"))
	require.Error(t, validateClock("24:00"))
	require.Error(t, validateClock("9:00"))
	require.Error(t, validateClock("09:60"))
	require.Error(t, validateClock("0900"))
}

func TestTimeRangeBounds(t *testing.T) {
	now := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)

	from, to := timeRange{}.bounds(now)
	require.Equal(t, now.Unix(), to)
	require.Equal(t, now.AddDate(0, 0, -30).Unix(), from)

	from, to = timeRange{FromTs: 100, ToTs: 200}.bounds(now)
	require.Equal(t, int64(100), from)
	require.Equal(t, int64(200), to)
}

func testContext(body string) echo.Context {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestBindStrict(t *testing.T) {
	var in struct {
		ChatID ID `json:"chatId"`
	}

	require.NoError(t, bindStrict(testContext(`{"chatId":"42"}`), &in))
	require.Equal(t, int64(42), in.ChatID.Int64())

	require.Error(t, bindStrict(testContext(`{"chatId":"42","bogus":true}`), &in))

	// An empty body means "all defaults".
	in.ChatID = 0
	require.NoError(t, bindStrict(testContext(""), &in))
	require.Equal(t, int64(0), in.ChatID.Int64())
}

func TestTierOf(t *testing.T) {
	s := &APIV1Service{profile: &profile.Profile{
		AdminToken:   "admin-secret",
		ManagerToken: "manager-secret",
		AuthedToken:  "authed-secret",
	}}

	require.Equal(t, tierAdmin, s.tierOf("admin-secret"))
	require.Equal(t, tierManager, s.tierOf("manager-secret"))
	require.Equal(t, tierAuthed, s.tierOf("authed-secret"))
	require.EqualValues(t, -1, s.tierOf("wrong"))
	require.EqualValues(t, -1, s.tierOf(""))
}

func TestRequireTier(t *testing.T) {
	s := &APIV1Service{profile: &profile.Profile{
		Mode:         "prod",
		AdminToken:   "admin-secret",
		ManagerToken: "manager-secret",
	}}
	next := func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}

	call := func(token string, minimum tier) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/settings/getGlobalSettings", nil)
		if token != "" {
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		c := echo.New().NewContext(req, rec)
		require.NoError(t, s.requireTier(minimum)(next)(c))
		return rec.Code
	}

	require.Equal(t, http.StatusOK, call("admin-secret", tierAdmin))
	require.Equal(t, http.StatusOK, call("admin-secret", tierAuthed))
	require.Equal(t, http.StatusForbidden, call("manager-secret", tierAdmin))
	require.Equal(t, http.StatusUnauthorized, call("", tierAuthed))
	require.Equal(t, http.StatusUnauthorized, call("wrong", tierAuthed))

	// Dev mode with no tokens configured runs open.
	open := &APIV1Service{profile: &profile.Profile{Mode: "dev"}}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	require.NoError(t, open.requireTier(tierAdmin)(next)(c))
	require.Equal(t, http.StatusOK, rec.Code)
}

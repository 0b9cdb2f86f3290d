package v1

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// ID is a 64-bit identifier serialized as a JSON string. Transport chat and
// message ids exceed the safe integer range of JSON consumers.
type ID int64

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(id), 10))
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("id must be a string: %w", err)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", s)
	}
	*id = ID(v)
	return nil
}

func (id ID) Int64() int64 { return int64(id) }

func idOf(v int64) ID { return ID(v) }

func idPtr(v *int64) *ID {
	if v == nil {
		return nil
	}
	id := ID(*v)
	return &id
}

func ids(vs []int64) []ID {
	out := make([]ID, 0, len(vs))
	for _, v := range vs {
		out = append(out, ID(v))
	}
	return out
}

func int64s(vs []ID) []int64 {
	out := make([]int64, 0, len(vs))
	for _, v := range vs {
		out = append(out, int64(v))
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func nowUnix() int64 { return time.Now().Unix() }

// bindStrict decodes the request body rejecting unknown fields. An empty body
// is accepted and leaves the target zero-valued.
func bindStrict(c echo.Context, target any) error {
	decoder := json.NewDecoder(c.Request().Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if err.Error() == "EOF" {
			return nil
		}
		return err
	}
	return nil
}

var (
	dateRe  = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	clockRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

const (
	holidayYearMin = 2024
	holidayYearMax = 2030
)

// validateHolidayDate checks the YYYY-MM-DD format, that the date exists on
// the calendar, and the accepted year window.
func validateHolidayDate(date string) error {
	m := dateRe.FindStringSubmatch(date)
	if m == nil {
		return fmt.Errorf("date %q must be YYYY-MM-DD", date)
	}
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		return fmt.Errorf("invalid date %q", date)
	}
	year := parsed.Year()
	if year < holidayYearMin || year > holidayYearMax {
		return fmt.Errorf("year %d out of accepted range %d-%d", year, holidayYearMin, holidayYearMax)
	}
	return nil
}

func validateClock(value string) error {
	if !clockRe.MatchString(value) {
		return fmt.Errorf("time %q must be HH:MM", value)
	}
	return nil
}

// timeRange is the shared from/to input of analytics procedures, in unix
// seconds. Zero values default to the last 30 days.
type timeRange struct {
	FromTs int64 `json:"fromTs"`
	ToTs   int64 `json:"toTs"`
}

func (r timeRange) bounds(now time.Time) (int64, int64) {
	from, to := r.FromTs, r.ToTs
	if to == 0 {
		to = now.Unix()
	}
	if from == 0 {
		from = now.AddDate(0, 0, -30).Unix()
	}
	return from, to
}

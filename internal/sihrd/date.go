package sihrd

import (
	"database/sql/driver"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Date is a calendar date without a time zone. It is stored as a SQL DATE, encoded as
// "YYYY-MM-DD" in JSON and converted to days since the Unix epoch for parquet.
type Date struct {
	civil.Date
}

// NewDate returns the Date for year, month and day. The result is only meaningful for
// valid dates; see SafeMonthDate and ParseBirthDate for the checked constructors.
func NewDate(year int, month time.Month, day int) Date {
	return Date{civil.Date{Year: year, Month: month, Day: day}}
}

// Ptr returns a pointer to a copy of d.
func (d Date) Ptr() *Date {
	return &d
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner. Drivers return DATE columns either as time.Time or as text.
func (d *Date) Scan(value interface{}) error {
	switch v := value.(type) {
	case time.Time:
		d.Date = civil.DateOf(v)
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("sihrd: cannot scan %T into Date", value)
	}
}

func (d *Date) parse(s string) error {
	if len(s) > 10 {
		s = s[:10]
	}
	parsed, err := civil.ParseDate(s)
	if err != nil {
		return fmt.Errorf("sihrd: cannot scan %q into Date: %w", s, err)
	}
	d.Date = parsed
	return nil
}

// GormDataType sets the column type gorm uses for staging tables.
func (Date) GormDataType() string {
	return "date"
}

// EpochDays returns the number of days between 1970-01-01 and d.
func (d Date) EpochDays() int32 {
	return int32(d.DaysSince(civil.Date{Year: 1970, Month: time.January, Day: 1}))
}

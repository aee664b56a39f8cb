package sihrd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/datasus/sihrd/pkg/batch/core/application/port"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// ErrStrictConversion is matched by every ConversionError. A value that must convert
// and does not aborts the run.
var ErrStrictConversion = errors.New("strict conversion failed")

// ConversionError reports the field and value a strict cast rejected.
type ConversionError struct {
	Field string
	Value string
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s: %q is not a valid value for %s: %v", ErrStrictConversion, e.Value, e.Field, e.Err)
}

// Unwrap lets errors.Is match ErrStrictConversion.
func (e *ConversionError) Unwrap() []error {
	return []error{ErrStrictConversion, e.Err}
}

// StrictInt parses v as a base 10 integer. Surrounding whitespace is ignored; anything
// else that is not an integer, including the empty string, is an error. A nil v is nil.
func StrictInt(field string, v *string) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(*v), 10, 64)
	if err != nil {
		return nil, &ConversionError{Field: field, Value: *v, Err: err}
	}
	return &n, nil
}

// StrictFloat parses v as a finite floating point number, with the rules of StrictInt.
func StrictFloat(field string, v *string) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(*v), 64)
	if err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
		err = errors.New("value is not finite")
	}
	if err != nil {
		return nil, &ConversionError{Field: field, Value: *v, Err: err}
	}
	return &f, nil
}

// SafeInt is StrictInt returning nil instead of an error.
func SafeInt(v *string) *int64 {
	n, err := StrictInt("", v)
	if err != nil {
		return nil
	}
	return n
}

// SafeMonthDate returns the first day of month in year, or nil when either is nil or
// outside 1..9999 and 1..12.
func SafeMonthDate(year, month *int64) *Date {
	if year == nil || month == nil {
		return nil
	}
	if *year < 1 || *year > 9999 || *month < 1 || *month > 12 {
		return nil
	}
	return NewDate(int(*year), time.Month(*month), 1).Ptr()
}

// ParseBirthDate parses exactly eight ASCII digits as YYYYMMDD. Anything else, and
// digits that do not name a real calendar day, yield nil.
func ParseBirthDate(nasc *string) *Date {
	if nasc == nil || len(*nasc) != 8 {
		return nil
	}
	s := *nasc
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil
		}
	}
	year, _ := strconv.Atoi(s[0:4])
	month, _ := strconv.Atoi(s[4:6])
	day, _ := strconv.Atoi(s[6:8])
	d := NewDate(year, time.Month(month), day)
	if year < 1 || !d.IsValid() {
		return nil
	}
	return &d
}

// AgeAt returns the completed years between birth and today. It is negative when birth
// is after today.
func AgeAt(birth, today Date) int64 {
	age := int64(today.Year - birth.Year)
	if today.Month < birth.Month || (today.Month == birth.Month && today.Day < birth.Day) {
		age--
	}
	return age
}

// Normalize maps raw onto the trusted schema. today is the processing date used for age.
// Only days_hospitalized and total_value can fail; every other field degrades to nil.
func Normalize(raw RawRecord, today Date) (TrustedRecord, error) {
	days, err := StrictInt("QT_DIARIAS", raw.QtDiarias)
	if err != nil {
		return TrustedRecord{}, err
	}
	total, err := StrictFloat("VAL_TOT", raw.ValTot)
	if err != nil {
		return TrustedRecord{}, err
	}

	year := SafeInt(raw.AnoCmpt)
	month := SafeInt(raw.MesCmpt)
	birth := ParseBirthDate(raw.Nasc)
	var age *int64
	if birth != nil {
		age = Int64(AgeAt(*birth, today))
	}

	return TrustedRecord{
		MunicipalityCode:    raw.UFZI,
		Date:                SafeMonthDate(year, month),
		Year:                year,
		Month:               month,
		SpecialtyBed:        raw.Espec,
		TypeAIH:             raw.Ident,
		PatientMunicipality: raw.MunicRes,
		Gender:              raw.Sexo,
		TypeUTI:             raw.MarcaUTI,
		DaysHospitalized:    days,
		Procedure:           raw.ProcRea,
		TotalValue:          total,
		Death:               raw.Morte,
		RiskPregnant:        raw.GestRisco,
		RaceColor:           raw.RacaCor,
		BirthDate:           birth,
		Age:                 age,
	}, nil
}

// Normalizer is the raw to trusted ItemProcessor. The processing date is fixed when the
// Normalizer is created, so every row of a run shares it.
type Normalizer struct {
	today Date
}

// NewNormalizer takes the processing date from clock in loc.
func NewNormalizer(clock Clock, loc *time.Location) *Normalizer {
	return &Normalizer{today: ProcessingDate(clock, loc)}
}

var (
	_ port.ItemProcessor[RawRecord, TrustedRecord] = (*Normalizer)(nil)
	_ port.ItemStream                              = (*Normalizer)(nil)
)

// Today returns the processing date.
func (n *Normalizer) Today() Date {
	return n.today
}

// Open records the processing date in the step context.
func (n *Normalizer) Open(ctx context.Context, ec model.ExecutionContext) error {
	if ec != nil {
		ec.Put("normalizer.processingDate", n.today.String())
	}
	logger.Infof("Normalizer: processing date is %s.", n.today)
	return nil
}

// Close implements port.ItemStream.
func (n *Normalizer) Close(ctx context.Context) error { return nil }

// Process implements port.ItemProcessor.
func (n *Normalizer) Process(ctx context.Context, raw RawRecord) (TrustedRecord, error) {
	return Normalize(raw, n.today)
}

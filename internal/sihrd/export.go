package sihrd

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/datasus/sihrd/pkg/batch/core/application/port"
)

// DefaultPartition names the partition of rows whose partition column is null.
const DefaultPartition = "__HIVE_DEFAULT_PARTITION__"

// RefinedParquetRow is the parquet layout of a refined record. Dates are days since the
// Unix epoch.
type RefinedParquetRow struct {
	MunicipalityCode        *string  `parquet:"name=municipality_code, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Municipality            *string  `parquet:"name=municipality, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Date                    *int32   `parquet:"name=date, type=INT32, convertedtype=DATE, repetitiontype=OPTIONAL"`
	Year                    *int64   `parquet:"name=year, type=INT64, repetitiontype=OPTIONAL"`
	Month                   *int64   `parquet:"name=month, type=INT64, repetitiontype=OPTIONAL"`
	SpecialtyBedCode        *string  `parquet:"name=specialty_bed_code, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	SpecialtyBed            *string  `parquet:"name=specialty_bed, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	TypeAIHCode             *string  `parquet:"name=type_aih_code, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	TypeAIH                 *string  `parquet:"name=type_aih, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	PatientMunicipalityCode *string  `parquet:"name=patient_municipality_code, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	PatientMunicipality     *string  `parquet:"name=patient_municipality, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	GenderCode              *string  `parquet:"name=gender_code, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Gender                  *string  `parquet:"name=gender, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	TypeUTICode             *string  `parquet:"name=type_uti_code, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	TypeUTI                 *string  `parquet:"name=type_uti, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	DaysHospitalized        *int64   `parquet:"name=days_hospitalized, type=INT64, repetitiontype=OPTIONAL"`
	ProcedureCode           *string  `parquet:"name=procedure_code, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Procedure               *string  `parquet:"name=procedure, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	TotalValue              *float64 `parquet:"name=total_value, type=DOUBLE, repetitiontype=OPTIONAL"`
	Death                   *string  `parquet:"name=death, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	RiskPregnant            *string  `parquet:"name=risk_pregnant, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	RaceColorCode           *string  `parquet:"name=race_color_code, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	RaceColor               *string  `parquet:"name=race_color, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	BirthDate               *int32   `parquet:"name=birth_date, type=INT32, convertedtype=DATE, repetitiontype=OPTIONAL"`
	Age                     *int64   `parquet:"name=age, type=INT64, repetitiontype=OPTIONAL"`
}

func epochDays(d *Date) *int32 {
	if d == nil {
		return nil
	}
	days := d.EpochDays()
	return &days
}

// ToParquetRow converts r to its parquet layout.
func ToParquetRow(r RefinedRecord) RefinedParquetRow {
	return RefinedParquetRow{
		MunicipalityCode:        r.MunicipalityCode,
		Municipality:            r.Municipality,
		Date:                    epochDays(r.Date),
		Year:                    r.Year,
		Month:                   r.Month,
		SpecialtyBedCode:        r.SpecialtyBedCode,
		SpecialtyBed:            r.SpecialtyBed,
		TypeAIHCode:             r.TypeAIHCode,
		TypeAIH:                 r.TypeAIH,
		PatientMunicipalityCode: r.PatientMunicipalityCode,
		PatientMunicipality:     r.PatientMunicipality,
		GenderCode:              r.GenderCode,
		Gender:                  r.Gender,
		TypeUTICode:             r.TypeUTICode,
		TypeUTI:                 r.TypeUTI,
		DaysHospitalized:        r.DaysHospitalized,
		ProcedureCode:           r.ProcedureCode,
		Procedure:               r.Procedure,
		TotalValue:              r.TotalValue,
		Death:                   r.Death,
		RiskPregnant:            r.RiskPregnant,
		RaceColorCode:           r.RaceColorCode,
		RaceColor:               r.RaceColor,
		BirthDate:               epochDays(r.BirthDate),
		Age:                     r.Age,
	}
}

// Exporter is the ItemProcessor of the export step.
type Exporter struct{}

var _ port.ItemProcessor[RefinedRecord, RefinedParquetRow] = Exporter{}

// Process implements port.ItemProcessor.
func (Exporter) Process(ctx context.Context, r RefinedRecord) (RefinedParquetRow, error) {
	return ToParquetRow(r), nil
}

// PartitionKey returns uf=<state>/year=<year>/month=<month> for a row. The state is the
// first two characters of the municipality code, which are the IBGE state code.
func PartitionKey(row RefinedParquetRow) (string, error) {
	uf := DefaultPartition
	if row.MunicipalityCode != nil && utf8.RuneCountInString(*row.MunicipalityCode) >= 2 {
		uf = string([]rune(*row.MunicipalityCode)[:2])
	}
	return fmt.Sprintf("uf=%s/year=%s/month=%s", uf, partitionInt(row.Year), partitionInt(row.Month)), nil
}

func partitionInt(n *int64) string {
	if n == nil {
		return DefaultPartition
	}
	return strconv.FormatInt(*n, 10)
}

// Package warehouse binds the five pipeline tables to readers and writers of one backend:
// a GORM connection (sqlite, postgres, mysql) or a BigQuery connection.
package warehouse

import (
	"github.com/datasus/sihrd/internal/sihrd"
	"github.com/datasus/sihrd/pkg/batch/core/application/port"
	"github.com/datasus/sihrd/pkg/batch/core/tx"
)

// Warehouse hands out a fresh reader or writer per call. Writers replace their table as a
// whole when the step completes.
type Warehouse interface {
	// Kind is "sql" or "bigquery".
	Kind() string
	// Ref is the name of the connection the tables live on.
	Ref() string
	// TransactionManager runs the chunk transactions of steps writing to this warehouse.
	TransactionManager() tx.TransactionManager

	RawReader() port.ItemReader[sihrd.RawRecord]
	TrustedReader() port.ItemReader[sihrd.TrustedRecord]
	RefinedReader() port.ItemReader[sihrd.RefinedRecord]
	MunicipalityReader() port.ItemReader[sihrd.MunicipalityLookup]
	ProcedureReader() port.ItemReader[sihrd.ProcedureLookup]

	RawWriter() port.ItemWriter[sihrd.RawRecord]
	TrustedWriter() port.ItemWriter[sihrd.TrustedRecord]
	RefinedWriter() port.ItemWriter[sihrd.RefinedRecord]
	MunicipalityWriter() port.ItemWriter[sihrd.MunicipalityLookup]
	ProcedureWriter() port.ItemWriter[sihrd.ProcedureLookup]
}

// Column lists of each table, in the order the columns are selected.
var (
	RawColumns = []string{
		"UF_ZI", "ANO_CMPT", "MES_CMPT", "ESPEC", "N_AIH", "IDENT", "MUNIC_RES", "SEXO",
		"MARCA_UTI", "QT_DIARIAS", "PROC_REA", "VAL_TOT", "MORTE", "GESTRISCO", "RACA_COR", "NASC",
	}
	TrustedColumns = []string{
		"municipality_code", "date", "year", "month", "specialty_bed", "type_aih",
		"patient_municipality", "gender", "type_uti", "days_hospitalized", "procedure",
		"total_value", "death", "risk_pregnant", "race_color", "birth_date", "age",
	}
	RefinedColumns = []string{
		"municipality_code", "municipality", "date", "year", "month", "specialty_bed_code",
		"specialty_bed", "type_aih_code", "type_aih", "patient_municipality_code",
		"patient_municipality", "gender_code", "gender", "type_uti_code", "type_uti",
		"days_hospitalized", "procedure_code", "procedure", "total_value", "death",
		"risk_pregnant", "race_color_code", "race_color", "birth_date", "age",
	}
	MunicipalityColumns = []string{"COD", "NOME"}
	ProcedureColumns    = []string{"COD", "PROCEDIMENTO"}
)

func rawFields(r *sihrd.RawRecord) []interface{} {
	return []interface{}{
		&r.UFZI, &r.AnoCmpt, &r.MesCmpt, &r.Espec, &r.NAIH, &r.Ident, &r.MunicRes, &r.Sexo,
		&r.MarcaUTI, &r.QtDiarias, &r.ProcRea, &r.ValTot, &r.Morte, &r.GestRisco, &r.RacaCor, &r.Nasc,
	}
}

func trustedFields(r *sihrd.TrustedRecord) []interface{} {
	return []interface{}{
		&r.MunicipalityCode, &r.Date, &r.Year, &r.Month, &r.SpecialtyBed, &r.TypeAIH,
		&r.PatientMunicipality, &r.Gender, &r.TypeUTI, &r.DaysHospitalized, &r.Procedure,
		&r.TotalValue, &r.Death, &r.RiskPregnant, &r.RaceColor, &r.BirthDate, &r.Age,
	}
}

func refinedFields(r *sihrd.RefinedRecord) []interface{} {
	return []interface{}{
		&r.MunicipalityCode, &r.Municipality, &r.Date, &r.Year, &r.Month, &r.SpecialtyBedCode,
		&r.SpecialtyBed, &r.TypeAIHCode, &r.TypeAIH, &r.PatientMunicipalityCode,
		&r.PatientMunicipality, &r.GenderCode, &r.Gender, &r.TypeUTICode, &r.TypeUTI,
		&r.DaysHospitalized, &r.ProcedureCode, &r.Procedure, &r.TotalValue, &r.Death,
		&r.RiskPregnant, &r.RaceColorCode, &r.RaceColor, &r.BirthDate, &r.Age,
	}
}

func municipalityFields(r *sihrd.MunicipalityLookup) []interface{} {
	return []interface{}{&r.COD, &r.NOME}
}

func procedureFields(r *sihrd.ProcedureLookup) []interface{} {
	return []interface{}{&r.COD, &r.PROCEDIMENTO}
}

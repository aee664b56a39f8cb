// Package sihrd holds the SIH/RD hospitalization records of each layer and the two
// transforms between them: Normalizer (raw to trusted) and Enricher (trusted to refined).
package sihrd

// RawRecord is a row of the raw table as delivered by DATASUS. Every field is nullable text.
type RawRecord struct {
	UFZI      *string `gorm:"column:UF_ZI" json:"UF_ZI" parquet:"name=UF_ZI, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	AnoCmpt   *string `gorm:"column:ANO_CMPT" json:"ANO_CMPT" parquet:"name=ANO_CMPT, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	MesCmpt   *string `gorm:"column:MES_CMPT" json:"MES_CMPT" parquet:"name=MES_CMPT, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Espec     *string `gorm:"column:ESPEC" json:"ESPEC" parquet:"name=ESPEC, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	NAIH      *string `gorm:"column:N_AIH" json:"N_AIH" parquet:"name=N_AIH, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Ident     *string `gorm:"column:IDENT" json:"IDENT" parquet:"name=IDENT, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	MunicRes  *string `gorm:"column:MUNIC_RES" json:"MUNIC_RES" parquet:"name=MUNIC_RES, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Sexo      *string `gorm:"column:SEXO" json:"SEXO" parquet:"name=SEXO, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	MarcaUTI  *string `gorm:"column:MARCA_UTI" json:"MARCA_UTI" parquet:"name=MARCA_UTI, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	QtDiarias *string `gorm:"column:QT_DIARIAS" json:"QT_DIARIAS" parquet:"name=QT_DIARIAS, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ProcRea   *string `gorm:"column:PROC_REA" json:"PROC_REA" parquet:"name=PROC_REA, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ValTot    *string `gorm:"column:VAL_TOT" json:"VAL_TOT" parquet:"name=VAL_TOT, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Morte     *string `gorm:"column:MORTE" json:"MORTE" parquet:"name=MORTE, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	GestRisco *string `gorm:"column:GESTRISCO" json:"GESTRISCO" parquet:"name=GESTRISCO, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	RacaCor   *string `gorm:"column:RACA_COR" json:"RACA_COR" parquet:"name=RACA_COR, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Nasc      *string `gorm:"column:NASC" json:"NASC" parquet:"name=NASC, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// TrustedRecord is a typed, renamed raw record with the derived date and age.
// N_AIH is not carried.
type TrustedRecord struct {
	MunicipalityCode    *string  `gorm:"column:municipality_code" json:"municipality_code"`
	Date                *Date    `gorm:"column:date" json:"date"`
	Year                *int64   `gorm:"column:year" json:"year"`
	Month               *int64   `gorm:"column:month" json:"month"`
	SpecialtyBed        *string  `gorm:"column:specialty_bed" json:"specialty_bed"`
	TypeAIH             *string  `gorm:"column:type_aih" json:"type_aih"`
	PatientMunicipality *string  `gorm:"column:patient_municipality" json:"patient_municipality"`
	Gender              *string  `gorm:"column:gender" json:"gender"`
	TypeUTI             *string  `gorm:"column:type_uti" json:"type_uti"`
	DaysHospitalized    *int64   `gorm:"column:days_hospitalized" json:"days_hospitalized"`
	Procedure           *string  `gorm:"column:procedure" json:"procedure"`
	TotalValue          *float64 `gorm:"column:total_value" json:"total_value"`
	Death               *string  `gorm:"column:death" json:"death"`
	RiskPregnant        *string  `gorm:"column:risk_pregnant" json:"risk_pregnant"`
	RaceColor           *string  `gorm:"column:race_color" json:"race_color"`
	BirthDate           *Date    `gorm:"column:birth_date" json:"birth_date"`
	Age                 *int64   `gorm:"column:age" json:"age"`
}

// RefinedRecord is a trusted record with the municipality and procedure names resolved
// and every categorical code next to its label.
type RefinedRecord struct {
	MunicipalityCode        *string  `gorm:"column:municipality_code" json:"municipality_code"`
	Municipality            *string  `gorm:"column:municipality" json:"municipality"`
	Date                    *Date    `gorm:"column:date" json:"date"`
	Year                    *int64   `gorm:"column:year" json:"year"`
	Month                   *int64   `gorm:"column:month" json:"month"`
	SpecialtyBedCode        *string  `gorm:"column:specialty_bed_code" json:"specialty_bed_code"`
	SpecialtyBed            *string  `gorm:"column:specialty_bed" json:"specialty_bed"`
	TypeAIHCode             *string  `gorm:"column:type_aih_code" json:"type_aih_code"`
	TypeAIH                 *string  `gorm:"column:type_aih" json:"type_aih"`
	PatientMunicipalityCode *string  `gorm:"column:patient_municipality_code" json:"patient_municipality_code"`
	PatientMunicipality     *string  `gorm:"column:patient_municipality" json:"patient_municipality"`
	GenderCode              *string  `gorm:"column:gender_code" json:"gender_code"`
	Gender                  *string  `gorm:"column:gender" json:"gender"`
	TypeUTICode             *string  `gorm:"column:type_uti_code" json:"type_uti_code"`
	TypeUTI                 *string  `gorm:"column:type_uti" json:"type_uti"`
	DaysHospitalized        *int64   `gorm:"column:days_hospitalized" json:"days_hospitalized"`
	ProcedureCode           *string  `gorm:"column:procedure_code" json:"procedure_code"`
	Procedure               *string  `gorm:"column:procedure" json:"procedure"`
	TotalValue              *float64 `gorm:"column:total_value" json:"total_value"`
	Death                   *string  `gorm:"column:death" json:"death"`
	RiskPregnant            *string  `gorm:"column:risk_pregnant" json:"risk_pregnant"`
	RaceColorCode           *string  `gorm:"column:race_color_code" json:"race_color_code"`
	RaceColor               *string  `gorm:"column:race_color" json:"race_color"`
	BirthDate               *Date    `gorm:"column:birth_date" json:"birth_date"`
	Age                     *int64   `gorm:"column:age" json:"age"`
}

// MunicipalityLookup is a row of the municipality registry.
type MunicipalityLookup struct {
	COD  *string `gorm:"column:COD" json:"COD"`
	NOME *string `gorm:"column:NOME" json:"NOME"`
}

// ProcedureLookup is a row of the hospitalization procedure registry.
type ProcedureLookup struct {
	COD          *string `gorm:"column:COD" json:"COD"`
	PROCEDIMENTO *string `gorm:"column:PROCEDIMENTO" json:"PROCEDIMENTO"`
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}

// Int64 returns a pointer to n.
func Int64(n int64) *int64 {
	return &n
}

// Float64 returns a pointer to f.
func Float64(f float64) *float64 {
	return &f
}

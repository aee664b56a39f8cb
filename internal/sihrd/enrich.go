package sihrd

import (
	"context"
	"errors"

	"github.com/datasus/sihrd/pkg/batch/core/application/port"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// Lookups holds the registries the Enricher resolves against.
type Lookups struct {
	Municipality *Lookup
	Procedure    *Lookup
}

// Enrich resolves names and labels for trusted. It never fails and never drops the row:
// unknown municipality and procedure codes give a nil name, unknown categorical codes
// are their own label.
func Enrich(trusted TrustedRecord, lookups Lookups) RefinedRecord {
	return RefinedRecord{
		MunicipalityCode:        trusted.MunicipalityCode,
		Municipality:            lookups.Municipality.Get(trusted.MunicipalityCode),
		Date:                    trusted.Date,
		Year:                    trusted.Year,
		Month:                   trusted.Month,
		SpecialtyBedCode:        trusted.SpecialtyBed,
		SpecialtyBed:            SpecialtyBed.Label(trusted.SpecialtyBed),
		TypeAIHCode:             trusted.TypeAIH,
		TypeAIH:                 TypeAIH.Label(trusted.TypeAIH),
		PatientMunicipalityCode: trusted.PatientMunicipality,
		PatientMunicipality:     lookups.Municipality.Get(trusted.PatientMunicipality),
		GenderCode:              trusted.Gender,
		Gender:                  Gender.Label(trusted.Gender),
		TypeUTICode:             trusted.TypeUTI,
		TypeUTI:                 TypeUTI.Label(trusted.TypeUTI),
		DaysHospitalized:        trusted.DaysHospitalized,
		ProcedureCode:           trusted.Procedure,
		Procedure:               lookups.Procedure.Get(ProcedureLookupKey(trusted.Procedure)),
		TotalValue:              trusted.TotalValue,
		Death:                   trusted.Death,
		RiskPregnant:            trusted.RiskPregnant,
		RaceColorCode:           trusted.RaceColor,
		RaceColor:               RaceColor.Label(trusted.RaceColor),
		BirthDate:               trusted.BirthDate,
		Age:                     trusted.Age,
	}
}

// Enricher is the trusted to refined ItemProcessor. Both registries are loaded in Open,
// before the first row is processed, and a duplicate code fails the step.
type Enricher struct {
	municipalities port.ItemReader[MunicipalityLookup]
	procedures     port.ItemReader[ProcedureLookup]
	lookups        Lookups
	loaded         bool
}

// NewEnricher creates an Enricher reading the registries from the given readers.
func NewEnricher(municipalities port.ItemReader[MunicipalityLookup], procedures port.ItemReader[ProcedureLookup]) *Enricher {
	return &Enricher{municipalities: municipalities, procedures: procedures}
}

// NewEnricherWithLookups creates an Enricher over registries that are already loaded.
func NewEnricherWithLookups(lookups Lookups) *Enricher {
	return &Enricher{lookups: lookups, loaded: true}
}

var (
	_ port.ItemProcessor[TrustedRecord, RefinedRecord] = (*Enricher)(nil)
	_ port.ItemStream                                  = (*Enricher)(nil)
)

// Open loads the registries.
func (e *Enricher) Open(ctx context.Context, ec model.ExecutionContext) error {
	if e.loaded {
		return nil
	}
	municipality, err := LoadLookup(ctx, "municipality", e.municipalities, MunicipalityEntry)
	if err != nil {
		return err
	}
	procedure, err := LoadLookup(ctx, "procedure", e.procedures, ProcedureEntry)
	if err != nil {
		return err
	}
	e.lookups = Lookups{Municipality: municipality, Procedure: procedure}
	e.loaded = true

	if ec != nil {
		ec.Put("lookups.municipality", municipality.Len())
		ec.Put("lookups.procedure", procedure.Len())
	}
	logger.Infof("Enricher: loaded %d municipalities and %d procedures.", municipality.Len(), procedure.Len())
	return nil
}

// Close implements port.ItemStream.
func (e *Enricher) Close(ctx context.Context) error { return nil }

// Process implements port.ItemProcessor.
func (e *Enricher) Process(ctx context.Context, trusted TrustedRecord) (RefinedRecord, error) {
	if !e.loaded {
		return RefinedRecord{}, errors.New("enricher: lookups not loaded, Open was not called")
	}
	return Enrich(trusted, e.lookups), nil
}

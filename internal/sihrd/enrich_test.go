package sihrd_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasus/sihrd/internal/sihrd"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
)

type sliceReader[T any] struct {
	rows    []T
	pos     int
	openErr error
	closed  bool
}

func (r *sliceReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.pos = 0
	return r.openErr
}

func (r *sliceReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.pos >= len(r.rows) {
		return zero, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	return row, nil
}

func (r *sliceReader[T]) Close(ctx context.Context) error {
	r.closed = true
	return nil
}

func municipalities() *sliceReader[sihrd.MunicipalityLookup] {
	return &sliceReader[sihrd.MunicipalityLookup]{rows: []sihrd.MunicipalityLookup{
		{COD: s("330455"), NOME: s("Rio de Janeiro")},
		{COD: s("330490"), NOME: s("São Gonçalo")},
		{COD: nil, NOME: s("sem código")},
	}}
}

func procedures() *sliceReader[sihrd.ProcedureLookup] {
	return &sliceReader[sihrd.ProcedureLookup]{rows: []sihrd.ProcedureLookup{
		{COD: s("303010037"), PROCEDIMENTO: s("TRATAMENTO DE OUTRAS DOENÇAS BACTERIANAS")},
		{COD: s("303010026"), PROCEDIMENTO: s("TRATAMENTO DE INFECÇÃO")},
	}}
}

func trustedRow() sihrd.TrustedRecord {
	tr, err := sihrd.Normalize(fullRaw(), sihrd.NewDate(2024, time.March, 10))
	if err != nil {
		panic(err)
	}
	return tr
}

func openEnricher(t *testing.T) *sihrd.Enricher {
	t.Helper()
	e := sihrd.NewEnricher(municipalities(), procedures())
	require.NoError(t, e.Open(context.Background(), model.NewExecutionContext()))
	return e
}

func TestEnricher_ResolvesNamesAndLabels(t *testing.T) {
	e := openEnricher(t)
	got, err := e.Process(context.Background(), trustedRow())
	require.NoError(t, err)

	assert.Equal(t, s("330455"), got.MunicipalityCode)
	assert.Equal(t, s("Rio de Janeiro"), got.Municipality)
	assert.Equal(t, s("330490"), got.PatientMunicipalityCode)
	assert.Equal(t, s("São Gonçalo"), got.PatientMunicipality)
	assert.Equal(t, s("0303010037"), got.ProcedureCode)
	assert.Equal(t, s("TRATAMENTO DE OUTRAS DOENÇAS BACTERIANAS"), got.Procedure)
	assert.Equal(t, s("03"), got.SpecialtyBedCode)
	assert.Equal(t, s("Clínicos"), got.SpecialtyBed)
	assert.Equal(t, s("1"), got.TypeAIHCode)
	assert.Equal(t, s("Principal"), got.TypeAIH)
	assert.Equal(t, s("3"), got.GenderCode)
	assert.Equal(t, s("Feminino"), got.Gender)
	assert.Equal(t, s("00"), got.TypeUTICode)
	assert.Equal(t, s("Não utilizou UTI"), got.TypeUTI)
	assert.Equal(t, s("03"), got.RaceColorCode)
	assert.Equal(t, s("Parda"), got.RaceColor)
	assert.Equal(t, "2020-03-01", got.Date.String())
	assert.Equal(t, sihrd.Int64(38), got.Age)
}

func TestEnricher_ProcedureKeyDropsLeadingCharacter(t *testing.T) {
	e := openEnricher(t)
	tr := trustedRow()
	tr.Procedure = s("0303010026")
	got, err := e.Process(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, s("TRATAMENTO DE INFECÇÃO"), got.Procedure)

	// The code as stored in the registry does not match once its first digit is dropped.
	tr.Procedure = s("303010026")
	got, err = e.Process(context.Background(), tr)
	require.NoError(t, err)
	assert.Nil(t, got.Procedure)
	assert.Equal(t, s("303010026"), got.ProcedureCode)
}

func TestEnricher_UnknownMunicipalityOnlyNullsTheName(t *testing.T) {
	e := openEnricher(t)
	known, err := e.Process(context.Background(), trustedRow())
	require.NoError(t, err)

	tr := trustedRow()
	tr.MunicipalityCode = s("999999")
	got, err := e.Process(context.Background(), tr)
	require.NoError(t, err)
	assert.Nil(t, got.Municipality)
	assert.Equal(t, s("999999"), got.MunicipalityCode)

	got.MunicipalityCode = known.MunicipalityCode
	got.Municipality = known.Municipality
	assert.Equal(t, known, got)
}

func TestEnricher_IdentityFallbackAndNulls(t *testing.T) {
	e := openEnricher(t)
	tr := trustedRow()
	tr.Gender = s("2")
	tr.RaceColor = s("07")
	tr.TypeUTI = nil
	tr.PatientMunicipality = nil
	tr.Procedure = nil

	got, err := e.Process(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, s("2"), got.Gender)
	assert.Equal(t, s("07"), got.RaceColor)
	assert.Nil(t, got.TypeUTI)
	assert.Nil(t, got.TypeUTICode)
	assert.Nil(t, got.PatientMunicipality)
	assert.Nil(t, got.Procedure)
}

func TestEnricher_RaceColorExamples(t *testing.T) {
	e := openEnricher(t)
	tr := trustedRow()
	tr.RaceColor = s("02")
	got, err := e.Process(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, s("Preta"), got.RaceColor)
}

func TestEnricher_PreservesCardinality(t *testing.T) {
	e := openEnricher(t)
	rows := []sihrd.TrustedRecord{trustedRow(), {}, trustedRow(), {MunicipalityCode: s("0")}}
	out := make([]sihrd.RefinedRecord, 0, len(rows))
	for _, tr := range rows {
		r, err := e.Process(context.Background(), tr)
		require.NoError(t, err)
		out = append(out, r)
	}
	assert.Len(t, out, len(rows))
	assert.Equal(t, sihrd.RefinedRecord{}, out[1])
}

func TestEnricher_OpenRecordsLookupSizesAndClosesReaders(t *testing.T) {
	m, p := municipalities(), procedures()
	e := sihrd.NewEnricher(m, p)
	ec := model.NewExecutionContext()
	require.NoError(t, e.Open(context.Background(), ec))

	n, _ := ec.GetInt("lookups.municipality")
	assert.Equal(t, 2, n)
	n, _ = ec.GetInt("lookups.procedure")
	assert.Equal(t, 2, n)
	assert.True(t, m.closed)
	assert.True(t, p.closed)
}

func TestEnricher_DuplicateKeyFailsOpen(t *testing.T) {
	m := municipalities()
	m.rows = append(m.rows, sihrd.MunicipalityLookup{COD: s("330455"), NOME: s("Rio de Janeiro")})
	e := sihrd.NewEnricher(m, procedures())

	err := e.Open(context.Background(), model.NewExecutionContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, sihrd.ErrDuplicateLookupKey)
	assert.Contains(t, err.Error(), "330455")
	assert.True(t, m.closed)

	_, err = e.Process(context.Background(), trustedRow())
	assert.Error(t, err)
}

func TestEnricher_OpenFailurePropagates(t *testing.T) {
	p := procedures()
	p.openErr = errors.New("no such table: tb_lookup_procedure")
	e := sihrd.NewEnricher(municipalities(), p)
	err := e.Open(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tb_lookup_procedure")
}

func TestEnrich_IsAPureFunctionOfTheRow(t *testing.T) {
	lookups := sihrd.Lookups{Municipality: sihrd.NewLookup("municipality"), Procedure: sihrd.NewLookup("procedure")}
	require.NoError(t, lookups.Municipality.Add(s("330455"), s("Rio de Janeiro")))

	a := sihrd.Enrich(trustedRow(), lookups)
	b := sihrd.Enrich(trustedRow(), lookups)
	assert.Equal(t, a, b)

	e := sihrd.NewEnricherWithLookups(lookups)
	require.NoError(t, e.Open(context.Background(), nil))
	c, err := e.Process(context.Background(), trustedRow())
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

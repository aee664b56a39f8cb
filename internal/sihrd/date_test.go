package sihrd_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasus/sihrd/internal/sihrd"
)

func TestDate_ScanAndValue(t *testing.T) {
	var d sihrd.Date
	require.NoError(t, d.Scan(time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2020-03-01", d.String())

	require.NoError(t, d.Scan("1985-07-10"))
	assert.Equal(t, "1985-07-10", d.String())

	require.NoError(t, d.Scan([]byte("1985-07-11T00:00:00Z")))
	assert.Equal(t, "1985-07-11", d.String())

	assert.Error(t, d.Scan(42))
	assert.Error(t, d.Scan("yesterday"))

	v, err := sihrd.NewDate(2020, time.March, 1).Value()
	require.NoError(t, err)
	assert.Equal(t, "2020-03-01", v)
	assert.Equal(t, "date", sihrd.Date{}.GormDataType())
}

func TestDate_JSON(t *testing.T) {
	rec := sihrd.TrustedRecord{Date: sihrd.NewDate(2020, time.March, 1).Ptr()}
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"date":"2020-03-01"`)
	assert.Contains(t, string(b), `"birth_date":null`)

	var back sihrd.TrustedRecord
	require.NoError(t, json.Unmarshal(b, &back))
	require.NotNil(t, back.Date)
	assert.Equal(t, *rec.Date, *back.Date)
}

func TestDate_EpochDays(t *testing.T) {
	assert.Equal(t, int32(0), sihrd.NewDate(1970, time.January, 1).EpochDays())
	assert.Equal(t, int32(1), sihrd.NewDate(1970, time.January, 2).EpochDays())
	assert.Equal(t, int32(18322), sihrd.NewDate(2020, time.March, 1).EpochDays())
	assert.Equal(t, int32(-1), sihrd.NewDate(1969, time.December, 31).EpochDays())
}

func TestEnumerations(t *testing.T) {
	assert.Equal(t, []string{"0", "1", "3"}, sihrd.Gender.Codes())
	assert.Equal(t, "gender", sihrd.Gender.Name())
	assert.Equal(t, s("Masculino"), sihrd.Gender.Label(s("1")))
	for _, code := range []string{"2", "9", "", "01"} {
		assert.Equal(t, s(code), sihrd.Gender.Label(s(code)))
	}
	assert.Nil(t, sihrd.Gender.Label(nil))

	assert.Len(t, sihrd.TypeUTI.Codes(), 17)
	assert.Len(t, sihrd.SpecialtyBed.Codes(), 17)
	assert.Len(t, sihrd.RaceColor.Codes(), 6)
	assert.Equal(t, s("Longa permanência"), sihrd.TypeAIH.Label(s("5")))
	assert.Equal(t, s("Saúde mental (clínico)"), sihrd.SpecialtyBed.Label(s("87")))
	assert.Equal(t, s("UTI Doador"), sihrd.TypeUTI.Label(s("99")))
	assert.Equal(t, s("Sem informação"), sihrd.RaceColor.Label(s("99")))
}

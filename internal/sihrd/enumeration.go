package sihrd

import "sort"

// Enumeration is a closed code to label table. Codes it does not know are their own label.
type Enumeration struct {
	name   string
	labels map[string]string
}

// NewEnumeration creates an Enumeration. labels is copied.
func NewEnumeration(name string, labels map[string]string) Enumeration {
	copied := make(map[string]string, len(labels))
	for code, label := range labels {
		copied[code] = label
	}
	return Enumeration{name: name, labels: copied}
}

// Name returns the column the enumeration translates.
func (e Enumeration) Name() string { return e.name }

// Label translates code. A nil code stays nil.
func (e Enumeration) Label(code *string) *string {
	if code == nil {
		return nil
	}
	if label, ok := e.labels[*code]; ok {
		return &label
	}
	fallback := *code
	return &fallback
}

// Codes returns the known codes in ascending order.
func (e Enumeration) Codes() []string {
	codes := make([]string, 0, len(e.labels))
	for code := range e.labels {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

var (
	// Gender translates SEXO.
	Gender = NewEnumeration("gender", map[string]string{
		"0": "Ignorado",
		"1": "Masculino",
		"3": "Feminino",
	})

	// RaceColor translates RACA_COR.
	RaceColor = NewEnumeration("race_color", map[string]string{
		"01": "Branca",
		"02": "Preta",
		"03": "Parda",
		"04": "Amarela",
		"05": "Indígena",
		"99": "Sem informação",
	})

	// TypeAIH translates IDENT.
	TypeAIH = NewEnumeration("type_aih", map[string]string{
		"1": "Principal",
		"3": "Continuação",
		"5": "Longa permanência",
	})

	// TypeUTI translates MARCA_UTI.
	TypeUTI = NewEnumeration("type_uti", map[string]string{
		"00": "Não utilizou UTI",
		"01": "Utilizou mais de um tipo de UTI",
		"51": "UTI adulto - tipo II COVID 19",
		"52": "UTI pediátrica - tipo II COVID 19",
		"74": "UTI I",
		"75": "UTI adulto tipo II",
		"76": "UTI adulto tipo III",
		"77": "UTI infantil tipo I",
		"78": "UTI infantil tipo II",
		"79": "UTI infantil tipo III",
		"80": "UTI neonatal tipo I",
		"81": "UTI neonatal tipo II",
		"82": "UTI neonatal tipo III",
		"83": "UTI de queimados",
		"85": "UTI coronariana tipo II - UCO tipo II",
		"86": "UTI coronariana tipo III - UCO tipo III",
		"99": "UTI Doador",
	})

	// SpecialtyBed translates ESPEC.
	SpecialtyBed = NewEnumeration("specialty_bed", map[string]string{
		"01": "Cirúrgico",
		"02": "Obstétricos",
		"03": "Clínicos",
		"04": "Crônicos",
		"05": "Psiquiatria",
		"06": "Pneumologia sanitária (tisiologia)",
		"07": "Pediátricos",
		"08": "Reabilitação",
		"09": "Leito Dia / Cirúrgicos",
		"10": "Leito Dia / AIDS",
		"11": "Leito Dia / Fibrose Cística",
		"12": "Leito Dia / Intercorrência Pós-Transplante",
		"13": "Leito Dia / Geriatria",
		"14": "Leito Dia / Saúde Mental",
		"64": "Unidade intermediária",
		"65": "Unidade intermediária neonatal",
		"87": "Saúde mental (clínico)",
	})
)

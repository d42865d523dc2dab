package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValueMap(t *testing.T) {
	m, err := ParseValueMap(json.RawMessage(`{"material":["PLA",1.75,true],"build_height":250,"enclosed":false,"nozzle":"0.4"}`))
	require.NoError(t, err)

	assert.Equal(t, List("PLA", "1.75", "true"), m["material"])
	assert.Equal(t, Number(250), m["build_height"])
	assert.Equal(t, Bool(false), m["enclosed"])

	n, ok := m.Number("nozzle")
	assert.True(t, ok)
	assert.Equal(t, 0.4, n)

	_, ok = m.Number("missing")
	assert.False(t, ok)
}

func TestParseValueMapRejectsNesting(t *testing.T) {
	_, err := ParseValueMap(json.RawMessage(`{"volume":{"x":250}}`))
	assert.Error(t, err)

	_, err = ParseValueMap(json.RawMessage(`{"volume":null}`))
	assert.Error(t, err)

	_, err = ParseValueMap(json.RawMessage(`{"material":[["PLA"]]}`))
	assert.Error(t, err)
}

func TestParseValueMapEmpty(t *testing.T) {
	m, err := ParseValueMap(nil)
	require.NoError(t, err)
	assert.Empty(t, m)
	assert.JSONEq(t, `{}`, string(m.JSON()))
}

func TestValueMapJSONRoundTrip(t *testing.T) {
	in := ValueMap{"material": List("PETG"), "build_height": Number(200), "heated_bed": Bool(true)}
	out, err := ParseValueMap(in.JSON())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSatisfies(t *testing.T) {
	caps := ValueMap{
		"material":     List("PLA", "PETG"),
		"build_height": Number(250),
		"heated_bed":   Bool(true),
		"nozzle":       String("0.4"),
	}

	tests := []struct {
		name     string
		required ValueMap
		want     bool
	}{
		{"member of list", ValueMap{"material": String("PETG")}, true},
		{"not in list", ValueMap{"material": String("ABS")}, false},
		{"all list items", ValueMap{"material": List("PLA", "PETG")}, true},
		{"one list item missing", ValueMap{"material": List("PLA", "TPU")}, false},
		{"number below capability", ValueMap{"build_height": Number(200)}, true},
		{"number equal", ValueMap{"build_height": Number(250)}, true},
		{"number above capability", ValueMap{"build_height": Number(300)}, false},
		{"numeric string capability", ValueMap{"nozzle": Number(0.4)}, true},
		{"required true", ValueMap{"heated_bed": Bool(true)}, true},
		{"required false always matches", ValueMap{"heated_bed": Bool(false)}, true},
		{"string equality", ValueMap{"nozzle": String("0.4")}, true},
		{"string mismatch", ValueMap{"nozzle": String("0.6")}, false},
		{"missing key", ValueMap{"enclosure": Bool(true)}, false},
		{"empty requirement", ValueMap{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, caps.Satisfies(tt.required))
		})
	}
}

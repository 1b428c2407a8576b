package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCoverage(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    float64
	}{
		{"dot decimal", "C_Vacinal\n42.50\n", 42.5},
		{"quoted comma decimal", "C_Vacinal\n\"42,50\"\n", 42.5},
		{"bare comma decimal", "C_Vacinal\n42,50\n", 42.5},
		{"semicolon table with comma decimal", "ano;C_Vacinal\n2024;42,50\n", 42.5},
		{"percent suffix", "C_Vacinal\n42.50%\n", 42.5},
		{"first row wins", "C_Vacinal\n42.5\n99\n", 42.5},
		{"fraction kept as is", "ano,C_Vacinal\n2024,0.425\n", 0.425},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewLoader(nil).LoadCoverage(context.Background(), writeFile(t, "cobertura.csv", tt.content), CoverageOptions{})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestLoadCoverage_XLSX(t *testing.T) {
	src := createTestXLSX(t, [][]string{{"cobertura"}, {"61,3"}})

	got, err := NewLoader(nil).LoadCoverage(context.Background(), src, CoverageOptions{Column: "cobertura"})
	require.NoError(t, err)
	assert.InDelta(t, 61.3, got, 1e-9)
}

func TestLoadCoverage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"header only", "C_Vacinal\n", ErrSourceEmpty},
		{"empty file", "", ErrSourceEmpty},
		{"missing column", "cobertura\n42.5\n", ErrSourceMalformed},
		{"non-numeric", "C_Vacinal\nalta\n", ErrSourceMalformed},
		{"blank first value", "C_Vacinal,x\n,1\n", ErrSourceMalformed},
		{"decimal comma splits the row", "ano,C_Vacinal\n2024,42,50\n", ErrSourceMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(nil).LoadCoverage(context.Background(), writeFile(t, "cobertura.csv", tt.content), CoverageOptions{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

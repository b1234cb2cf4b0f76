package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medhaven/clinicflow/internal/domain/labtest"
)

func TestNames(t *testing.T) {
	tests := []struct {
		name  string
		notes string
		want  []string
	}{
		{
			name:  "canonical bill notes",
			notes: "Fever - Consultation Fee: ₹500, Tests: CBC Test, Dengue Test",
			want:  []string{"CBC Test", "Dengue Test"},
		},
		{
			name:  "fee only yields nothing",
			notes: "Consultation Fee: ₹500",
			want:  nil,
		},
		{
			name:  "empty notes",
			notes: "",
			want:  nil,
		},
		{
			name:  "whitespace only",
			notes: "   ",
			want:  nil,
		},
		{
			name:  "lab tests label",
			notes: "Lab Tests: Liver Function Test; Kidney Function Test",
			want:  []string{"Liver Function Test", "Kidney Function Test"},
		},
		{
			name:  "connectives and short fragments dropped",
			notes: "Tests: CBC Test, and, or, X-Ray",
			want:  []string{"CBC Test", "X-Ray"},
		},
		{
			name:  "ampersand and pipe separators",
			notes: "Tests: ECG Test | Ultrasound & MRI Scan",
			want:  []string{"ECG Test", "Ultrasound", "MRI Scan"},
		},
		{
			name:  "fallback picks capitalized tokens",
			notes: "Recommended Ultrasound after review",
			want:  []string{"Recommended", "Ultrasound"},
		},
		{
			name:  "fallback skips structural words",
			notes: "Patient Doctor Consultation Ultrasound",
			want:  []string{"Ultrasound"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Names(tt.notes))
		})
	}
}

func TestNamesIdempotent(t *testing.T) {
	notes := "Fever - Consultation Fee: ₹500, Tests: CBC Test, Dengue Test"
	first := Names(notes)
	second := Names(notes)
	assert.Equal(t, first, second)
}

func TestExtractTypes(t *testing.T) {
	got := Extract("Fever - Consultation Fee: ₹500, Tests: CBC Test, Dengue Test")
	require.Len(t, got, 2)
	assert.Equal(t, ExtractedTest{Name: "CBC Test", Type: labtest.TypeBlood}, got[0])
	assert.Equal(t, ExtractedTest{Name: "Dengue Test", Type: labtest.TypeBlood}, got[1])
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		testName string
		want     labtest.TestType
	}{
		{"CBC Test", labtest.TypeBlood},
		{"Blood Sugar Test", labtest.TypeBlood},
		{"ECG", labtest.TypeBlood},
		{"Hemoglobin Panel", labtest.TypeBlood},
		{"Urine Culture", labtest.TypeUrine},
		{"X-Ray", labtest.TypeImaging},
		{"MRI Scan", labtest.TypeImaging},
		{"Ultrasound", labtest.TypeImaging},
		{"Biopsy", labtest.TypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectType(tt.testName))
		})
	}
}

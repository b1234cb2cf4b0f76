package billing

import (
	"sort"
	"strings"
)

// Price tables are whole rupees. Lookups default to zero so an unlisted
// disease or test never blocks bill creation.

var testCosts = map[string]int64{
	"CBC Test":             400,
	"Dengue Test":          800,
	"Malaria Test":         700,
	"Typhoid Test":         600,
	"Blood Sugar Test":     300,
	"Liver Function Test":  900,
	"Kidney Function Test": 1000,
	"ECG":                  500,
	"MRI Scan":             5000,
	"CT Scan":              4500,
	"X-Ray":                800,
	"Ultrasound":           1200,
}

var diseaseCosts = map[string]int64{
	"fever":        300,
	"cold":         250,
	"flu":          350,
	"pneumonia":    1200,
	"diabetes":     800,
	"hypertension": 700,
	"asthma":       600,
	"migraine":     500,
	"allergy":      400,
	"anemia":       750,
	"arthritis":    900,
	"bronchitis":   650,
	"chickenpox":   1000,
	"dengue":       1100,
	"malaria":      950,
	"typhoid":      1050,
	"covid-19":     1500,
}

func TestCost(name string) int64 {
	return testCosts[strings.TrimSpace(name)]
}

func DiseaseCost(name string) int64 {
	return diseaseCosts[strings.ToLower(strings.TrimSpace(name))]
}

// TestList returns the orderable tests in stable order, for UI pickers.
func TestList() []string {
	names := make([]string, 0, len(testCosts))
	for name := range testCosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

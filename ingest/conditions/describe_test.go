package conditions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		want   string
	}{
		{
			name:   "full condition",
			params: map[string]string{"BeamEnergy": "3500.0", "VeloPosition": "CLOSED", "MagneticField": "Down"},
			want:   "Beam3500GeV-VeloClosed-MagDown",
		},
		{
			name: "excluded detectors sorted",
			params: map[string]string{
				"BeamEnergy":    "6500",
				"VeloPosition":  "Open",
				"MagneticField": "-1",
				"RICH1Status":   "OUT",
				"ITStatus":      "NOT INCLUDED",
				"OTStatus":      "INCLUDED",
				"SPDStatus":     "in",
			},
			want: "Beam6500GeV-VeloOpen-MagDown-Excl-IT-RICH1",
		},
		{
			name:   "numeric polarity",
			params: map[string]string{"MagneticField": "1"},
			want:   "MagUp",
		},
		{
			name:   "magnet off",
			params: map[string]string{"MagneticField": "0", "VeloPosition": "open"},
			want:   "VeloOpen-MagOff",
		},
		{
			name:   "fallback to pairs",
			params: map[string]string{"Zeta": "2", "Alpha": " 1 "},
			want:   "Alpha=1-Zeta=2",
		},
		{
			name:   "empty",
			params: map[string]string{},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.params))
		})
	}
}

func TestDescribe_Deterministic(t *testing.T) {
	params := map[string]string{"BeamEnergy": "450", "VeloPosition": "Open", "MagneticField": "Up", "TTStatus": "OUT", "ITStatus": "OUT"}
	first := Describe(params)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Describe(params))
	}
}

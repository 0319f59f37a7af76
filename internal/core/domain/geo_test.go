package domain_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samirrijal/ecoleta/internal/core/domain"
)

func TestCoordinate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		c       domain.Coordinate
		wantErr string
	}{
		{"curitiba", domain.Coordinate{Latitude: -25.4284, Longitude: -49.2733}, ""},
		{"bounds", domain.Coordinate{Latitude: 90, Longitude: -180}, ""},
		{"latitude out of range", domain.Coordinate{Latitude: 91}, "latitude"},
		{"longitude out of range", domain.Coordinate{Longitude: 180.5}, "longitude"},
		{"nan latitude", domain.Coordinate{Latitude: math.NaN(), Longitude: -49}, "latitude"},
		{"nan longitude", domain.Coordinate{Latitude: -25, Longitude: math.NaN()}, "longitude"},
		{"inf latitude", domain.Coordinate{Latitude: math.Inf(1)}, "latitude"},
		{"negative inf longitude", domain.Coordinate{Longitude: math.Inf(-1)}, "longitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var ve *domain.ValidationError
			if assert.ErrorAs(t, err, &ve) {
				assert.Contains(t, ve.Fields, tt.wantErr)
			}
		})
	}
}

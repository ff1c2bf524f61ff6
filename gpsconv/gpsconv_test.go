package gpsconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatitudeDDMFixture(t *testing.T) {
	assert.Equal(t, "53,13.1635N", LatitudeDDM(53.219391))
}

func TestLongitudeDDMFixture(t *testing.T) {
	assert.Equal(t, "8,14.3797E", LongitudeDDM(8.239661))
}

func TestDDMNegativeValuesUseNegativeLetter(t *testing.T) {
	assert.Equal(t, "53,13.1635S", LatitudeDDM(-53.219391))
	assert.Equal(t, "8,14.3797W", LongitudeDDM(-8.239661))
}

func TestDDMHemisphereBoundaryIsPositive(t *testing.T) {
	assert.Equal(t, "0,00.0000N", LatitudeDDM(0.0))
	assert.Equal(t, "0,00.0000E", LongitudeDDM(0.0))
}

func TestParseDDMRoundTrip(t *testing.T) {
	v, err := ParseDDM("53,13.1635N")
	require.NoError(t, err)
	assert.InDelta(t, 53.219391, v, 1e-4)

	v, err = ParseDDM("8,14.3797W")
	require.NoError(t, err)
	assert.InDelta(t, -8.239661, v, 1e-4)
}

func TestParseDDMRejectsGarbage(t *testing.T) {
	_, err := ParseDDM("garbage")
	assert.ErrorIs(t, err, ErrInvalidDDM)

	_, err = ParseDDM("53,13.1635X")
	assert.ErrorIs(t, err, ErrInvalidDDM)
}

func TestValidateLatLng(t *testing.T) {
	assert.True(t, ValidateLatLng(53.219391, 8.239661))
	assert.False(t, ValidateLatLng(200, 8.239661))
}

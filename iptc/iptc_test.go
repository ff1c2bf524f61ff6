package iptc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildRecord(recNum, dsNum byte, data []byte) []byte {
	out := []byte{recordMarker, recNum, dsNum, byte(len(data) >> 8), byte(len(data))}
	return append(out, data...)
}

func TestParseAndSerializeRoundTrip(t *testing.T) {
	buf := append(append([]byte{}, buildRecord(2, 5, []byte("My Headline"))...), buildRecord(2, 25, []byte("beach"))...)

	b, err := Parse(buf)
	require.NoError(t, err)
	require.Len(t, b.Records, 2)
	assert.Equal(t, buf, b.Serialize())
}

func TestKeywordsReturnsAllEntries(t *testing.T) {
	buf := append(append([]byte{}, buildRecord(2, 25, []byte("alpha"))...), buildRecord(2, 25, []byte("beta"))...)
	b, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, b.Keywords())
}

func TestSetKeywordsSortsAscendingAndReplacesExisting(t *testing.T) {
	buf := buildRecord(2, 25, []byte("zzz"))
	b, err := Parse(buf)
	require.NoError(t, err)

	b.SetKeywords([]string{"banana", "apple", "cherry"})
	assert.Equal(t, []string{"apple", "banana", "cherry"}, b.Keywords())
}

func TestSetKeywordsPreservesOtherRecords(t *testing.T) {
	buf := append(append([]byte{}, buildRecord(2, 5, []byte("Headline"))...), buildRecord(2, 25, []byte("old"))...)
	b, err := Parse(buf)
	require.NoError(t, err)

	b.SetKeywords([]string{"new"})

	var headlines []string
	for _, r := range b.Records {
		if r.RecordNumber == 2 && r.DatasetNumber == 5 {
			headlines = append(headlines, string(r.Data))
		}
	}
	assert.Equal(t, []string{"Headline"}, headlines)
	assert.Equal(t, []string{"new"}, b.Keywords())
}

func TestSetKeywordsAddsUTF8MarkerForNonASCII(t *testing.T) {
	b := &Block{}
	b.SetKeywords([]string{"Äußerst öffentlich"})

	require.Len(t, b.Records, 2)
	assert.Equal(t, byte(1), b.Records[0].RecordNumber)
	assert.Equal(t, byte(datasetCharsetMarker), b.Records[0].DatasetNumber)
	assert.Equal(t, utf8CharsetMarker, b.Records[0].Data)
	assert.Equal(t, []string{"Äußerst öffentlich"}, b.Keywords())
}

func TestSetKeywordsOmitsMarkerForASCIIOnly(t *testing.T) {
	b := &Block{}
	b.SetKeywords([]string{"plain"})
	for _, r := range b.Records {
		assert.False(t, r.RecordNumber == 1 && r.DatasetNumber == datasetCharsetMarker)
	}
}

func TestDeleteKeywordsClearsAll(t *testing.T) {
	b := &Block{}
	b.SetKeywords([]string{"one", "two"})
	b.DeleteKeywords()
	assert.Empty(t, b.Keywords())
}

func TestParseRejectsTruncatedHeader(t *testing.T) {
	_, err := Parse([]byte{recordMarker, 2})
	assert.ErrorIs(t, err, ErrTruncated)
}

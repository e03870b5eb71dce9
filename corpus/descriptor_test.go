package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveSequenceKey(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		relPath  string
		want     string
	}{
		{
			name:     "standard corpus name",
			fileName: "M01_Aug_2019_OP01_000.csv",
			relPath:  "M01/OP01/good/M01_Aug_2019_OP01_000.csv",
			want:     "2019-08/000",
		},
		{
			name:     "different month and sequence",
			fileName: "M02_Feb_2021_OP07_013.csv",
			relPath:  "M02/OP07/good/M02_Feb_2021_OP07_013.csv",
			want:     "2021-02/013",
		},
		{
			name:     "date token without trailing sequence",
			fileName: "M01_Aug_2019_OP01.csv",
			relPath:  "M01/OP01/good/M01_Aug_2019_OP01.csv",
			want:     "2019-08/",
		},
		{
			name:     "no date token falls back to path",
			fileName: "recording.csv",
			relPath:  "M01/OP01/good/recording.csv",
			want:     "~M01/OP01/good/recording.csv",
		},
		{
			name:     "unparseable month falls back to path",
			fileName: "M01_Augx_2019_OP01_000.csv",
			relPath:  "M01/OP01/good/M01_Augx_2019_OP01_000.csv",
			want:     "~M01/OP01/good/M01_Augx_2019_OP01_000.csv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveSequenceKey(tt.fileName, tt.relPath))
		})
	}
}

func TestDeriveSequenceKeyMalformedSortsLast(t *testing.T) {
	dated := deriveSequenceKey("M01_Dec_2030_OP01_999.csv", "a")
	malformed := deriveSequenceKey("whatever.csv", "M01/OP01/good/whatever.csv")

	// Any dated key must sort before any fallback key
	assert.Less(t, dated, malformed)
}

func TestQualityValid(t *testing.T) {
	assert.True(t, QualityGood.Valid())
	assert.True(t, QualityBad.Valid())
	assert.False(t, Quality("ugly").Valid())
	assert.False(t, Quality("").Valid())
}

func TestFileDescriptorString(t *testing.T) {
	d := FileDescriptor{
		Machine:   "M01",
		Operation: "OP01",
		Quality:   QualityGood,
		FileName:  "M01_Aug_2019_OP01_000.csv",
	}
	assert.Equal(t, "M01/OP01/good/M01_Aug_2019_OP01_000.csv", d.String())
}

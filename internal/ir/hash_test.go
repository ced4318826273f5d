package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecording() *Recording {
	return &Recording{
		ID:        "rec-1",
		Build:     "cpython-3.10.12",
		Symbols:   map[string]uint64{"PY_VERSION": 0x1000},
		InitialPC: 0x400000,
		Segments:  []Segment{{Addr: 0x1000, Data: []byte("3.10.12\x00")}},
		Steps: []Step{
			{PC: 0x400010, Writes: []Write{{Addr: 0x2000, Old: []byte{0}, New: []byte{1}}}},
		},
	}
}

func TestRecordingDigestDeterminism(t *testing.T) {
	d1, err := RecordingDigest(sampleRecording())
	require.NoError(t, err)
	d2, err := RecordingDigest(sampleRecording())
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64, "SHA-256 hex is 64 characters")
}

func TestRecordingDigestIgnoresID(t *testing.T) {
	a := sampleRecording()
	b := sampleRecording()
	b.ID = "rec-2"
	assert.Equal(t, MustRecordingDigest(a), MustRecordingDigest(b))
}

func TestRecordingDigestChangesWithContent(t *testing.T) {
	base := MustRecordingDigest(sampleRecording())

	changedWrite := sampleRecording()
	changedWrite.Steps[0].Writes[0].New = []byte{2}

	exited := sampleRecording()
	exited.Exited = true

	changedImage := sampleRecording()
	changedImage.Segments[0].Data = []byte("3.11.0\x00")

	assert.NotEqual(t, base, MustRecordingDigest(changedWrite))
	assert.NotEqual(t, base, MustRecordingDigest(exited))
	assert.NotEqual(t, base, MustRecordingDigest(changedImage))
}

func TestDomainSeparation(t *testing.T) {
	data := []byte("same")
	assert.NotEqual(t, hashWithDomain(DomainImage, data), hashWithDomain(DomainRecording, data))
}

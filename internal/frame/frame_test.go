package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func encodedDoc(t *testing.T) []byte {
	t.Helper()
	raw, err := bson.Marshal(bson.M{"hello": "world"})
	require.NoError(t, err)
	return raw
}

func TestReadFrameRoundTrip(t *testing.T) {
	doc := encodedDoc(t)
	r := bytes.NewReader(doc)

	got, err := ReadFrame(r, 0)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	view, err := Validate(got)
	require.NoError(t, err)
	assert.Equal(t, doc, []byte(view))
	assert.Equal(t, doc, Encode(view))
}

func TestReadFramePing(t *testing.T) {
	r := bytes.NewReader([]byte{1, 2, 3})
	_, err := ReadFrame(r, 0)
	assert.ErrorIs(t, err, ErrPing)
}

func TestReadFrameFourByteLengthIsPing(t *testing.T) {
	buf := make([]byte, 4)
	// advertised length 4 == LengthPrefixSize, below MinFrameSize of 5.
	buf[0] = 4
	r := bytes.NewReader(buf)
	_, err := ReadFrame(r, 0)
	assert.ErrorIs(t, err, ErrPing)
}

func TestReadFrameTooLarge(t *testing.T) {
	buf := make([]byte, 4)
	buf[0] = 0xFF
	buf[1] = 0xFF
	buf[2] = 0xFF
	buf[3] = 0xFF
	r := bytes.NewReader(buf)
	_, err := ReadFrame(r, MaxFrameSize)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestValidateRejectsLengthMismatch(t *testing.T) {
	doc := encodedDoc(t)
	tampered := append([]byte{}, doc...)
	tampered = append(tampered, 0x00)

	_, err := Validate(tampered)
	assert.Error(t, err)
}

func TestValidateRejectsNonBSON(t *testing.T) {
	_, err := Validate([]byte("hello world"))
	assert.Error(t, err)
}

func TestIsPing(t *testing.T) {
	assert.True(t, IsPing(4))
	assert.False(t, IsPing(5))
}

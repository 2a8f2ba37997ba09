package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnvelope() *Envelope {
	return NewEnvelope([]byte("a sufficiently long operator master key"))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	env := testEnvelope()
	now := time.Now()
	record := &Record{SessionID: "sess-1", CreatedAt: now, LastAccessedAt: now}

	token, err := env.Encrypt(record)
	require.NoError(t, err)

	decoded, err := env.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, record.SessionID, decoded.SessionID)
}

func TestEncryptProducesDistinctTokensForIdenticalRecords(t *testing.T) {
	env := testEnvelope()
	now := time.Now()
	record := &Record{SessionID: "sess-1", CreatedAt: now, LastAccessedAt: now}

	a, err := env.Encrypt(record)
	require.NoError(t, err)
	b, err := env.Encrypt(record)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "fresh salt+nonce must make every encryption unique")
}

func TestDecryptRejectsBitFlippedToken(t *testing.T) {
	env := testEnvelope()
	now := time.Now()
	token, err := env.Encrypt(&Record{SessionID: "sess-1", CreatedAt: now, LastAccessedAt: now})
	require.NoError(t, err)

	tampered := []byte(token)
	// Flip a bit deep enough to land in the ciphertext, not just base64 padding.
	tampered[len(tampered)-5] ^= 0x01

	_, err = env.Decrypt(string(tampered))
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	envA := NewEnvelope([]byte("key A is the real operator secret"))
	envB := NewEnvelope([]byte("key B is a completely different one"))

	now := time.Now()
	token, err := envA.Encrypt(&Record{SessionID: "sess-1", CreatedAt: now, LastAccessedAt: now})
	require.NoError(t, err)

	_, err = envB.Decrypt(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestDecryptRejectsGarbageInput(t *testing.T) {
	env := testEnvelope()
	_, err := env.Decrypt("not-even-base64!!!")
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = env.Decrypt("dG9vc2hvcnQ=")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestRotateAdvancesLastAccessedAtAndChangesToken(t *testing.T) {
	env := testEnvelope()
	created := time.Now().Add(-time.Hour)
	token, err := env.Encrypt(&Record{SessionID: "sess-1", CreatedAt: created, LastAccessedAt: created, RequestCount: 1})
	require.NoError(t, err)

	now := time.Now()
	next, record, err := env.Rotate(token, now)
	require.NoError(t, err)

	assert.NotEqual(t, token, next)
	assert.WithinDuration(t, now, record.LastAccessedAt, time.Millisecond)
	assert.True(t, created.Equal(record.CreatedAt), "CreatedAt must survive rotation unchanged")
	assert.Equal(t, int64(2), record.RequestCount)
}

func TestRotateAccumulatesRequestCountAcrossMultipleRotations(t *testing.T) {
	env := testEnvelope()
	now := time.Now()
	token, err := env.Encrypt(&Record{SessionID: "sess-1", CreatedAt: now, LastAccessedAt: now, RequestCount: 1})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		now = now.Add(time.Minute)
		var record *Record
		token, record, err = env.Rotate(token, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2+i), record.RequestCount)
	}
}

func TestRecordExpiredByIdleTimeout(t *testing.T) {
	now := time.Now()
	r := &Record{CreatedAt: now.Add(-time.Minute), LastAccessedAt: now.Add(-2 * time.Minute)}
	assert.True(t, r.Expired(now, time.Minute, time.Hour))
}

func TestRecordExpiredByMaxAge(t *testing.T) {
	now := time.Now()
	r := &Record{CreatedAt: now.Add(-2 * time.Hour), LastAccessedAt: now}
	assert.True(t, r.Expired(now, time.Hour, time.Hour))
}

func TestRecordNotExpired(t *testing.T) {
	now := time.Now()
	r := &Record{CreatedAt: now.Add(-time.Minute), LastAccessedAt: now}
	assert.False(t, r.Expired(now, time.Hour, 24*time.Hour))
}

package saml2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTStateCodecRoundTrip(t *testing.T) {
	pair := newCertificatePair(t)
	codec := JWTStateCodec{
		Audience: testSPEntityID,
		Issuer:   testSPEntityID,
		MaxAge:   time.Hour,
		Pair:     pair,
	}

	state := &StoredRequestState{
		IDP:       testIDPEntityID,
		MessageID: NewID(),
		ReturnURL: "/deep/link",
	}
	signed, err := codec.Encode("relay-1", state)
	require.NoError(t, err)

	key, decoded, err := codec.Decode(signed)
	require.NoError(t, err)
	assert.Equal(t, "relay-1", key)
	assert.Equal(t, state.IDP, decoded.IDP)
	assert.Equal(t, state.MessageID, decoded.MessageID)
	assert.Equal(t, state.ReturnURL, decoded.ReturnURL)
	assert.False(t, decoded.CreatedAt.IsZero())
}

func TestJWTStateCodecRejectsForeignToken(t *testing.T) {
	pair := newCertificatePair(t)
	other := newCertificatePair(t)

	codec := JWTStateCodec{Audience: testSPEntityID, Issuer: testSPEntityID, MaxAge: time.Hour, Pair: pair}
	foreign := JWTStateCodec{Audience: testSPEntityID, Issuer: testSPEntityID, MaxAge: time.Hour, Pair: other}

	signed, err := foreign.Encode("relay-1", &StoredRequestState{MessageID: NewID()})
	require.NoError(t, err)

	_, _, err = codec.Decode(signed)
	assert.Error(t, err, "a token signed with another key must not decode")
}

func TestJWTStateCodecRejectsWrongAudience(t *testing.T) {
	pair := newCertificatePair(t)
	codec := JWTStateCodec{Audience: testSPEntityID, Issuer: testSPEntityID, MaxAge: time.Hour, Pair: pair}
	signed, err := codec.Encode("relay-1", &StoredRequestState{MessageID: NewID()})
	require.NoError(t, err)

	codec.Audience = "https://other.example.com/metadata"
	_, _, err = codec.Decode(signed)
	assert.Error(t, err)
}

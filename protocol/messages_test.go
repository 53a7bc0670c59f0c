package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializeDecodeSymmetry(t *testing.T) {
	req := &HandshakeRequest{EncryptedKey: "c2VjcmV0"}

	raw, err := SerializeMessage(req)
	require.NoError(t, err)
	require.JSONEq(t, `{"encrypted_key":"c2VjcmV0"}`, string(raw))

	got, err := DecodeMessage[HandshakeRequest](bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, req, got)
}

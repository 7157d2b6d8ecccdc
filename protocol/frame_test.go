package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/errors"
)

func TestDecodeClientFrame_Message(t *testing.T) {
	req := require.New(t)

	f, err := DecodeClientFrame([]byte(`{"type":"message","body":"hi"}`))

	req.NoError(err)
	req.Equal(TypeMessage, f.Type)
	req.Equal("hi", f.Body)
}

func TestDecodeClientFrame_Login(t *testing.T) {
	req := require.New(t)

	f, err := DecodeClientFrame([]byte(`{"type":"login","login":"alice","credential":"pw1"}`))

	req.NoError(err)
	req.Equal("alice", f.Login)
	req.Equal("pw1", f.Credential)
}

func TestDecodeClientFrame_RejectsMalformedJSON(t *testing.T) {
	req := require.New(t)

	_, err := DecodeClientFrame([]byte(`{"type":"message"`))

	req.ErrorIs(err, errors.ErrProtocolViolation)
}

func TestDecodeClientFrame_RejectsUnknownType(t *testing.T) {
	req := require.New(t)

	_, err := DecodeClientFrame([]byte(`{"type":"shrug"}`))

	req.ErrorIs(err, errors.ErrProtocolViolation)
}

func TestDecodeClientFrame_RejectsIncompleteLogin(t *testing.T) {
	req := require.New(t)

	_, err := DecodeClientFrame([]byte(`{"type":"login","login":"alice"}`))

	req.ErrorIs(err, errors.ErrProtocolViolation)
}

func TestDecodeClientFrame_RejectsEmptyMessage(t *testing.T) {
	req := require.New(t)

	_, err := DecodeClientFrame([]byte(`{"type":"message","body":""}`))

	req.ErrorIs(err, errors.ErrProtocolViolation)
}

func TestServerFrame_AuthFailedCarriesExplicitOk(t *testing.T) {
	req := require.New(t)

	raw := string(AuthFailed("invalid credentials").Encode())

	req.Contains(raw, `"ok":false`)
	req.Contains(raw, `"reason":"invalid credentials"`)
}

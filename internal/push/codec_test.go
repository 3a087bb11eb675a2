package push

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"client_go/internal/domain"
)

func TestDecodeEvent(t *testing.T) {
	t.Run("MemberAddedByName", func(t *testing.T) {
		ev, err := decodeEvent([]byte(`{"type":"member_added","channelId":"c1","addedUser":{"id":"u3","name":"Carol"},"addedBy":"Bob"}`))
		require.NoError(t, err)
		assert.Equal(t, domain.MemberAdded{
			Conversation: "c1",
			AddedUser:    domain.Member{ID: "u3", Name: "Carol"},
			AddedBy:      domain.Member{Name: "Bob"},
		}, ev)
	})

	t.Run("ErrorFrame", func(t *testing.T) {
		_, err := decodeEvent([]byte(`{"type":"error","message":"not a member"}`))
		var se *ServerError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "not a member", se.Message)
	})

	t.Run("UnknownType", func(t *testing.T) {
		_, err := decodeEvent([]byte(`{"type":"user_online","userId":"u2"}`))
		assert.ErrorIs(t, err, errUnknownFrame)
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := decodeEvent([]byte(`{"type":"new_message","message":42}`))
		assert.Error(t, err)
		assert.NotErrorIs(t, err, errUnknownFrame)
	})

	t.Run("TypingFrame", func(t *testing.T) {
		ev, err := decodeEvent([]byte(`{"type":"typing","channelId":"u2","userId":"u2","name":"Bob","isTyping":true}`))
		require.NoError(t, err)
		assert.Equal(t, domain.Typing{Conversation: "u2", UserID: "u2", Name: "Bob", IsTyping: true}, ev)
	})
}

func TestEncodeFrame(t *testing.T) {
	assert.JSONEq(t, `{"type":"join_channel","channelId":"g1"}`, string(encodeFrame(TypeJoinChannel, "g1", nil)))
	off := false
	assert.JSONEq(t, `{"type":"typing","channelId":"g1","isTyping":false}`, string(encodeFrame(TypeTyping, "g1", &off)))
}

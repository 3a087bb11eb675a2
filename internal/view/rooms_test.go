package view_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"client_go/internal/view"
)

func TestMembership(t *testing.T) {
	ctx := context.Background()

	t.Run("ReselectEmitsNothing", func(t *testing.T) {
		rooms := new(MockRooms)
		rooms.On("Join", mock.Anything, "G1").Return(nil).Once()
		m := view.NewMembership(rooms, nil)

		assert.NoError(t, m.Transition(ctx, group("G1")))
		assert.NoError(t, m.Transition(ctx, group("G1")))
		rooms.AssertExpectations(t)
		rooms.AssertNotCalled(t, "Leave", mock.Anything, mock.Anything)
	})

	t.Run("GroupToDirectLeaves", func(t *testing.T) {
		rooms := new(MockRooms)
		rooms.On("Join", mock.Anything, "G1").Return(nil).Once()
		rooms.On("Leave", mock.Anything, "G1").Return(nil).Once()
		m := view.NewMembership(rooms, nil)

		assert.NoError(t, m.Transition(ctx, group("G1")))
		assert.NoError(t, m.Transition(ctx, direct("u2")))
		assert.Equal(t, "", m.Joined())
		assert.NoError(t, m.Release(ctx))
		rooms.AssertExpectations(t)
	})

	t.Run("JoinErrorKeepsIntent", func(t *testing.T) {
		rooms := new(MockRooms)
		rooms.On("Join", mock.Anything, "G1").Return(errors.New("not connected")).Once()
		rooms.On("Leave", mock.Anything, "G1").Return(nil).Once()
		m := view.NewMembership(rooms, nil)

		assert.Error(t, m.Transition(ctx, group("G1")))
		assert.Equal(t, "G1", m.Joined())
		assert.NoError(t, m.Release(ctx))
		rooms.AssertExpectations(t)
	})
}

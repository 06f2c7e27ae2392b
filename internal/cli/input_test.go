package cli

import (
	"testing"
	"time"

	"matchmate-chat/internal/domain/chat"
	matchmate_errors "matchmate-chat/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"  hello there ", command{kind: cmdText, text: "hello there"}},
		{"/react 3f2a 🔥", command{kind: cmdReact, key: "3f2a", emoji: "🔥"}},
		{"/delete 3f2a", command{kind: cmdDelete, key: "3f2a", deleteType: chat.DeleteForMe}},
		{"/delete 3f2a forEveryone", command{kind: cmdDelete, key: "3f2a", deleteType: chat.DeleteForEveryone}},
		{"/video clip.mp4 12s", command{kind: cmdVideo, path: "clip.mp4", duration: 12 * time.Second}},
		{"/video clip.mp4", command{kind: cmdVideo, path: "clip.mp4"}},
		{"/photo", command{kind: cmdPhoto}},
		{"/block", command{kind: cmdBlock}},
		{"/unblock", command{kind: cmdUnblock}},
		{"/away", command{kind: cmdVisible, visible: false}},
		{"/back", command{kind: cmdVisible, visible: true}},
		{"/quit", command{kind: cmdQuit}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_Errors(t *testing.T) {
	for _, line := range []string{"", "/react onlykey", "/delete x forNobody", "/video", "/video a.mp4 soon", "/dance"} {
		_, err := parseCommand(line)
		assert.ErrorIs(t, err, matchmate_errors.ErrInvalidInput, line)
	}
}

func TestMatchKey(t *testing.T) {
	msgs := []chat.Message{
		{ID: "a1b2c3d4-0000"},
		{ID: "a1ffffff-0000"},
		{ClientID: "c-pending"},
	}

	key, err := matchKey(msgs, "a1b2")
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3d4-0000", key)

	key, err = matchKey(msgs, "c-pending")
	require.NoError(t, err)
	assert.Equal(t, "c-pending", key)

	_, err = matchKey(msgs, "a1")
	assert.ErrorIs(t, err, matchmate_errors.ErrInvalidInput)

	_, err = matchKey(msgs, "zz")
	assert.ErrorIs(t, err, matchmate_errors.ErrNotFound)
}

package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

func TestCreateThread(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		markdown string
		channel  string
		errorMsg string
	}{
		{"valid", "Game night", "hello", "general", ""},
		{"missing title", "  ", "hello", "general", "title is required"},
		{"missing content", "Game night", "", "general", "markdownContent is required"},
		{"missing channel", "Game night", "hello", "", "channel is required"},
		{"bad channel", "Game night", "hello", "General Chat", "channel must match"},
		{"long title", strings.Repeat("x", MaxTitle+1), "hello", "general", "title exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CreateThread(tt.title, tt.markdown, tt.channel)
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrValidation))
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestTagsField(t *testing.T) {
	tags, err := TagsField(`["rpg","dnd"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"rpg", "dnd"}, tags)

	tags, err = TagsField("")
	require.NoError(t, err)
	assert.Empty(t, tags)

	_, err = TagsField(`rpg,dnd`)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = TagsField(`[1,2]`)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestLabels(t *testing.T) {
	assert.NoError(t, Labels([]string{"featured"}))
	assert.ErrorIs(t, Labels(nil), model.ErrValidation)
	assert.ErrorIs(t, Labels([]string{"ok", " "}), model.ErrValidation)
	assert.ErrorIs(t, Labels([]string{strings.Repeat("l", MaxLabel+1)}), model.ErrValidation)
}

func TestUpdateThread(t *testing.T) {
	empty := ""
	assert.NoError(t, UpdateThread(nil, "body"))
	assert.ErrorIs(t, UpdateThread(&empty, "body"), model.ErrValidation)
	assert.ErrorIs(t, UpdateThread(nil, ""), model.ErrValidation)
}

func TestReply(t *testing.T) {
	assert.NoError(t, Reply("nice", ""))
	assert.ErrorIs(t, Reply("", ""), model.ErrValidation)
	assert.ErrorIs(t, Reply("nice", strings.Repeat("q", MaxQuoteRef+1)), model.ErrValidation)
}

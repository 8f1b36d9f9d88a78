package delivery

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/fedigraph/internal/model"
)

func TestSerializerActivityIDStableAcrossCalls(t *testing.T) {
	s := NewJSONSerializer("social.example")
	author := &model.Actor{ID: "a1", Username: "alice", Protocol: model.ProtocolLocal}
	post := &model.Post{ID: "p1", AuthorID: "a1", Text: "hi", CreatedAt: time.Now()}

	first, err := s.Create(post, author)
	require.NoError(t, err)
	second, err := s.Create(post, author)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "receivers deduplicate by activity id")

	del, err := s.Delete(post, author)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, del.ID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(first.Body, &payload))
	assert.Equal(t, "Create", payload["type"])
	assert.Equal(t, first.ID, payload["id"])
}

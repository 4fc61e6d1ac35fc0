package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openadsales/gateway/internal/models"
)

func TestSendMessageInventoryIntent(t *testing.T) {
	env := newTestEnv(t)

	input := "What sports inventory do you have available?"
	reply, err := env.exec.SendMessage(env.ctx(), SendMessageRequest{Content: input})
	require.NoError(t, err)

	// The agent answers with catalog data, never an echo of the input.
	assert.NotEqual(t, input, reply.Text)
	assert.Contains(t, reply.Text, "I found")
	require.Contains(t, reply.Data, "products")
	products := reply.Data["products"].([]models.Product)
	assert.NotEmpty(t, products)
	assert.Equal(t, models.RoleAgent, reply.Role)
	assert.NotEmpty(t, reply.ContextID)

	// Both turns landed in the transcript.
	msgs, err := env.store.ListMessages(env.ctx(), "pub1", reply.ContextID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, input, msgs[0].Content)
	assert.Equal(t, models.RoleAgent, msgs[1].Role)
}

func TestSendMessageCampaignGuidance(t *testing.T) {
	env := newTestEnv(t)

	reply, err := env.exec.SendMessage(env.ctx(), SendMessageRequest{Content: "How do I set up a campaign?"})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "create_media_buy")
	assert.Empty(t, reply.Data)
}

func TestSendMessageKeepsContext(t *testing.T) {
	env := newTestEnv(t)

	first, err := env.exec.SendMessage(env.ctx(), SendMessageRequest{Content: "hello"})
	require.NoError(t, err)
	second, err := env.exec.SendMessage(env.ctx(), SendMessageRequest{
		Content:   "what display products are there?",
		ContextID: first.ContextID,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ContextID, second.ContextID)

	msgs, err := env.store.ListMessages(env.ctx(), "pub1", first.ContextID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestListMessages(t *testing.T) {
	env := newTestEnv(t)

	reply, err := env.exec.SendMessage(env.ctx(), SendMessageRequest{Content: "status of my campaigns?"})
	require.NoError(t, err)

	res, err := env.exec.ListMessages(env.ctx(), ListMessagesRequest{ContextID: reply.ContextID})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, reply.ContextID, res.Data["context_id"])
	msgs := res.Data["messages"].([]models.Message)
	assert.Len(t, msgs, 2)
}

func TestTranscriptIsPrivateToItsPrincipal(t *testing.T) {
	env := newTestEnv(t)

	reply, err := env.exec.SendMessage(env.ctx(), SendMessageRequest{Content: "hello"})
	require.NoError(t, err)

	// Another principal in the same tenant presents the owner's context
	// ID: the transcript must not be readable, clearable, or writable.
	otherCtx := env.ctxAs(env.other)

	res, err := env.exec.ListMessages(otherCtx, ListMessagesRequest{ContextID: reply.ContextID})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, ErrCodeNotFound, res.Error)

	res, err = env.exec.ClearContext(otherCtx, reply.ContextID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, ErrCodeNotFound, res.Error)

	_, err = env.exec.SendMessage(otherCtx, SendMessageRequest{
		Content:   "what did buyer one say?",
		ContextID: reply.ContextID,
	})
	assert.Error(t, err)

	// The owner's transcript is intact.
	msgs, err := env.store.ListMessages(env.ctx(), "pub1", reply.ContextID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestClearContext(t *testing.T) {
	env := newTestEnv(t)

	reply, err := env.exec.SendMessage(env.ctx(), SendMessageRequest{Content: "hello"})
	require.NoError(t, err)

	res, err := env.exec.ClearContext(env.ctx(), reply.ContextID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)

	msgs, err := env.store.ListMessages(env.ctx(), "pub1", reply.ContextID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// The context row survives so the ID stays valid.
	_, err = env.store.GetContext(env.ctx(), "pub1", reply.ContextID)
	assert.NoError(t, err)

	missing, err := env.exec.ClearContext(env.ctx(), "ctx_missing")
	require.NoError(t, err)
	assert.Equal(t, ErrCodeNotFound, missing.Error)

	empty, err := env.exec.ClearContext(env.ctx(), "")
	require.NoError(t, err)
	assert.Equal(t, ErrCodeValidation, empty.Error)
}

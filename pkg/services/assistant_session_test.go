package services

import (
	"context"
	"fmt"
	"testing"

	"forecast-dashboard/pkg/forecastapi"
	"forecast-dashboard/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatSessionSubmit(t *testing.T) {
	api := newFakeBackend()
	var gotProvider models.Provider
	api.chatFn = func(_ context.Context, message string, provider models.Provider) (*models.ChatTurn, error) {
		gotProvider = provider
		raw, _ := models.NewCitation([]byte(`{"source":"sales.csv","row":4}`))
		doc, _ := models.NewCitation([]byte(`{"document_id":"memo-12"}`))
		return &models.ChatTurn{Answer: "**Rain** hurt sales.", UsedTools: []string{"weather"}, Citations: []models.Citation{doc, raw}}, nil
	}

	s := NewChatSession(api, "")
	require.NoError(t, s.SetProvider(models.ProviderSecondary))
	s.SetInput("  why did June drop?  ")
	require.NoError(t, s.Submit(context.Background()))

	st := s.Snapshot()
	assert.Equal(t, models.ProviderSecondary, gotProvider)
	assert.Equal(t, "why did June drop?", st.Question)
	assert.Equal(t, "**Rain** hurt sales.", st.Answer)
	assert.Equal(t, []string{"weather"}, st.UsedTools)
	assert.Equal(t, []string{"memo-12", `{"source":"sales.csv","row":4}`}, st.CitationLabels)
	assert.Equal(t, []string{"", ""}, st.CitationExcerpts)
	assert.False(t, st.Loading)
	require.Len(t, st.History, 1)
	assert.Equal(t, models.ProviderSecondary, st.History[0].Provider)
}

func TestBlankInputIsRejectedWithoutCall(t *testing.T) {
	api := newFakeBackend()
	for _, s := range []*AssistantSession{NewChatSession(api, models.ProviderPrimary), NewKnowledgeSession(api)} {
		t.Run(string(s.Kind()), func(t *testing.T) {
			s.SetInput("first question")
			require.NoError(t, s.Submit(context.Background()))
			before := s.Snapshot()

			for _, blank := range []string{"", "   ", "\n\t "} {
				s.SetInput(blank)
				err := s.Submit(context.Background())
				assert.True(t, forecastapi.IsPrecondition(err))
				assert.ErrorIs(t, err, forecastapi.ErrBlankInput)

				after := s.Snapshot()
				after.Input = before.Input
				assert.Equal(t, before, after)
			}
		})
	}
	assert.Equal(t, int32(1), api.chatCalls.Load())
	assert.Equal(t, int32(1), api.knowledgeCalls.Load())
}

func TestSessionFailureKeepsHistory(t *testing.T) {
	api := newFakeBackend()
	s := NewChatSession(api, models.ProviderPrimary)
	s.SetInput("one")
	require.NoError(t, s.Submit(context.Background()))

	api.chatFn = func(context.Context, string, models.Provider) (*models.ChatTurn, error) {
		return nil, &forecastapi.ServerError{Op: "chat", StatusCode: 503, Message: "model overloaded"}
	}
	s.SetInput("two")
	require.Error(t, s.Submit(context.Background()))

	st := s.Snapshot()
	assert.Contains(t, st.Error, "model overloaded")
	assert.Empty(t, st.Answer)
	assert.Empty(t, st.Citations)
	assert.Empty(t, st.UsedTools)
	assert.Equal(t, "two", st.Question)
	require.Len(t, st.History, 1)
	assert.Equal(t, "one", st.History[0].Question)

	// the next successful submit clears the error
	api.chatFn = newFakeBackend().chatFn
	require.NoError(t, s.Submit(context.Background()))
	assert.Empty(t, s.Snapshot().Error)
	assert.Equal(t, "answer to two", s.Snapshot().Answer)
}

func TestSessionNilTurnIsDecodeError(t *testing.T) {
	api := newFakeBackend()
	api.chatFn = func(context.Context, string, models.Provider) (*models.ChatTurn, error) {
		return nil, nil
	}
	s := NewChatSession(api, models.ProviderPrimary)
	s.SetInput("hello")

	err := s.Submit(context.Background())
	var decodeErr *forecastapi.DecodeError
	require.ErrorAs(t, err, &decodeErr)

	st := s.Snapshot()
	assert.False(t, st.Loading)
	assert.Contains(t, st.Error, "empty response")
	assert.Empty(t, st.History)
	assert.Empty(t, st.Answer)
}

func TestEnterKeySharesSubmitPath(t *testing.T) {
	api := newFakeBackend()
	s := NewKnowledgeSession(api)

	s.SetInput("return policy")
	handled, err := s.HandleKey(context.Background(), "a")
	assert.False(t, handled)
	assert.NoError(t, err)
	assert.Zero(t, api.knowledgeCalls.Load())

	handled, err = s.HandleKey(context.Background(), SubmitKey)
	assert.True(t, handled)
	require.NoError(t, err)

	st := s.Snapshot()
	assert.Equal(t, "see return policy", st.Answer)
	assert.Equal(t, []string{"handbook.pdf"}, st.CitationLabels)
	assert.Equal(t, []string{"3"}, st.CitationExcerpts)
	assert.Empty(t, st.Provider)
	assert.Empty(t, st.UsedTools)

	s.SetInput(" ")
	handled, err = s.HandleKey(context.Background(), SubmitKey)
	assert.True(t, handled)
	assert.True(t, forecastapi.IsPrecondition(err))
	assert.Equal(t, int32(1), api.knowledgeCalls.Load())
}

func TestSessionRejectsSubmitWhileLoading(t *testing.T) {
	api := newFakeBackend()
	entered := make(chan struct{})
	release := make(chan struct{})
	api.chatFn = func(_ context.Context, message string, _ models.Provider) (*models.ChatTurn, error) {
		close(entered)
		<-release
		return &models.ChatTurn{Answer: "ok"}, nil
	}

	s := NewChatSession(api, models.ProviderPrimary)
	s.SetInput("slow")
	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background()) }()
	<-entered

	st := s.Snapshot()
	assert.True(t, st.Loading)
	assert.Empty(t, st.Answer)
	assert.ErrorIs(t, s.Submit(context.Background()), forecastapi.ErrSubmissionPending)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.Snapshot().Loading)
}

func TestKnowledgeSessionRejectsProvider(t *testing.T) {
	s := NewKnowledgeSession(newFakeBackend())
	assert.True(t, forecastapi.IsPrecondition(s.SetProvider(models.ProviderSecondary)))
}

func TestHistoryIsBounded(t *testing.T) {
	s := NewChatSession(newFakeBackend(), models.ProviderPrimary)
	for i := 0; i < MaxHistoryTurns+5; i++ {
		s.SetInput(fmt.Sprintf("q%d", i))
		require.NoError(t, s.Submit(context.Background()))
	}
	st := s.Snapshot()
	require.Len(t, st.History, MaxHistoryTurns)
	assert.Equal(t, "q5", st.History[0].Question)
	assert.Equal(t, fmt.Sprintf("q%d", MaxHistoryTurns+4), st.History[MaxHistoryTurns-1].Question)
}

func TestParseSessionKind(t *testing.T) {
	k, ok := ParseSessionKind(" Knowledge ")
	assert.True(t, ok)
	assert.Equal(t, KindKnowledge, k)
	_, ok = ParseSessionKind("support")
	assert.False(t, ok)
}

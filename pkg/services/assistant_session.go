package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"forecast-dashboard/pkg/forecastapi"
	"forecast-dashboard/pkg/models"
)

// MaxHistoryTurns bounds the transcript kept by a session.
const MaxHistoryTurns = 20

// SubmitKey is the key that submits the current input.
const SubmitKey = "Enter"

var errProviderNotSupported = errors.New("provider selection applies to chat sessions only")

// SessionKind tells the general assistant apart from the document assistant.
type SessionKind string

const (
	KindChat      SessionKind = "chat"
	KindKnowledge SessionKind = "knowledge"
)

// ParseSessionKind accepts "chat" and "knowledge".
func ParseSessionKind(s string) (SessionKind, bool) {
	switch SessionKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindChat:
		return KindChat, true
	case KindKnowledge:
		return KindKnowledge, true
	}
	return "", false
}

// ChatAPI answers general assistant questions.
type ChatAPI interface {
	FetchChat(ctx context.Context, message string, provider models.Provider) (*models.ChatTurn, error)
}

// KnowledgeAPI answers questions over the document store.
type KnowledgeAPI interface {
	FetchKnowledgeQuery(ctx context.Context, query string) (*models.KnowledgeAnswer, error)
}

// SessionState is an immutable snapshot of an assistant view.
type SessionState struct {
	Kind             SessionKind       `json:"kind"`
	Input            string            `json:"input"`
	Provider         models.Provider   `json:"provider,omitempty"`
	Question         string            `json:"question,omitempty"`
	Answer           string            `json:"answer"`
	UsedTools        []string          `json:"used_tools,omitempty"`
	Citations        []models.Citation `json:"citations"`
	CitationLabels   []string          `json:"citation_labels"`
	// CitationExcerpts holds the quoted chunk per citation, "" when none.
	CitationExcerpts []string          `json:"citation_excerpts"`
	History          []models.ChatTurn `json:"history"`
	Loading          bool              `json:"loading"`
	Error            string            `json:"error,omitempty"`
}

type askFunc func(ctx context.Context, question string, provider models.Provider) (*models.ChatTurn, error)

// AssistantSession is the turn state machine behind the chat and knowledge views.
type AssistantSession struct {
	kind SessionKind
	ask  askFunc

	mu        sync.Mutex
	input     string
	provider  models.Provider
	question  string
	answer    string
	usedTools []string
	citations []models.Citation
	history   []models.ChatTurn
	loading   bool
	err       string
}

// NewChatSession creates a general assistant session using provider.
func NewChatSession(api ChatAPI, provider models.Provider) *AssistantSession {
	if provider == "" {
		provider = models.ProviderPrimary
	}
	return &AssistantSession{
		kind:     KindChat,
		ask:      api.FetchChat,
		provider: provider,
	}
}

// NewKnowledgeSession creates a document assistant session.
func NewKnowledgeSession(api KnowledgeAPI) *AssistantSession {
	return &AssistantSession{
		kind: KindKnowledge,
		ask: func(ctx context.Context, question string, _ models.Provider) (*models.ChatTurn, error) {
			res, err := api.FetchKnowledgeQuery(ctx, question)
			if err != nil {
				return nil, err
			}
			return &models.ChatTurn{Question: question, Answer: res.Answer, Citations: res.Citations}, nil
		},
	}
}

func (s *AssistantSession) Kind() SessionKind { return s.kind }

// SetInput replaces the pending input text.
func (s *AssistantSession) SetInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = text
}

// SetProvider switches the model behind a chat session.
func (s *AssistantSession) SetProvider(p models.Provider) error {
	if s.kind != KindChat {
		return &forecastapi.PreconditionError{Op: "set provider", Err: errProviderNotSupported}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = p
	return nil
}

// HandleKey submits on Enter and ignores every other key.
func (s *AssistantSession) HandleKey(ctx context.Context, key string) (bool, error) {
	if key != SubmitKey {
		return false, nil
	}
	return true, s.Submit(ctx)
}

// Submit sends the trimmed input and blocks until the answer settles. Blank
// input is rejected without a request and without touching the state.
func (s *AssistantSession) Submit(ctx context.Context) error {
	op := string(s.kind) + " submit"

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return forecastapi.ErrSubmissionPending
	}
	question := strings.TrimSpace(s.input)
	if question == "" {
		s.mu.Unlock()
		return &forecastapi.PreconditionError{Op: op, Err: forecastapi.ErrBlankInput}
	}
	provider := s.provider
	s.loading = true
	s.question = question
	s.answer = ""
	s.usedTools = nil
	s.citations = nil
	s.err = ""
	s.mu.Unlock()

	turn, err := s.ask(ctx, question, provider)
	if err == nil && turn == nil {
		err = &forecastapi.DecodeError{Op: string(s.kind), Err: errors.New("empty response")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		log.Printf("[assistant:%s] ⚠️ %s failed: %v", s.kind, forecastapi.ErrorClass(err), err)
		s.err = err.Error()
		return err
	}
	turn.Question = question
	if s.kind == KindChat {
		turn.Provider = provider
	}
	s.answer = turn.Answer
	s.usedTools = turn.UsedTools
	s.citations = turn.Citations
	s.history = append(s.history, *turn)
	if over := len(s.history) - MaxHistoryTurns; over > 0 {
		s.history = append([]models.ChatTurn(nil), s.history[over:]...)
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (s *AssistantSession) Snapshot() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SessionState{
		Kind:           s.kind,
		Input:          s.input,
		Question:       s.question,
		Answer:         s.answer,
		Citations:      append([]models.Citation{}, s.citations...),
		CitationLabels: make([]string, len(s.citations)),
		CitationExcerpts: make([]string, len(s.citations)),
		History:        append([]models.ChatTurn{}, s.history...),
		Loading:        s.loading,
		Error:          s.err,
	}
	if s.kind == KindChat {
		st.Provider = s.provider
		st.UsedTools = append([]string{}, s.usedTools...)
	}
	for i, c := range s.citations {
		st.CitationLabels[i] = c.Label()
		if doc, ok := c.Document(); ok {
			st.CitationExcerpts[i] = doc.Chunk
		}
	}
	return st
}

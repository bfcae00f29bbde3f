package qa

import (
	"context"
	"log/slog"
	"strings"

	"codecast/internal/logging"
	"codecast/internal/router"
	"codecast/internal/services"
	"codecast/internal/services/ai"
)

// Engine answers follow-up questions against a session's explanation.
type Engine struct {
	store      *Store
	router     *router.Router
	logger     *slog.Logger
	maxHistory int
}

// NewEngine builds the Q&A engine.
func NewEngine(store *Store, r *router.Router, logger *slog.Logger, maxHistory int) *Engine {
	if maxHistory <= 0 {
		maxHistory = 20
	}
	return &Engine{
		store:      store,
		router:     r,
		logger:     logging.NewComponentLogger(logger, "qa"),
		maxHistory: maxHistory,
	}
}

// Store exposes the underlying session store for session management.
func (e *Engine) Store() *Store { return e.store }

// Ask answers a question within a session. The session's code and cached
// transcript are supplied to the backend as read-only context along with
// the bounded exchange history.
func (e *Engine) Ask(ctx context.Context, sessionID, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", services.Wrap(services.ErrValidation, "qa", "ask", "question is empty", nil)
	}

	session, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session.Closed {
		return "", services.Wrap(services.ErrValidation, "qa", "ask",
			"session is closed; its explanation was invalidated or the session ended", nil)
	}

	history, err := e.store.History(ctx, session.ID, e.maxHistory)
	if err != nil {
		return "", err
	}
	turns := make([]ai.Turn, 0, len(history))
	for _, exchange := range history {
		turns = append(turns, ai.Turn{Question: exchange.Question, Answer: exchange.Answer})
	}

	answer, backend, err := e.router.Answer(ctx, ai.AnswerRequest{
		Question:   question,
		Code:       session.Code,
		Language:   session.Language,
		Transcript: session.Transcript,
		History:    turns,
	})
	if err != nil {
		return "", err
	}

	if err := e.store.AppendExchange(ctx, session.ID, question, answer, backend); err != nil {
		// The answer is still good; losing one history row only weakens
		// future context.
		e.logger.WarnContext(ctx, "exchange not recorded",
			logging.Error(err),
			logging.String(logging.FieldImpact, "this question will be missing from session history"),
		)
	}
	e.logger.InfoContext(ctx, "answered question",
		logging.String("session_id", session.ID),
		logging.String(logging.FieldBackend, backend),
	)
	return answer, nil
}

package session

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
)

const messagesKey = "_messages"

// Message levels.
const (
	LevelDebug   = "debug"
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Message is a one-time notice shown on the next rendered page.
type Message struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// AddMessage queues a flash message in s.
func AddMessage(s *Session, level, text string) {
	msgs := peekMessages(s)
	msgs = append(msgs, Message{Level: level, Text: text})
	b, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	s.Set(messagesKey, string(b))
}

// PopMessages returns and clears the queued messages.
func PopMessages(s *Session) []Message {
	msgs := peekMessages(s)
	if len(msgs) > 0 {
		s.Delete(messagesKey)
	}
	return msgs
}

func peekMessages(s *Session) []Message {
	raw, ok := s.Get(messagesKey)
	if !ok || raw == "" {
		return nil
	}
	var msgs []Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil
	}
	return msgs
}

type messagesContextKey struct{}

// messageQueue pops the session's messages on first read only.
type messageQueue struct {
	sess *Session
	once sync.Once
	msgs []Message
}

func (q *messageQueue) pop() []Message {
	q.once.Do(func() { q.msgs = PopMessages(q.sess) })
	return q.msgs
}

// MessagesMiddleware exposes queued messages to the handler through
// MessagesFromContext. Requests that never read them leave the session
// untouched. It must run inside Manager.Middleware.
func MessagesMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := FromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), messagesContextKey{}, &messageQueue{sess: sess})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MessagesFromContext consumes the messages queued for this request.
// Repeated calls return the same slice.
func MessagesFromContext(ctx context.Context) []Message {
	q, ok := ctx.Value(messagesContextKey{}).(*messageQueue)
	if !ok {
		return nil
	}
	return q.pop()
}

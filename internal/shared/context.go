package shared

import "context"

type (
	sessionContextKey struct{}
	denialContextKey  struct{}
)

type denialNote struct {
	signal string
}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// CurrentUserID reads the caller identity from the request-scoped session.
func CurrentUserID(ctx context.Context) (int64, bool) {
	sess := SessionFromContext(ctx)
	if sess == nil || sess.destroyed {
		return 0, false
	}
	return sess.UserID()
}

// ContextWithDenialNote returns a context in which NoteDenial can record a guard signal,
// and a function reading the recorded signal back. The signal is empty when nothing was
// denied.
func ContextWithDenialNote(ctx context.Context) (context.Context, func() string) {
	note := &denialNote{}
	return context.WithValue(ctx, denialContextKey{}, note), func() string { return note.signal }
}

// NoteDenial records the guard signal for the current request. Without a note slot in
// ctx it does nothing.
func NoteDenial(ctx context.Context, signal string) {
	if note, ok := ctx.Value(denialContextKey{}).(*denialNote); ok {
		note.signal = signal
	}
}

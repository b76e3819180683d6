package llm

import "context"

// callTag labels model calls for the event log: what the call was for and
// which practice session caused it.
type callTag struct {
	purpose string
	session string
}

type tagKey struct{}

func tagFrom(ctx context.Context) callTag {
	t, _ := ctx.Value(tagKey{}).(callTag)
	return t
}

// WithPurpose labels calls made under ctx, e.g. "score-writing".
func WithPurpose(ctx context.Context, purpose string) context.Context {
	t := tagFrom(ctx)
	t.purpose = purpose
	return context.WithValue(ctx, tagKey{}, t)
}

// PurposeFrom returns the purpose label, or "unknown".
func PurposeFrom(ctx context.Context) string {
	if p := tagFrom(ctx).purpose; p != "" {
		return p
	}
	return "unknown"
}

// WithSession links calls made under ctx to a practice session.
func WithSession(ctx context.Context, sessionID string) context.Context {
	t := tagFrom(ctx)
	t.session = sessionID
	return context.WithValue(ctx, tagKey{}, t)
}

// SessionFrom returns the linked session id, if any.
func SessionFrom(ctx context.Context) string { return tagFrom(ctx).session }

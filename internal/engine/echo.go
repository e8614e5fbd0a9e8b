package engine

import "context"

// Echo returns its input unchanged. Used for dry runs and round-trip checks.
type Echo struct{}

func (Echo) Kind() Kind {
	return KindEcho
}

func (Echo) Translate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{Kind: KindEcho, Cause: err}
	}
	return req.Text, nil
}

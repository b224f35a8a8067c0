package gateway

import (
	"context"

	"golang.org/x/time/rate"
)

type limitedClient struct {
	next    Client
	limiter *rate.Limiter
}

// Limit paces calls through c to at most rps requests per second. The
// returned client can be shared by parallel runs against one endpoint.
// rps <= 0 returns c unchanged.
func Limit(c Client, rps float64) Client {
	if rps <= 0 {
		return c
	}
	return &limitedClient{next: c, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (l *limitedClient) Generate(ctx context.Context, prompt string) (*Completion, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Generate(ctx, prompt)
}

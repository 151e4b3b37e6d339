package service

import (
	"context"
	"fmt"
	"io"

	"github.com/pkordes/hidetrace/backend/internal/domain"
)

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// randomCode draws n characters uniformly from codeAlphabet. Bytes at or above
// the largest multiple of the alphabet size are discarded to avoid modulo bias.
func randomCode(r io.Reader, n int) (string, error) {
	const limit = 256 - 256%len(codeAlphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// mintCode draws codes until exists reports one as free. Randomness alone is
// never trusted for uniqueness; after attempts draws it gives up with a
// Conflict rejection.
func mintCode(ctx context.Context, o options, n int, exists func(context.Context, string) (bool, error)) (string, error) {
	for range o.codeAttempts {
		code, err := randomCode(o.random, n)
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", domain.Reject(domain.ErrConflict, domain.ReasonCodeSpaceExhausted,
		"no free %d-character code after %d attempts", n, o.codeAttempts)
}

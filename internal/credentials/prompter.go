package credentials

import (
	"bufio"
	"chat-oracle/pkg/apperr"
	"chat-oracle/pkg/logg"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// TerminalPrompter asks the operator for a verification code on the
// controlling terminal. It has no timeout.
type TerminalPrompter struct {
	in         io.Reader
	out        io.Writer
	isTerminal func() bool
	logger     *zap.Logger
}

type PrompterParams struct {
	fx.In

	Logger *zap.Logger
}

func NewTerminalPrompter(params PrompterParams) *TerminalPrompter {
	return &TerminalPrompter{
		in:  os.Stdin,
		out: os.Stderr,
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
		logger: params.Logger.With(zap.String(logg.Layer, "Prompter")),
	}
}

func (p *TerminalPrompter) PromptCode(ctx context.Context, message string) (string, error) {
	const op = "PromptCode"

	if !p.isTerminal() {
		p.logger.Warn("Standard input is not a terminal; reading verification code from it anyway")
	}

	fmt.Fprint(p.out, message)

	type answer struct {
		line string
		err  error
	}

	done := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(p.in).ReadString('\n')
		done <- answer{line: line, err: err}
	}()

	// On cancellation the reader goroutine stays blocked on stdin until the
	// process exits; the buffered channel lets it finish without a receiver.
	select {
	case <-ctx.Done():
		return "", apperr.WrapWithReason(op, apperr.CodeInternal, ctx.Err(), "prompt_cancelled")
	case a := <-done:
		if a.err != nil && !(errors.Is(a.err, io.EOF) && a.line != "") {
			return "", apperr.Wrap(op, apperr.CodeInvalidArgument, a.err, map[string]any{
				apperr.MetaReason: "code_read_failed",
				apperr.MetaStage:  apperr.StageVerification,
			})
		}

		code := strings.TrimSpace(a.line)
		if code == "" {
			return "", apperr.InvalidReqError(op, "code", errors.New("verification code is empty"))
		}

		return code, nil
	}
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reelrules/regbot-gateway/internal/citation"
	"github.com/reelrules/regbot-gateway/internal/conversation"
	"github.com/reelrules/regbot-gateway/internal/feed"
	"github.com/reelrules/regbot-gateway/internal/model"
	natsclient "github.com/reelrules/regbot-gateway/internal/nats"
	"github.com/reelrules/regbot-gateway/internal/session"
	"github.com/reelrules/regbot-gateway/internal/stream"
	"github.com/reelrules/regbot-gateway/internal/upstream"
	"github.com/reelrules/regbot-gateway/pkg/logger"
)

const (
	cmdQuit    = "/quit"
	cmdHistory = "/history"
	cmdToken   = "/token"
)

func runChat(cmd *cobra.Command, args []string) error {
	log, err := logger.NewWithOutput(logLevel, "stderr")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	styles := citation.DefaultStyles()
	if plain {
		styles = citation.PlainStyles()
	}
	out := cmd.OutOrStdout()
	p := newPrinter(out, styles)

	id, _ := session.ParseToken(accessToken)
	mode := session.ModeOf(id, time.Now())
	fmt.Fprintf(out, "conversation %s (%s). %s to exit.\n", conversationID, mode, cmdQuit)

	if mode == session.ModeAuthenticated {
		return runAuthenticated(ctx, cmd.InOrStdin(), out, p, log)
	}
	return runAnonymous(ctx, cmd.InOrStdin(), out, p, log)
}

func runAnonymous(ctx context.Context, in io.Reader, out io.Writer, p *printer, log *logger.Logger) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("failed to create cookie jar: %w", err)
	}

	store := conversation.NewAnonymous(conversationID)
	consumer := stream.NewConsumer(store,
		stream.NewHTTPTransport(relayURL, &http.Client{Jar: jar}),
		stream.WithObserver(p.update),
		stream.WithLogger(log),
	)
	defer consumer.Close()

	return prompt(ctx, in, out, func(line string) error {
		if line == cmdHistory {
			printHistory(out, p, store.Messages())
			return nil
		}
		err := consumer.Submit(ctx, line)
		p.finish()
		if errors.Is(err, model.ErrInvalidRequest) || errors.Is(err, model.ErrBusy) {
			fmt.Fprintln(out, err)
			return nil
		}
		// Stream failures are already shown as an error message.
		if err != nil {
			log.Debug("submit failed", zap.Error(err))
		}
		return nil
	})
}

func runAuthenticated(ctx context.Context, in io.Reader, out io.Writer, p *printer, log *logger.Logger) error {
	dial, err := feed.NewDialer(feed.Options{
		Backend:   feedBackend,
		HasuraURL: hasuraURL,
		NATS: natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
			Name:     "regchat",
		},
		Logger: log,
	})
	if err != nil {
		return err
	}

	factory := feed.NewClientFactory(dial, func(previous, current string) {
		fmt.Fprintf(out, "signed in as %s, reloading conversation\n", current)
	}, log)
	defer factory.Close()

	client := upstream.New(apiURL, 0, log)
	w := &watcher{printer: p, log: log}
	defer w.stop()

	token := accessToken
	if err := w.follow(ctx, factory, token); err != nil {
		return err
	}

	return prompt(ctx, in, out, func(line string) error {
		switch {
		case line == cmdHistory:
			printHistory(out, p, w.messages())
			return nil
		case strings.HasPrefix(line, cmdToken+" "):
			next := strings.TrimSpace(strings.TrimPrefix(line, cmdToken))
			if err := w.follow(ctx, factory, next); err != nil {
				fmt.Fprintln(out, err)
				return nil
			}
			token = next
			return nil
		}

		cookie := session.AccessCookie + "=" + token
		if err := client.Ask(ctx, conversationID, line, cookie); err != nil {
			fmt.Fprintln(out, p.errStyle.Render("! "+askMessage(err)))
		}
		return nil
	})
}

// watcher runs the live feed subscription for the current user.
type watcher struct {
	printer *printer
	log     *logger.Logger

	client feed.Client
	store  *conversation.Authenticated
	cancel context.CancelFunc
}

// follow subscribes as the token's user, restarting the subscription when
// the factory hands out a different client.
func (w *watcher) follow(ctx context.Context, factory *feed.ClientFactory, token string) error {
	id, err := session.ParseToken(token)
	if err != nil {
		return err
	}
	// The factory closes the old client on a user change; stop first so
	// the old subscription ends quietly.
	if w.client != nil && id.UserID != factory.UserID() {
		w.stop()
	}

	client, err := factory.ForToken(ctx, token)
	if err != nil {
		return err
	}
	if client == w.client {
		return nil
	}

	w.stop()
	runCtx, cancel := context.WithCancel(ctx)
	store := conversation.NewAuthenticated(conversationID, w.printer.snapshot, w.log)
	w.client, w.store, w.cancel = client, store, cancel

	go func() {
		if err := store.Run(runCtx, client); err != nil {
			w.log.Error("live feed stopped", zap.Error(err))
		}
	}()
	return nil
}

func (w *watcher) messages() []model.Message {
	if w.store == nil {
		return nil
	}
	return w.store.Messages()
}

func (w *watcher) stop() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

// prompt reads one question per line until EOF, /quit, or ctx is done.
func prompt(ctx context.Context, in io.Reader, out io.Writer, handle func(line string) error) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case cmdQuit:
				return nil
			}
			if err := handle(line); err != nil {
				return err
			}
		}
	}
}

func printHistory(out io.Writer, p *printer, messages []model.Message) {
	for _, m := range messages {
		if m.Type == model.MessageTypeUser {
			fmt.Fprintf(out, "you: %s\n", m.Content)
			continue
		}
		if m.Error {
			fmt.Fprintln(out, p.errStyle.Render("! "+m.Content))
			continue
		}
		fmt.Fprintf(out, "bot: %s\n", p.renderer.RenderMessage(m))
	}
}

func askMessage(err error) string {
	var upstreamErr *model.UpstreamError
	if errors.As(err, &upstreamErr) && upstreamErr.Message != "" {
		return upstreamErr.Message
	}
	if errors.Is(err, model.ErrUpstreamUnavailable) {
		return "The assistant is unreachable. Check your connection and try again."
	}
	return "Your question could not be sent. Please try again."
}


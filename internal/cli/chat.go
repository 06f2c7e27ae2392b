package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"matchmate-chat/config"
	"matchmate-chat/internal/api"
	"matchmate-chat/internal/domain/chat"
	"matchmate-chat/internal/media"
	"matchmate-chat/internal/notify"
	"matchmate-chat/internal/session"
	"matchmate-chat/internal/websocket"
	matchmate_errors "matchmate-chat/pkg/errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func init() {
	chatCmd.Flags().String("with", "", "user id of the match to chat with")
	chatCmd.Flags().String("as", "", "fetch a development token for this user id from the relay")
	_ = chatCmd.MarkFlagRequired("with")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat --with <userId>",
	Short: "Open a realtime conversation with a match",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, l := setup(cmd)
		defer l.Sync()

		with, _ := cmd.Flags().GetString("with")
		as, _ := cmd.Flags().GetString("as")

		ctx, stop := runContext(cmd.Context())
		defer stop()

		log := zap.NewNop()
		if verbose(cmd) {
			log = l.Logger
		}
		return runChat(ctx, cfg, log, with, as, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func runChat(ctx context.Context, cfg *config.Config, log *zap.Logger, with, as string, in io.Reader, out io.Writer) error {
	client := api.NewClient(cfg.Client.APIBaseURL, cfg.Client.AuthToken,
		api.WithTimeout(cfg.Client.RequestTimeout),
		api.WithLogger(log.Named("api")),
	)

	token := cfg.Client.AuthToken
	if as != "" {
		issued, err := client.DevToken(ctx, as)
		if err != nil {
			return fmt.Errorf("dev token for %s: %w", as, err)
		}
		token = issued.AccessToken
		client = client.WithToken(token)
	}
	if token == "" {
		return fmt.Errorf("%w: set AUTH_TOKEN or pass --as", matchmate_errors.ErrUnauthorized)
	}

	signals := notify.NewBus[notify.Signal](log.Named("signals"))
	unread := notify.NewUnreadCounter(client, cfg.Client.UnreadPollInterval, log.Named("unread"))
	rt := websocket.NewManager(cfg.Client.WSURL, websocket.WithLogger(log.Named("websocket")))

	s, err := session.New(session.Config{
		Token:            token,
		FallbackWindow:   cfg.Client.FallbackWindow,
		IndicatorDecay:   cfg.Client.IndicatorDecay,
		MaxVideoDuration: cfg.Client.MaxVideoDuration,
	}, client, rt,
		session.WithSignals(signals),
		session.WithUnreadSink(unread),
		session.WithLogger(log.Named("session")),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	view := newTranscript(out)
	defer s.Subscribe(view.Render)()
	defer s.OnNotice(view.Notice)()
	defer unread.Attach(signals)()
	defer unread.OnChange(func(n int) { view.Printf("-- unread: %d", n) })()

	if err := s.Open(ctx, with); err != nil {
		if errors.Is(err, matchmate_errors.ErrNotFound) {
			return fmt.Errorf("no conversation with %s", with)
		}
		return err
	}
	if err := s.SetVisible(ctx, true); err != nil {
		return err
	}
	view.Printf("-- chatting with %s as %s (/help for commands)", with, s.Self())

	g, gctx := errgroup.WithContext(ctx)
	gctx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		return unread.Run(gctx)
	})
	g.Go(func() error {
		return rt.Keepalive(gctx, cfg.Client.KeepaliveInterval)
	})

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-gctx.Done():
				return
			}
		}
	}()

	g.Go(func() error {
		defer stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if strings.TrimSpace(line) == "" {
					continue
				}
				quit, err := handleLine(gctx, s, cfg, line, view)
				if err != nil {
					view.Printf("!! %v", err)
				}
				if quit {
					return nil
				}
			}
		}
	})

	return g.Wait()
}

func handleLine(ctx context.Context, s *session.Session, cfg *config.Config, line string, view *transcript) (bool, error) {
	cmd, err := parseCommand(line)
	if err != nil {
		return false, err
	}

	switch cmd.kind {
	case cmdText:
		_, err = s.SendText(ctx, cmd.text)
	case cmdReact:
		var key string
		if key, err = resolveKey(ctx, s, cmd.key); err == nil {
			err = s.React(ctx, key, cmd.emoji)
		}
	case cmdDelete:
		var key string
		if key, err = resolveKey(ctx, s, cmd.key); err == nil {
			err = s.Delete(ctx, key, cmd.deleteType)
		}
	case cmdVideo:
		var blob media.Blob
		if blob, err = media.BlobFromFile(cmd.path, cmd.duration, cfg.Client.MaxVideoDuration); err == nil {
			_, err = s.SendMedia(ctx, blob)
		}
	case cmdPhoto:
		err = fmt.Errorf("%w: no camera attached to this terminal", matchmate_errors.ErrPermissionDenied)
	case cmdBlock:
		err = s.Block(ctx)
	case cmdUnblock:
		err = s.Unblock(ctx)
	case cmdVisible:
		err = s.SetVisible(ctx, cmd.visible)
	case cmdHelp:
		view.Printf("%s", helpText)
	case cmdQuit:
		return true, nil
	}
	return false, err
}

// resolveKey expands a displayed key prefix to the full message key.
func resolveKey(ctx context.Context, s *session.Session, prefix string) (string, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return matchKey(snap.Messages, prefix)
}

func matchKey(messages []chat.Message, prefix string) (string, error) {
	found := ""
	for _, m := range messages {
		key := m.Key()
		if key == prefix {
			return key, nil
		}
		if strings.HasPrefix(key, prefix) {
			if found != "" {
				return "", fmt.Errorf("%w: %q matches more than one message", matchmate_errors.ErrInvalidInput, prefix)
			}
			found = key
		}
	}
	if found == "" {
		return "", fmt.Errorf("message %q: %w", prefix, matchmate_errors.ErrNotFound)
	}
	return found, nil
}


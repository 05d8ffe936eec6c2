package app

import (
	"context"
	"fmt"

	"bankbot/internal/httpapi"
	"bankbot/internal/httpx"
	slackbot "bankbot/internal/integrations/slack"
	"bankbot/internal/scheduler"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Slack bot and scheduled retraining",
		Long: `Serve the JSON API on http_addr. When SLACK_BOT_TOKEN and SLACK_APP_TOKEN are
set the Slack bot runs alongside it over Socket Mode, and when retrain_schedule
is set the model is retrained on that cron schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				st.cfg.HTTPAddr = addr
			}
			rt, err := openRuntime(st)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.bootstrap(cmd.Context()); err != nil {
				return err
			}
			return rt.serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "Listen address (overrides http_addr)")
	return cmd
}

func (rt *runtime) serve(ctx context.Context) error {
	var bot *slackbot.Bot
	var client *socketmode.Client
	if rt.cfg.SlackConfigured() {
		api := slack.New(
			rt.cfg.SlackBotToken,
			slack.OptionAppLevelToken(rt.cfg.SlackAppToken),
			slack.OptionHTTPClient(httpx.ExternalHTTPClient()),
		)
		admins, unresolved, err := slackbot.ResolveUserIDs(func() ([]slack.User, error) { return api.GetUsers() }, rt.cfg.SlackAdmins, rt.logger)
		if err != nil {
			return fmt.Errorf("resolve slack admins: %w", err)
		}
		if len(unresolved) > 0 {
			rt.logger.Warn("some slack admins could not be resolved", zap.Strings("names", unresolved))
		}
		bot = slackbot.NewBot(rt.service, api, admins, rt.logger)
		client = socketmode.New(api)
	} else {
		rt.logger.Info("slack bot disabled (SLACK_BOT_TOKEN/SLACK_APP_TOKEN not set)")
	}

	var sched *scheduler.Retrainer
	if rt.cfg.RetrainSchedule != "" {
		var err error
		sched, err = scheduler.NewRetrainer(rt.cfg.RetrainSchedule, rt.service.Retrain, rt.logger)
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	srv := httpapi.NewServer(rt.cfg.HTTPAddr, httpapi.NewHandler(rt.service, rt.logger))
	g.Go(func() error {
		return httpapi.Serve(ctx, srv, rt.logger)
	})
	if bot != nil {
		g.Go(func() error {
			return bot.Run(ctx, client)
		})
	}
	if sched != nil {
		g.Go(func() error {
			return sched.Run(ctx)
		})
	}
	return g.Wait()
}

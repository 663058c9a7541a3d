// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package subcommands holds the faceredact CLI commands.
package subcommands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/maruel/subcommands"
	"golang.org/x/sync/errgroup"

	"go.chromium.org/luci/auth/client/authcli"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/tsmon"
	"go.chromium.org/luci/common/tsmon/target"

	"faceredact/internal/clients"
	"faceredact/internal/config"
	"faceredact/internal/events"
	"faceredact/internal/faces"
	"faceredact/internal/gs"
	"faceredact/internal/notification"
	"faceredact/internal/processor"
	"faceredact/internal/site"
)

// CmdRun is the redaction service daemon.
var CmdRun = &subcommands.Command{
	UsageLine: "run [flags]",
	ShortDesc: "runs the redaction service",
	LongDesc: `Runs the redaction service.

The service pulls Cloud Storage finalize notifications from a Pub/Sub
subscription. For every eligible image it downloads the object, asks
Cloud Vision for face bounding boxes, distorts the pixels inside each
box, and uploads the result to the output bucket. Messages that fail
for transient reasons are redelivered by Pub/Sub; everything else is
consumed.`,
	CommandRun: func() subcommands.CommandRun {
		c := &runCommand{}
		c.authFlags.Register(&c.Flags, site.DefaultAuthOptions())
		c.cfg = config.RegisterFlags(&c.Flags)
		c.Flags.StringVar(&c.healthAddr, "health-addr", ":8080", "Address for the /healthz liveness endpoint.")
		c.Flags.DurationVar(&c.shutdownGrace, "shutdown-grace-period", 30*time.Second, "Time allowed for in-flight messages and connections to drain on shutdown.")
		c.Flags.StringVar(&c.tsmonEndpoint, "tsmon-endpoint", "", "URL (including file://, https://, pubsub://project/topic) to post monitoring metrics to.")
		c.Flags.StringVar(&c.tsmonCredentials, "tsmon-credentials", "", "Credential file used to post monitoring metrics.")
		c.Flags.StringVar(&c.tsmonTaskHostname, "tsmon-task-hostname", "", "Name of the host reported to tsmon. (default is the hostname)")
		return c
	},
}

type runCommand struct {
	subcommands.CommandRunBase
	authFlags authcli.Flags
	cfg       *config.Config

	healthAddr    string
	shutdownGrace time.Duration

	tsmonEndpoint     string
	tsmonCredentials  string
	tsmonTaskHostname string
}

func (c *runCommand) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	if err := c.innerRun(ctx, args); err != nil {
		fmt.Fprintf(a.GetErr(), "%s: %s\n", a.GetName(), err)
		return 1
	}
	return 0
}

func (c *runCommand) innerRun(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errors.Reason("run takes no positional arguments").Err()
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	c.setupTsMon(ctx)
	// The deferred shutdown sees the context from before the signal
	// handler so the final flush is not already canceled.
	defer c.shutdownTsMon(ctx)
	ctx = cancelOnSignals(ctx)

	ts, err := clients.TokenSource(ctx, &c.authFlags)
	if err != nil {
		return err
	}
	opts := clients.Options(ts)

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return errors.Annotate(err, "creating storage client").Err()
	}
	gsc := gs.NewClient(storageClient)
	defer gsc.Close()

	psClient, err := pubsub.NewClient(ctx, c.cfg.Project, opts...)
	if err != nil {
		return errors.Annotate(err, "creating pubsub client").Err()
	}
	defer psClient.Close()

	detector, err := faces.NewDetector(ctx, c.cfg.MaxFaces, c.cfg.MinConfidence, opts...)
	if err != nil {
		return errors.Annotate(err, "creating vision client").Err()
	}

	var publisher events.Publisher
	if c.cfg.ResultTopic != "" {
		p, err := events.NewPublisher(ctx, psClient, c.cfg.ResultTopic)
		if err != nil {
			return err
		}
		defer p.Stop()
		publisher = p
	}

	proc := processor.New(gsc, detector, publisher, c.cfg)
	sub, err := notification.NewSubscriber(ctx, psClient, c.cfg, proc.Process)
	if err != nil {
		return err
	}

	health := &http.Server{Addr: c.healthAddr, Handler: healthMux()}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logging.Infof(ctx, "Pulling %s in project %s", c.cfg.Subscription, c.cfg.Project)
		return sub.Run(ctx)
	})
	eg.Go(func() error {
		logging.Infof(ctx, "Serving /healthz on %s", c.healthAddr)
		if err := health.ListenAndServe(); err != http.ErrServerClosed {
			return errors.Annotate(err, "health endpoint").Err()
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), c.shutdownGrace)
		defer cancel()
		return health.Shutdown(sctx)
	})
	return eg.Wait()
}

func healthMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

func (c *runCommand) setupTsMon(ctx context.Context) {
	fl := tsmon.NewFlags()
	fl.Endpoint = c.tsmonEndpoint
	fl.Credentials = c.tsmonCredentials
	fl.Flush = tsmon.FlushAuto
	fl.Target.TaskHostname = c.tsmonTaskHostname
	fl.Target.SetDefaultsFromHostname()
	fl.Target.TargetType = target.TaskType
	fl.Target.TaskServiceName = "faceredact"
	fl.Target.TaskJobName = "run"

	if err := tsmon.InitializeFromFlags(ctx, &fl); err != nil {
		logging.Warningf(ctx, "Skipping tsmon setup: %s", err)
	}
}

func (c *runCommand) shutdownTsMon(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	logging.Infof(ctx, "Shutting down tsmon")
	tsmon.Shutdown(ctx)
}

// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package subcommands

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/dustin/go-humanize"
	"github.com/maruel/subcommands"

	"go.chromium.org/luci/auth/client/authcli"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/errors"

	"faceredact/internal/clients"
	"faceredact/internal/config"
	"faceredact/internal/faces"
	"faceredact/internal/gs"
	"faceredact/internal/pixelate"
	"faceredact/internal/processor"
	"faceredact/internal/site"
)

// CmdRedact redacts one image without going through Pub/Sub.
var CmdRedact = &subcommands.Command{
	UsageLine: "redact -out <destination> <source>",
	ShortDesc: "redacts faces in a single image",
	LongDesc: `Redacts faces in a single image and writes the result.

The source and the destination may be local paths or gs:// URLs; a
gs:// source may pin a generation with a #<number> suffix. Nothing
touches Cloud Storage unless one side names it. Face detection always
uses the remote Vision service.`,
	CommandRun: func() subcommands.CommandRun {
		c := &redactCommand{}
		c.authFlags.Register(&c.Flags, site.DefaultAuthOptions())
		c.cfg = &config.Config{}
		c.cfg.RegisterRedactionFlags(&c.Flags)
		c.Flags.StringVar(&c.out, "out", "", "Destination path or gs:// URL for the redacted copy. Required.")
		return c
	},
}

type redactCommand struct {
	subcommands.CommandRunBase
	authFlags authcli.Flags
	cfg       *config.Config
	out       string
}

// redactSummary is what the one-shot pipeline reports back.
type redactSummary struct {
	faces    int
	status   string
	bytesIn  int
	bytesOut int
}

func (c *redactCommand) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	if err := c.innerRun(ctx, a, args); err != nil {
		fmt.Fprintf(a.GetErr(), "%s: %s\n", a.GetName(), err)
		return 1
	}
	return 0
}

func (c *redactCommand) innerRun(ctx context.Context, a subcommands.Application, args []string) error {
	if len(args) != 1 {
		return errors.Reason("expects exactly one source image, got %d arguments", len(args)).Err()
	}
	if c.out == "" {
		return errors.Reason("-out is required").Err()
	}
	if err := c.cfg.ValidateRedaction(); err != nil {
		return err
	}
	source := args[0]

	ts, err := clients.TokenSource(ctx, &c.authFlags)
	if err != nil {
		return err
	}
	opts := clients.Options(ts)

	// Local sources and destinations never touch Cloud Storage.
	var gsc gs.Client
	if isGSPath(source) || isGSPath(c.out) {
		sc, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return errors.Annotate(err, "creating storage client").Err()
		}
		gsc = gs.NewClient(sc)
		defer gsc.Close()
	}

	detector, err := faces.NewDetector(ctx, c.cfg.MaxFaces, c.cfg.MinConfidence, opts...)
	if err != nil {
		return errors.Annotate(err, "creating vision client").Err()
	}

	sum, err := redactOnce(ctx, gsc, detector, c.cfg, source, c.out)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.GetOut(), "%s: %d face(s), %s, %s in, %s out -> %s\n",
		source, sum.faces, sum.status,
		humanize.IBytes(uint64(sum.bytesIn)), humanize.IBytes(uint64(sum.bytesOut)), c.out)
	return nil
}

// redactOnce is the daemon pipeline minus the notification plumbing:
// read, detect, distort, write.
func redactOnce(ctx context.Context, gsc gs.Client, det faces.Detector, cfg *config.Config, source, dest string) (*redactSummary, error) {
	data, contentType, err := readSource(ctx, gsc, source, cfg.MaxObjectBytes)
	if err != nil {
		return nil, err
	}

	found, err := det.DetectFaces(ctx, data)
	if err != nil {
		return nil, errors.Annotate(err, "detecting faces in %s", source).Err()
	}

	sum := &redactSummary{faces: len(found), status: processor.StatusCopied, bytesIn: len(data)}
	outData, outContentType := data, contentType
	if len(found) > 0 {
		boxes := make([]image.Rectangle, len(found))
		for i, f := range found {
			boxes[i] = f.Bounds
		}
		res, err := pixelate.Bytes(data, boxes, pixelate.Options{
			Mode:        cfg.Mode,
			BlockSize:   cfg.BlockSize,
			Margin:      cfg.BoxMargin,
			JPEGQuality: cfg.JPEGQuality,
		})
		if err != nil {
			return nil, errors.Annotate(err, "redacting %s", source).Err()
		}
		if res.Boxes > 0 {
			sum.status = processor.StatusRedacted
			outData, outContentType = res.Data, res.ContentType
		}
	}
	sum.bytesOut = len(outData)

	if err := writeDest(ctx, gsc, dest, outData, outContentType); err != nil {
		return nil, err
	}
	return sum, nil
}

func readSource(ctx context.Context, gsc gs.Client, source string, maxBytes int64) ([]byte, string, error) {
	if isGSPath(source) {
		p, err := gs.ParsePath(source)
		if err != nil {
			return nil, "", err
		}
		data, info, err := gsc.Download(ctx, p.Bucket, p.Object, p.Generation, maxBytes)
		if err != nil {
			return nil, "", err
		}
		return data, info.ContentType, nil
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, "", errors.Annotate(err, "reading %s", source).Err()
	}
	return data, http.DetectContentType(data), nil
}

func writeDest(ctx context.Context, gsc gs.Client, dest string, data []byte, contentType string) error {
	if isGSPath(dest) {
		p, err := gs.ParsePath(dest)
		if err != nil {
			return err
		}
		_, err = gsc.Upload(ctx, gs.UploadRequest{
			Bucket:      p.Bucket,
			Object:      p.Object,
			ContentType: contentType,
			Data:        data,
		})
		return err
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return errors.Annotate(err, "writing %s", dest).Err()
	}
	return nil
}

func isGSPath(s string) bool {
	return strings.HasPrefix(s, "gs://")
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/abduction.report/internal/fsutil"
	"github.com/banshee-data/abduction.report/internal/pose/export"
	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
	"github.com/banshee-data/abduction.report/internal/pose/report"
	"github.com/banshee-data/abduction.report/internal/pose/sampler"
	"github.com/banshee-data/abduction.report/internal/pose/storage/sqlite"
	"github.com/banshee-data/abduction.report/internal/security"
)

type options struct {
	ID        string // empty lists sessions
	Subject   string
	Limit     int
	Timezone  string
	Zones     l3geometry.Zones
	OutDir    string
	PNG       bool
	HTML      bool
	Export    bool
	Format    export.Format
	Summarise bool
}

type reporter struct {
	store *sqlite.Store
	fs    fsutil.FileSystem
	out   io.Writer
}

func (r *reporter) run(ctx context.Context, opts options) error {
	if opts.ID == "" {
		return r.list(ctx, opts)
	}
	sess, err := r.store.GetSession(ctx, opts.ID)
	if err != nil {
		return err
	}
	if opts.Summarise {
		sum, err := report.Summarize(sess, opts.Zones, opts.Timezone)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			return err
		}
	}
	if !opts.PNG && !opts.HTML && !opts.Export {
		return nil
	}
	if err := r.fs.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	base := security.SanitizeFilename(fmt.Sprintf("session_%s_%s", subjectOrAnon(sess), sess.ID))
	if opts.PNG {
		var buf bytes.Buffer
		if err := report.WritePNG(&buf, sess, opts.Zones); err != nil {
			return err
		}
		if err := r.write(opts.OutDir, base+".png", buf.Bytes()); err != nil {
			return err
		}
	}
	if opts.HTML {
		var buf bytes.Buffer
		if err := report.WriteHTML(&buf, sess, opts.Zones, opts.Timezone); err != nil {
			return err
		}
		if err := r.write(opts.OutDir, base+".html", buf.Bytes()); err != nil {
			return err
		}
	}
	if opts.Export {
		w := &export.Writer{FS: r.fs, Dir: opts.OutDir, Format: opts.Format}
		path, err := w.Write(sess)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "wrote %s\n", path)
	}
	return nil
}

func (r *reporter) write(dir, name string, data []byte) error {
	path, err := security.JoinWithin(dir, name)
	if err != nil {
		return err
	}
	if err := r.fs.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(r.out, "wrote %s\n", path)
	return nil
}

func (r *reporter) list(ctx context.Context, opts options) error {
	sums, err := r.store.ListSessions(ctx, opts.Subject, opts.Limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSUBJECT\tSTARTED\tSTATUS\tRECORDS\tVALID")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			s.ID, s.SubjectID, s.StartedAt.UTC().Format(time.RFC3339), s.Status, s.RecordCount, s.ValidCount)
	}
	return tw.Flush()
}

func subjectOrAnon(sess *sampler.Session) string {
	if sess.SubjectID == "" {
		return "anon"
	}
	return sess.SubjectID
}

package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fathima-sithara/tinytalk/internal/media"
	service "github.com/fathima-sithara/tinytalk/internal/services"
)

func newImportCmd(cfgPath *string) *cobra.Command {
	var weekKey string
	cmd := &cobra.Command{
		Use:   "import [files or directories...]",
		Short: "Upload local photos and videos into a week, one at a time",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			ctx := cmd.Context()

			svc, cs, err := buildService(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cs.run(ctx)

			if weekKey == "" {
				weekKey = svc.CurrentWeek()
			}
			files, err := collectMedia(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no photos or videos found")
			}

			reqs := make([]service.UploadRequest, 0, len(files))
			for _, f := range files {
				data, err := os.ReadFile(f)
				if err != nil {
					return fmt.Errorf("read %s: %w", f, err)
				}
				t, _ := service.MediaTypeOf(f)
				reqs = append(reqs, service.UploadRequest{
					Filename:     filepath.Base(f),
					ContentType:  contentTypeFor(f, t),
					DeclaredType: string(t),
					WeekKey:      weekKey,
					Data:         data,
				})
			}

			out := cmd.OutOrStdout()
			res := svc.UploadBatch(ctx, reqs, func(done, total int) {
				fmt.Fprintf(out, "\r%d/%d", done, total)
			})
			fmt.Fprintln(out)
			for _, f := range res.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %v\n", f.Filename, f.Err)
			}
			fmt.Fprintf(out, "imported %d of %d into week %s\n", len(res.Items), len(reqs), weekKey)
			return nil
		},
	}
	cmd.Flags().StringVarP(&weekKey, "week", "w", "", "week key (YYYY-MM-DD); defaults to the current week")
	return cmd
}

// collectMedia expands directories one level deep and keeps photo and video
// files, sorted by name.
func collectMedia(args []string) ([]string, error) {
	var files []string
	for _, a := range args {
		info, err := os.Stat(a)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if service.IsMediaFile(a) {
				files = append(files, a)
			}
			continue
		}
		entries, err := os.ReadDir(a)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && service.IsMediaFile(e.Name()) {
				files = append(files, filepath.Join(a, e.Name()))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// contentTypeFor prefers the system mime table and otherwise names the type
// after the extension, e.g. video/mov.
func contentTypeFor(name string, t media.Type) string {
	ext := filepath.Ext(name)
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return string(t) + "/" + strings.ToLower(strings.TrimPrefix(ext, "."))
}

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/media_sniffer/internal/bridge"
	"github.com/dgnsrekt/media_sniffer/internal/desktop"
	"github.com/dgnsrekt/media_sniffer/internal/popup"
	"github.com/dgnsrekt/media_sniffer/internal/relay"
	"github.com/dgnsrekt/media_sniffer/internal/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

func (a *app) tabsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tabs",
		Short: "List tabs and their media counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			tabs, err := a.daemon().Tabs(ctx)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(tabs)
			}
			if len(tabs) == 0 {
				fmt.Fprintln(a.out, faint.Sprint("no tabs"))
				return nil
			}
			for _, t := range tabs {
				badge := bridge.BadgeText(t.Badge)
				if badge == "" {
					badge = "-"
				}
				fmt.Fprintf(a.out, "%s  %s  %s\n", cyan.Sprint(t.TabID), green.Sprintf("%3s", badge), t.PageURL)
				if t.Title != "" {
					fmt.Fprintf(a.out, "    %s\n", faint.Sprint(t.Title))
				}
			}
			return nil
		},
	}
}

func (a *app) mediaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "media <tab-id>",
		Short: "Show detected media for a tab, best first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			media, err := a.daemon().Media(ctx, types.TabID(args[0]))
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(media)
			}
			fmt.Fprintf(a.out, "%s %s\n", bold.Sprint("page:"), media.PageURL)
			if len(media.MediaInfo) == 0 {
				fmt.Fprintln(a.out, yellow.Sprint(popup.NoMediaGuidance))
				return nil
			}
			for i, c := range media.MediaInfo {
				printCandidate(a, i+1, c)
			}
			return nil
		},
	}
}

func printCandidate(a *app, n int, c types.MediaCandidate) {
	tags := []string{string(c.Type)}
	if c.Platform != "" {
		tags = append(tags, string(c.Platform))
	}
	if c.IsTemporary {
		tags = append(tags, "temporary")
	}
	if c.Size > 0 {
		tags = append(tags, humanSize(c.Size))
	}
	fmt.Fprintf(a.out, "%2d. %s %s\n", n, green.Sprintf("[%s]", strings.Join(tags, ", ")), c.URL)
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func (a *app) analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <tab-id>",
		Short: "Summarize a tab's detected media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			an, err := a.daemon().Analyze(ctx, types.TabID(args[0]))
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(an)
			}
			fmt.Fprintf(a.out, "%s %d\n", bold.Sprint("media:"), an.MediaCount)
			if !an.HasMedia {
				return nil
			}
			fmt.Fprintf(a.out, "%s %s\n", bold.Sprint("types:"), joinStrings(an.MediaTypes))
			if len(an.Platforms) > 0 {
				fmt.Fprintf(a.out, "%s %s\n", bold.Sprint("platforms:"), joinStrings(an.Platforms))
			}
			if an.HasTemporaryURLs {
				fmt.Fprintln(a.out, yellow.Sprint("some URLs are temporary and may expire"))
			}
			return nil
		},
	}
}

func joinStrings[T ~string](vals []T) string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return strings.Join(out, ", ")
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <tab-id>",
		Short: "Forget a tab's detected media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			res, err := a.daemon().Clear(ctx, types.TabID(args[0]))
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(res)
			}
			fmt.Fprintln(a.out, green.Sprint("cleared"))
			return nil
		},
	}
}

func (a *app) streamingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "streaming <url>",
		Short: "Check whether a URL is a recognized watch page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			ok, err := a.daemon().IsStreaming(ctx, args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(bridge.StreamingCheck{IsStreaming: ok})
			}
			if ok {
				fmt.Fprintln(a.out, green.Sprint("streaming page"))
			} else {
				fmt.Fprintln(a.out, "not a streaming page")
			}
			return nil
		},
	}
}

func (a *app) cookiesCmd() *cobra.Command {
	var netscape, essential bool
	cmd := &cobra.Command{
		Use:   "cookies <url>",
		Short: "Export browser cookies for a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			set, err := a.daemon().Cookies(ctx, args[0], essential, netscape)
			if err != nil {
				return err
			}
			switch {
			case netscape:
				_, err = fmt.Fprint(a.out, set.Netscape)
				return err
			case a.jsonOut:
				return a.printJSON(set)
			}
			fmt.Fprintf(a.out, "%s %s\n", bold.Sprint("domains:"), strings.Join(set.Domains, ", "))
			if set.Platform != "" {
				fmt.Fprintf(a.out, "%s %s\n", bold.Sprint("platform:"), set.Platform)
			}
			for _, c := range set.Cookies {
				fmt.Fprintf(a.out, "  %s %s%s\n", cyan.Sprint(c.Name), c.Domain, c.Path)
			}
			fmt.Fprintf(a.out, "%d cookies\n", set.Count)
			return nil
		},
	}
	cmd.Flags().BoolVar(&netscape, "netscape", false, "print a Netscape cookies.txt file")
	cmd.Flags().BoolVar(&essential, "essential", false, "only the platform's session cookies")
	return cmd
}

func (a *app) planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <tab-id>",
		Short: "Show which URL would be sent to the desktop application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			plan, err := a.orchestrator().Plan(ctx, types.TabID(args[0]))
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(plan)
			}
			printPlan(a, plan)
			return nil
		},
	}
}

func printPlan(a *app, plan popup.Plan) {
	fmt.Fprintf(a.out, "%s %s\n", bold.Sprint("page:"), plan.PageURL)
	if plan.Target != "" {
		fmt.Fprintf(a.out, "%s %s %s\n", bold.Sprint("target:"), plan.Target, faint.Sprintf("(%s)", plan.Source))
	}
	if plan.Playlist {
		fmt.Fprintln(a.out, yellow.Sprint("looks like a playlist"))
	}
	if plan.Guidance != "" {
		fmt.Fprintln(a.out, yellow.Sprint(plan.Guidance))
	}
}

// resolveTarget accepts either a URL or a tab ID. For a tab, the popup
// plan decides the URL and the page supplies cookies.
func (a *app) resolveTarget(cmd *cobra.Command, arg, page string) (target, pageURL string, err error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return arg, page, nil
	}
	ctx, cancel := a.context(cmd)
	defer cancel()
	plan, err := a.orchestrator().Plan(ctx, types.TabID(arg))
	if err != nil {
		return "", "", err
	}
	if plan.Target == "" {
		return "", "", errors.New(popup.NoMediaGuidance)
	}
	return plan.Target, plan.PageURL, nil
}

func (a *app) formatsCmd() *cobra.Command {
	var mediaType, page string
	cmd := &cobra.Command{
		Use:   "formats <tab-id|url>",
		Short: "List the formats the desktop application can download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, pageURL, err := a.resolveTarget(cmd, args[0], page)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			res, err := a.orchestrator().Formats(ctx, target, pageURL, mediaType)
			if err != nil {
				a.printDesktopError(err)
				return err
			}
			if a.jsonOut {
				return a.printJSON(res)
			}
			fmt.Fprintf(a.out, "%s %s\n", bold.Sprint("url:"), target)
			for _, f := range res.Formats {
				line := fmt.Sprintf("%-8s %-5s %-12s %s", f.ID, f.Ext, f.Resolution, f.Type)
				if f.Note != "" {
					line += "  " + faint.Sprint(f.Note)
				}
				fmt.Fprintln(a.out, line)
			}
			if res.UsedCookies {
				fmt.Fprintln(a.out, faint.Sprint("browser cookies were used"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mediaType, "type", "video", "media type: video or audio")
	cmd.Flags().StringVar(&page, "page", "", "page URL to read cookies from when passing a media URL")
	return cmd
}

func (a *app) downloadCmd() *cobra.Command {
	var mediaType, formatID, page string
	cmd := &cobra.Command{
		Use:   "download <tab-id|url>",
		Short: "Ask the desktop application to download media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, pageURL, err := a.resolveTarget(cmd, args[0], page)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			res, err := a.orchestrator().Download(ctx, popup.DownloadOptions{
				Target:    target,
				PageURL:   pageURL,
				MediaType: mediaType,
				FormatID:  formatID,
			})
			if err != nil {
				a.printDesktopError(err)
				return err
			}
			if a.jsonOut {
				return a.printJSON(res)
			}
			fmt.Fprintln(a.out, green.Sprint(res.Message))
			return nil
		},
	}
	cmd.Flags().StringVar(&mediaType, "type", "video", "media type: video or audio")
	cmd.Flags().StringVar(&formatID, "format", "highest", "format ID from the formats command")
	cmd.Flags().StringVar(&page, "page", "", "page URL to read cookies from when passing a media URL")
	return cmd
}

// printDesktopError adds the application's guidance below the error line.
func (a *app) printDesktopError(err error) {
	var ce *desktop.CodedError
	if !errors.As(err, &ce) || a.jsonOut {
		return
	}
	if g := desktop.Guidance(ce.Kind); g != "" {
		fmt.Fprintln(a.out, yellow.Sprint(g))
	}
	for _, s := range ce.Suggestions {
		fmt.Fprintf(a.out, "  - %s\n", s)
	}
}

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the daemon and the desktop application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			dh, derr := a.daemon().Health(ctx)
			ah, aerr := a.desktop().Health(ctx)
			if a.jsonOut {
				out := map[string]any{"daemon": dh, "desktop": ah}
				if derr != nil {
					out["daemon_error"] = derr.Error()
				}
				if aerr != nil {
					out["desktop_error"] = aerr.Error()
				}
				if err := a.printJSON(out); err != nil {
					return err
				}
			} else {
				if derr != nil {
					fmt.Fprintf(a.out, "%s %s\n", bold.Sprint("daemon:"), color.RedString(derr.Error()))
				} else {
					status := green.Sprint(dh.Status)
					if dh.Status != "ok" {
						status = yellow.Sprint(dh.Status)
					}
					fmt.Fprintf(a.out, "%s %s (browser connected: %v, tabs: %d, stream clients: %d)\n",
						bold.Sprint("daemon:"), status, dh.BrowserConnected, dh.AttachedTabs, dh.StreamClients)
				}
				if aerr != nil {
					fmt.Fprintf(a.out, "%s %s\n", bold.Sprint("desktop:"), color.RedString("not running at %s", a.desktopURL))
				} else {
					fmt.Fprintf(a.out, "%s %s via %s\n", bold.Sprint("desktop:"), green.Sprint(ah.Status), ah.Endpoint)
				}
			}
			if derr != nil {
				return derr
			}
			return aerr
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var feeds string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live badge updates from the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u := a.wsURL()
			if feeds != "" {
				u += "?feeds=" + feeds
			}
			return relay.Watch(cmd.Context(), u, func(evt relay.Event) {
				if a.jsonOut {
					_ = a.printJSON(evt)
					return
				}
				ts := time.Now().Format("15:04:05")
				fmt.Fprintf(a.out, "%s %s %s %s\n", faint.Sprint(ts), cyan.Sprint(evt.Feed), evt.Key, string(evt.Payload))
			})
		},
	}
	cmd.Flags().StringVar(&feeds, "feeds", bridge.FeedBadge, "comma separated feeds to follow")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/allaspectsdev/provswitch/internal/daemon"
	"github.com/allaspectsdev/provswitch/internal/endpoint"
	"github.com/allaspectsdev/provswitch/internal/provider"
)

func cmdSpeedTest(args []string) {
	a := parseArgs(args)
	l := openLocal(a)
	defer l.Close()
	ctx := context.Background()

	p := mustFind(ctx, l.st, a.arg(0))
	sess, err := l.svc.Sessions.Open(ctx, p.ID)
	if err != nil {
		fatalf("error opening session: %v", err)
	}
	defer l.svc.Sessions.Close(sess.ID())

	before := sess.Selected()
	fmt.Fprintf(stdout, "Probing %d endpoint(s) for %s (timeout %s)...\n",
		len(sess.Candidates()), p.Name, daemon.Timeouts(l.cfg.SpeedTest).For(p.App))
	ranked, err := sess.RunSpeedTest(ctx)
	if err != nil {
		fatalf("error running speed test: %v", err)
	}
	printRanked(stdout, ranked, sess.Selected())

	if !a.has("apply") {
		if sess.Selected() != before {
			fmt.Fprintf(stdout, "\nFastest endpoint is %s; rerun with --apply to save it.\n", sess.Selected())
		}
		return
	}
	// Auto-select may be disabled in config; --apply always takes the fastest.
	if len(ranked) > 0 && ranked[0].OK() && ranked[0].URL != sess.Selected() {
		if err := sess.SetBaseURL(ranked[0].URL); err != nil {
			fatalf("error selecting endpoint: %v", err)
		}
	}
	if sess.Selected() == before {
		fmt.Fprintln(stdout, "\nSelected endpoint unchanged")
		return
	}
	if err := sess.Commit(ctx); err != nil {
		fatalf("error saving selection: %v", err)
	}
	fmt.Fprintf(stdout, "\nBase URL set to %s\n", sess.Selected())
}

func cmdEndpoints(args []string) {
	a := parseArgs(args)
	sub := a.arg(1)
	if sub == "" {
		sub = "list"
	}

	l := openLocal(a)
	defer l.Close()
	ctx := context.Background()
	p := mustFind(ctx, l.st, a.arg(0))

	if sub == "list" {
		eps, err := l.st.ListEndpoints(ctx, p.ID)
		if err != nil {
			fatalf("error listing endpoints: %v", err)
		}
		if len(eps) == 0 {
			fmt.Fprintf(stdout, "No custom endpoints for %s\n", p.Name)
			return
		}
		printEndpoints(stdout, eps)
		return
	}

	url := a.arg(2)
	if url == "" {
		fatalf("usage: provswitch endpoints <ref> %s <url>", sub)
	}
	sess, err := l.svc.Sessions.Open(ctx, p.ID)
	if err != nil {
		fatalf("error opening session: %v", err)
	}
	defer l.svc.Sessions.Close(sess.ID())

	switch sub {
	case "add":
		c, err := sess.AddCandidate(url)
		if err != nil {
			fatalf("error adding endpoint: %v", err)
		}
		url = c.URL
	case "remove":
		removed, err := sess.RemoveCandidate(url)
		if err != nil {
			fatalf("error removing endpoint: %v", err)
		}
		if !removed {
			fatalf("%s is not an endpoint of %s", endpoint.Normalize(url), p.Name)
		}
	default:
		fatalf("unknown endpoints command: %s (want list|add|remove)", sub)
	}
	if err := sess.Commit(ctx); err != nil {
		fatalf("error saving endpoints: %v", err)
	}
	fmt.Fprintf(stdout, "Endpoint %s: %s\n", sub, endpoint.Normalize(url))
}

func cmdSwitch(args []string) {
	a := parseArgs(args)
	l := openLocal(a)
	defer l.Close()
	ctx := context.Background()

	p := mustFind(ctx, l.st, a.arg(0))
	res, err := l.svc.Switcher.Switch(ctx, p.ID)
	if err != nil {
		fatalf("error switching provider: %v", err)
	}
	fmt.Fprintf(stdout, "Switched %s to %s\n", p.App, p.Name)
	for _, path := range res.Paths {
		fmt.Fprintf(stdout, "  wrote %s\n", path)
	}
}

func cmdTemplates(args []string) {
	a := parseArgs(args)
	l := openLocal(a)
	defer l.Close()

	apps := provider.Apps
	if s := a.get("app"); s != "" {
		app, err := provider.ParseApp(s)
		if err != nil {
			fatalf("%v", err)
		}
		apps = []provider.App{app}
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAPP\tNAME\tENDPOINTS")
	for _, app := range apps {
		for _, t := range l.svc.Catalog.Templates(app) {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", t.ID, t.App, t.Name, len(t.Endpoints))
		}
	}
	tw.Flush()
}

// printRanked writes one row per probe result, marking the selected URL.
func printRanked(w io.Writer, ranked []endpoint.ProbeResult, selected string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, " \tURL\tLATENCY\tSTATUS")
	for _, r := range ranked {
		mark := " "
		if r.URL == selected {
			mark = "*"
		}
		latency, status := "-", ""
		if r.OK() {
			latency = (time.Duration(*r.LatencyMs) * time.Millisecond).String()
		}
		switch {
		case r.Error != "":
			status = r.Error
		case r.HTTPStatus != 0:
			status = fmt.Sprintf("HTTP %d", r.HTTPStatus)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, r.URL, latency, status)
	}
	tw.Flush()
}

func printEndpoints(w io.Writer, eps []endpoint.CustomEndpoint) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\tADDED\tLAST USED")
	for _, e := range eps {
		last := "never"
		if e.LastUsed != nil {
			last = e.LastUsed.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.URL, e.AddedAt.Local().Format(time.DateTime), last)
	}
	tw.Flush()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/allaspectsdev/provswitch/internal/bridge"
	"github.com/allaspectsdev/provswitch/internal/catalog"
	"github.com/allaspectsdev/provswitch/internal/provider"
	"github.com/allaspectsdev/provswitch/internal/session"
	"github.com/allaspectsdev/provswitch/internal/store"
	"github.com/allaspectsdev/provswitch/internal/vault"
)

func cmdProviders(args []string) {
	a := parseArgs(args)
	sub := a.arg(0)
	if sub == "" {
		sub = "list"
	}

	l := openLocal(a)
	defer l.Close()
	ctx := context.Background()

	switch sub {
	case "list":
		var app provider.App
		if s := a.get("app"); s != "" {
			parsed, err := provider.ParseApp(s)
			if err != nil {
				fatalf("%v", err)
			}
			app = parsed
		}
		list, err := l.st.ListProviders(ctx, app)
		if err != nil {
			fatalf("error listing providers: %v", err)
		}
		if len(list) == 0 {
			fmt.Fprintln(stdout, "No providers saved")
			return
		}
		printProviders(stdout, list)

	case "add":
		p, err := addProvider(ctx, l.svc.Sessions, l.svc.Catalog, a)
		if err != nil {
			fatalf("error adding provider: %v", err)
		}
		fmt.Fprintf(stdout, "Provider %s (%s) saved with ID %s\n", p.Name, p.App, p.ID)

	case "show":
		p := mustFind(ctx, l.st, a.arg(1))
		eps, err := l.st.ListEndpoints(ctx, p.ID)
		if err != nil {
			fatalf("error listing endpoints: %v", err)
		}
		f, _ := p.Fields()
		fmt.Fprintf(stdout, "ID:        %s\n", p.ID)
		fmt.Fprintf(stdout, "Name:      %s\n", p.Name)
		fmt.Fprintf(stdout, "App:       %s (%s)\n", p.App, p.Format)
		if p.TemplateID != "" {
			fmt.Fprintf(stdout, "Template:  %s\n", p.TemplateID)
		}
		fmt.Fprintf(stdout, "Current:   %v\n", p.Current)
		fmt.Fprintf(stdout, "Base URL:  %s\n", f.BaseURL)
		fmt.Fprintf(stdout, "API key:   %s\n", maskKey(f.APIKey))
		for slot, model := range f.Models {
			fmt.Fprintf(stdout, "Model:     %s = %s\n", slot, model)
		}
		fmt.Fprintf(stdout, "Endpoints: %d custom\n", len(eps))
		for _, e := range eps {
			fmt.Fprintf(stdout, "  %s\n", e.URL)
		}

	case "rename":
		p := mustFind(ctx, l.st, a.arg(1))
		name := a.arg(2)
		if name == "" {
			fatalf("usage: provswitch providers rename <ref> <new-name>")
		}
		if err := l.st.RenameProvider(ctx, p.ID, name); err != nil {
			fatalf("error renaming provider: %v", err)
		}
		fmt.Fprintf(stdout, "Provider %s renamed to %s\n", p.ID, name)

	case "delete":
		p := mustFind(ctx, l.st, a.arg(1))
		if err := l.st.DeleteProvider(ctx, p.ID); err != nil {
			fatalf("error deleting provider: %v", err)
		}
		fmt.Fprintf(stdout, "Provider %s deleted\n", p.Name)

	default:
		fatalf("unknown providers command: %s (want list|add|show|rename|delete)", sub)
	}
}

// addProvider creates a provider through a draft session so the same field
// writes as the API apply. Flags: --app, --name, --template, --base-url,
// --key, --key-ref, --model.
func addProvider(ctx context.Context, mgr *session.Manager, cat *catalog.Catalog, a cliArgs) (*provider.Provider, error) {
	var p provider.Provider
	if id := a.get("template"); id != "" {
		tmpl, ok := cat.Template(id)
		if !ok {
			return nil, fmt.Errorf("unknown template %q", id)
		}
		seeded, err := tmpl.NewProvider(a.get("name"))
		if err != nil {
			return nil, err
		}
		p = seeded
	} else {
		app, err := provider.ParseApp(a.get("app"))
		if err != nil {
			return nil, err
		}
		if a.get("name") == "" {
			return nil, errors.New("--name is required without --template")
		}
		p = provider.Provider{App: app, Name: a.get("name")}
	}

	sess, err := mgr.OpenNew(p)
	if err != nil {
		return nil, err
	}
	defer mgr.Close(sess.ID())

	if u := a.get("base-url"); u != "" {
		if err := sess.SetBaseURL(u); err != nil {
			return nil, err
		}
	}
	key := a.get("key")
	if ref := a.get("key-ref"); ref != "" {
		key = vault.Ref(ref)
	}
	if key != "" {
		if err := sess.SetAPIKey(key); err != nil {
			return nil, err
		}
	}
	if m := a.get("model"); m != "" {
		if err := sess.SetModel(bridge.SlotMain, m); err != nil {
			return nil, err
		}
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, err
	}

	snap := sess.Snapshot()
	p.ID, p.Blob, p.Format = snap.ProviderID, snap.Blob, snap.Format
	return &p, nil
}

func mustFind(ctx context.Context, st *store.Store, ref string) *provider.Provider {
	if ref == "" {
		fatalf("a provider ID or name is required")
	}
	p, err := st.FindProvider(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		fatalf("no provider %q", ref)
	}
	if err != nil {
		fatalf("error finding provider: %v", err)
	}
	return p
}

func printProviders(w io.Writer, list []*provider.Provider) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAPP\tNAME\tCURRENT\tBASE URL")
	for _, p := range list {
		f, _ := p.Fields()
		cur := ""
		if p.Current {
			cur = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.App, p.Name, cur, f.BaseURL)
	}
	tw.Flush()
}

// maskKey keeps key references readable and hides literal secrets.
func maskKey(key string) string {
	switch {
	case key == "":
		return "(none)"
	case vault.IsKeyRef(key):
		return key
	case len(key) <= 8:
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

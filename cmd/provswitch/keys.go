package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/allaspectsdev/provswitch/internal/vault"
)

func cmdKeys(args []string) {
	a := parseArgs(args)
	if a.arg(0) == "" {
		fmt.Println("Usage: provswitch keys <list|set|delete|ref> [name]")
		os.Exit(1)
	}

	switch a.arg(0) {
	case "list":
		l := openLocal(a)
		defer l.Close()
		names := referencedKeys(context.Background(), l)
		if len(names) == 0 {
			fmt.Fprintln(stdout, "No providers reference a stored key")
			return
		}
		found := l.svc.Vault.Available(names)
		for _, n := range names {
			state := "missing"
			if slices.Contains(found, n) {
				state = "****"
			}
			fmt.Fprintf(stdout, "  %s: %s\n", n, state)
		}

	case "set":
		name := keyName(a)
		fmt.Printf("Enter API key for %s: ", name)
		key, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fatalf("error reading key: %v", err)
		}
		if err := vault.New().Set(name, strings.TrimSpace(string(key))); err != nil {
			fatalf("error storing key: %v", err)
		}
		fmt.Printf("Key for %s stored. Reference it as %s\n", name, vault.Ref(name))

	case "delete":
		name := keyName(a)
		if err := vault.New().Delete(name); err != nil {
			fatalf("error deleting key: %v", err)
		}
		fmt.Printf("Key for %s deleted\n", name)

	case "ref":
		fmt.Println(vault.Ref(keyName(a)))

	default:
		fatalf("unknown keys command: %s", a.arg(0))
	}
}

func keyName(a cliArgs) string {
	name := strings.ToLower(a.arg(1))
	if name == "" {
		fatalf("Usage: provswitch keys %s <name>", a.arg(0))
	}
	return name
}

// referencedKeys returns the sorted keychain names used by saved providers.
func referencedKeys(ctx context.Context, l *local) []string {
	list, err := l.st.ListProviders(ctx, "")
	if err != nil {
		fatalf("error listing providers: %v", err)
	}
	var names []string
	for _, p := range list {
		f, err := p.Fields()
		if err != nil {
			continue
		}
		if n, ok := vault.KeyName(f.APIKey); ok && !slices.Contains(names, n) {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}

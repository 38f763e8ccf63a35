package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/streamzone/sz/internal/api"
	"github.com/streamzone/sz/internal/serverdb"
)

const adminUsage = `Usage: sz-cloud admin <command> [flags]

Commands:
  create-project  Create a project
  list-projects   List live projects
  delete-project  Soft-delete a project
  create-key      Create an API key for a project
  list-keys       List a project's API keys
  revoke-key      Revoke an API key`

func runAdmin(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(adminUsage)
	}

	switch args[0] {
	case "create-project":
		return runCreateProject(args[1:], out)
	case "list-projects":
		return runListProjects(args[1:], out)
	case "delete-project":
		return runDeleteProject(args[1:], out)
	case "create-key":
		return runCreateKey(args[1:], out)
	case "list-keys":
		return runListKeys(args[1:], out)
	case "revoke-key":
		return runRevokeKey(args[1:], out)
	}
	return fmt.Errorf("unknown admin command: %s\n\n%s", args[0], adminUsage)
}

// adminFlags adds the flags every admin command shares
func adminFlags(name string) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet("admin "+name, flag.ContinueOnError)
	dsn := fs.String("db", "", "sqlite path or postgres:// DSN (default: from config)")
	cfgFile := fs.String("config", "", "config file (default: $SZ_CLOUD_CONFIG)")
	return fs, dsn, cfgFile
}

func openDB(dsn, cfgFile string) (*serverdb.ServerDB, error) {
	if dsn == "" {
		cfg, err := api.LoadConfig(cfgFile)
		if err != nil {
			return nil, err
		}
		dsn = cfg.DatabaseDSN
	}
	store, err := serverdb.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}

func runCreateProject(args []string, out io.Writer) error {
	fs, dsn, cfgFile := adminFlags("create-project")
	id := fs.String("id", "", "project id (default: generated)")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openDB(*dsn, *cfgFile)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := store.CreateProject(*id, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created project %s (%s)\n", p.ID, p.Name)
	return nil
}

func runListProjects(args []string, out io.Writer) error {
	fs, dsn, cfgFile := adminFlags("list-projects")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openDB(*dsn, *cfgFile)
	if err != nil {
		return err
	}
	defer store.Close()

	projects, err := store.ListProjects()
	if err != nil {
		return err
	}
	for _, p := range projects {
		fmt.Fprintf(out, "%s\t%s\t%s\n", p.ID, p.Name, p.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func runDeleteProject(args []string, out io.Writer) error {
	fs, dsn, cfgFile := adminFlags("delete-project")
	id := fs.String("id", "", "project id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("--id is required")
	}

	store, err := openDB(*dsn, *cfgFile)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SoftDeleteProject(*id); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted project %s\n", *id)
	return nil
}

func runCreateKey(args []string, out io.Writer) error {
	fs, dsn, cfgFile := adminFlags("create-key")
	project := fs.String("project", "", "project id")
	name := fs.String("name", "", "key name (e.g. desktop)")
	scopes := fs.String("scopes", serverdb.DefaultScopes, "comma-separated scopes: read, write, admin")
	expires := fs.Duration("expires", 0, "lifetime, e.g. 720h (default: never)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *project == "" {
		return errors.New("--project is required")
	}
	if *name == "" {
		return errors.New("--name is required")
	}

	store, err := openDB(*dsn, *cfgFile)
	if err != nil {
		return err
	}
	defer store.Close()

	var expiresAt *time.Time
	if *expires > 0 {
		t := time.Now().Add(*expires)
		expiresAt = &t
	}

	plaintext, ak, err := store.GenerateAPIKey(*project, *name, *scopes, expiresAt)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "created API key for project %s\n", ak.ProjectID)
	fmt.Fprintf(out, "  id:     %s\n", ak.ID)
	fmt.Fprintf(out, "  name:   %s\n", ak.Name)
	fmt.Fprintf(out, "  scopes: %s\n", ak.Scopes)
	if ak.ExpiresAt != nil {
		fmt.Fprintf(out, "  expires: %s\n", ak.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "  key:    %s\n", plaintext)
	fmt.Fprintln(out, "\nSave this key now. It will not be shown again.")
	return nil
}

func runListKeys(args []string, out io.Writer) error {
	fs, dsn, cfgFile := adminFlags("list-keys")
	project := fs.String("project", "", "project id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *project == "" {
		return errors.New("--project is required")
	}

	store, err := openDB(*dsn, *cfgFile)
	if err != nil {
		return err
	}
	defer store.Close()

	keys, err := store.ListAPIKeys(*project)
	if err != nil {
		return err
	}
	for _, k := range keys {
		lastUsed := "never"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(out, "%s\t%s...\t%s\t%s\tlast used %s\n",
			k.ID, k.KeyPrefix, k.Name, strings.ReplaceAll(k.Scopes, ",", " "), lastUsed)
	}
	return nil
}

func runRevokeKey(args []string, out io.Writer) error {
	fs, dsn, cfgFile := adminFlags("revoke-key")
	id := fs.String("id", "", "key id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("--id is required")
	}

	store, err := openDB(*dsn, *cfgFile)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RevokeAPIKey(*id); err != nil {
		if errors.Is(err, serverdb.ErrNotFound) {
			return fmt.Errorf("key not found: %s", *id)
		}
		return err
	}
	fmt.Fprintf(out, "revoked key %s\n", *id)
	return nil
}

// keyctl manages API keys for the shortlinks service from the local
// admin channel.
//
// Usage:
//
//	keyctl create -name "deploy bot" [-expires-days 90]
//	keyctl list [-all]
//	keyctl info <key_id>
//	keyctl update <key_id> [-name "new name"] [-expires-days 180]
//	keyctl revoke <key_id>
//	keyctl delete <key_id> -confirm
//	keyctl cleanup
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Sube3494/shortlinks/config"
	"github.com/Sube3494/shortlinks/internal/database"
	"github.com/Sube3494/shortlinks/internal/model"
	"github.com/Sube3494/shortlinks/internal/repository"
	"github.com/Sube3494/shortlinks/internal/service"
)

const usage = "expected one of: create, list, info, update, revoke, delete, cleanup"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	// Keep component logs quiet; keyctl prints its own output.
	logger := zap.NewNop()
	zap.ReplaceGlobals(logger)

	secrets, err := config.LoadConfig()
	if err != nil {
		fatalf("error loading configuration: %v", err)
	}

	pgClient, err := database.NewPostgresClient(secrets)
	if err != nil {
		fatalf("failed to connect to database: %v", err)
	}
	defer pgClient.Close()

	ctx := context.Background()
	if err := database.InitSchema(ctx, pgClient); err != nil {
		fatalf("schema initialization failed: %v", err)
	}

	keyRepo := repository.NewPostgresKeyRepository(pgClient)
	linkRepo := repository.NewPostgresLinkRepository(pgClient, nil)
	keys := service.NewKeyService(keyRepo, linkRepo)

	switch os.Args[1] {
	case "create":
		runCreate(ctx, keys, os.Args[2:])
	case "list":
		runList(ctx, keys, os.Args[2:])
	case "info":
		runInfo(ctx, keys, os.Args[2:])
	case "update":
		runUpdate(ctx, keys, os.Args[2:])
	case "revoke":
		runRevoke(ctx, keys, os.Args[2:])
	case "delete":
		runDelete(ctx, keys, os.Args[2:])
	case "cleanup":
		runCleanup(ctx, keys)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
}

func runCreate(ctx context.Context, keys *service.KeyService, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "key name/label (required)")
	expiresDays := fs.Int("expires-days", 0, "days until expiry (0 = never expires)")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "create: -name is required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	key, err := keys.Create(ctx, *name, expiresDays)
	if err != nil {
		fatalf("create failed: %v", err)
	}

	fmt.Println("API key created.")
	fmt.Println()
	fmt.Printf("ID:         %d\n", key.ID)
	fmt.Printf("Name:       %s\n", key.Name)
	fmt.Printf("Secret:     %s\n", key.Secret)
	fmt.Printf("Created:    %s\n", key.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Expires:    %s\n", formatExpires(key.ExpiresAt))
	fmt.Println()
	fmt.Println("Store this secret now. It will not be shown again.")
}

func runList(ctx context.Context, keys *service.KeyService, args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	all := fs.Bool("all", false, "include revoked keys")
	fs.Parse(args)

	list, err := keys.List(ctx, *all)
	if err != nil {
		fatalf("list failed: %v", err)
	}

	if len(list) == 0 {
		fmt.Println("no API keys found")
		return
	}

	fmt.Printf("%-5s %-20s %-16s %-9s %-22s %-14s %s\n",
		"ID", "NAME", "PREFIX", "STATUS", "EXPIRES", "LAST USED", "USES")
	for i := range list {
		key := &list[i]
		fmt.Printf("%-5d %-20s %-16s %-9s %-22s %-14s %d\n",
			key.ID,
			truncate(key.Name, 20),
			key.SecretPrefix(),
			keyStatus(key),
			formatExpires(key.ExpiresAt),
			formatRelative(key.LastUsedAt),
			key.UseCount,
		)
	}
}

func runInfo(ctx context.Context, keys *service.KeyService, args []string) {
	id := parseKeyID(args)

	key, err := keys.Get(ctx, id)
	if err != nil {
		fatalf("info failed: %v", err)
	}

	fmt.Printf("ID:         %d\n", key.ID)
	fmt.Printf("Name:       %s\n", key.Name)
	fmt.Printf("Secret:     %s (prefix only)\n", key.SecretPrefix())
	fmt.Printf("Status:     %s\n", keyStatus(key))
	fmt.Printf("Created:    %s\n", key.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Expires:    %s\n", formatExpires(key.ExpiresAt))
	fmt.Printf("Last used:  %s\n", formatRelative(key.LastUsedAt))
	fmt.Printf("Use count:  %d\n", key.UseCount)
}

func runUpdate(ctx context.Context, keys *service.KeyService, args []string) {
	id := parseKeyID(args)

	fs := flag.NewFlagSet("update", flag.ExitOnError)
	name := fs.String("name", "", "new name")
	expiresDays := fs.Int("expires-days", -1, "new expiry in days (0 = never expires)")
	fs.Parse(args[1:])

	var namePtr *string
	if *name != "" {
		namePtr = name
	}
	var daysPtr *int
	if *expiresDays >= 0 {
		daysPtr = expiresDays
	}
	if namePtr == nil && daysPtr == nil {
		fmt.Fprintln(os.Stderr, "update: nothing to change, pass -name and/or -expires-days")
		os.Exit(1)
	}

	key, err := keys.Update(ctx, id, namePtr, daysPtr)
	if err != nil {
		fatalf("update failed: %v", err)
	}

	fmt.Printf("key %d updated: name=%q expires=%s\n", key.ID, key.Name, formatExpires(key.ExpiresAt))
}

func runRevoke(ctx context.Context, keys *service.KeyService, args []string) {
	id := parseKeyID(args)

	if err := keys.Revoke(ctx, id); err != nil {
		fatalf("revoke failed: %v", err)
	}
	fmt.Printf("key %d revoked; it can no longer authenticate\n", id)
}

func runDelete(ctx context.Context, keys *service.KeyService, args []string) {
	id := parseKeyID(args)

	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	confirm := fs.Bool("confirm", false, "confirm the irreversible delete")
	fs.Parse(args[1:])

	if err := keys.Delete(ctx, id, *confirm); err != nil {
		if errors.Is(err, service.ErrConfirmationRequired) {
			fmt.Fprintln(os.Stderr, "delete is irreversible; re-run with -confirm")
			os.Exit(1)
		}
		fatalf("delete failed: %v", err)
	}
	fmt.Printf("key %d permanently deleted\n", id)
}

func runCleanup(ctx context.Context, keys *service.KeyService) {
	revoked, linksDeleted, err := keys.CleanupExpired(ctx)
	if err != nil {
		fatalf("cleanup failed: %v", err)
	}
	fmt.Printf("cleanup done: %d expired keys revoked, %d links removed\n", revoked, linksDeleted)
}

func parseKeyID(args []string) int64 {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "missing <key_id> argument")
		os.Exit(1)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fatalf("invalid key id %q", args[0])
	}
	return id
}

func keyStatus(key *model.APIKey) string {
	switch {
	case key.Revoked:
		return "revoked"
	case key.Expired(time.Now()):
		return "expired"
	default:
		return "active"
	}
}

func formatExpires(t *time.Time) string {
	if t == nil {
		return "never"
	}
	if !t.After(time.Now()) {
		return "expired " + t.Format("2006-01-02")
	}
	return t.Format("2006-01-02")
}

func formatRelative(t *time.Time) string {
	if t == nil {
		return "never"
	}

	diff := time.Since(*t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02 15:04")
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

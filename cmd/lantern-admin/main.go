// ABOUTME: Admin CLI for lantern principal, grant, and device management
// ABOUTME: Operates directly on the database; local access implies admin

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/lantern-id/lantern/internal/auth"
	"github.com/lantern-id/lantern/internal/config"
	"github.com/lantern-id/lantern/internal/principal"
	"github.com/lantern-id/lantern/internal/privilege"
	"github.com/lantern-id/lantern/internal/store"
)

const banner = `
 _             _
| | __ _ _ __ | |_ ___ _ __ _ __
| |/ _' | '_ \| __/ _ \ '__| '_ \
| | (_| | | | | ||  __/ |  | | | |
|_|\__,_|_| |_|\__\___|_|  |_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "principals":
		err = cmdPrincipals(args)
	case "identities":
		err = cmdIdentities(args)
	case "grants":
		err = cmdGrants(args)
	case "groups":
		err = cmdGroups(args)
	case "devices":
		err = cmdDevices(args)
	case "challenges":
		err = cmdChallenges(args)
	case "password":
		err = cmdPassword(args)
	case "token":
		err = cmdToken(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: lantern-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  principals                       List all principals")
	fmt.Println("  principals list [--type <t>]     List principals, optionally by type")
	fmt.Println("  principals create                Create a principal with an identity")
	fmt.Println("  principals show <id>             Show a principal with its identities")
	fmt.Println("  principals delete <id>           Delete a principal (cascades)")
	fmt.Println("  identities add                   Attach an identity to a principal")
	fmt.Println("  identities verify <uri>          Mark an identity verified")
	fmt.Println("  grants add                       Grant a privilege to a principal")
	fmt.Println("  grants remove                    Revoke a privilege")
	fmt.Println("  grants list <principal-id>       List direct grants")
	fmt.Println("  grants check                     Evaluate an effective privilege")
	fmt.Println("  groups add <group> <member>      Add a principal to a group")
	fmt.Println("  groups remove <group> <member>   Remove a principal from a group")
	fmt.Println("  devices list <principal-id>      List WebAuthn devices")
	fmt.Println("  devices delete <device-id>       Remove a WebAuthn device")
	fmt.Println("  challenges prune                 Delete expired ceremony challenges")
	fmt.Println("  password set <principal-id>      Set a principal's password")
	fmt.Println("  token create                     Issue a JWT for a principal")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  LANTERN_CONFIG     Config file path (default: ~/.config/lantern/config.yaml)")
	fmt.Println("  LANTERN_DB_PATH    Database path (overrides config)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  lantern-admin principals create --type user --nickname alice --identity mailto:alice@example.org")
	fmt.Println("  lantern-admin grants add --principal <id> --privilege admin")
	fmt.Println("  lantern-admin token create --principal <id> --ttl 720h")
	fmt.Println()
}

// openStore locates the database and opens it.
func openStore() (*store.SQLiteStore, *config.Config, error) {
	var cfg *config.Config

	cfgPath := os.Getenv("LANTERN_CONFIG")
	if cfgPath == "" {
		if dir := configDir(); dir != "" {
			candidate := filepath.Join(dir, "lantern", "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				cfgPath = candidate
			}
		}
	}
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}

	dbPath := os.Getenv("LANTERN_DB_PATH")
	if dbPath == "" && cfg != nil {
		dbPath = cfg.Database.Path
	}
	if dbPath == "" {
		dir := configDir()
		if dir == "" {
			return nil, nil, fmt.Errorf("could not determine database path; set LANTERN_DB_PATH")
		}
		dbPath = filepath.Join(dir, "lantern", "lantern.db")
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return s, cfg, nil
}

func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config")
}

// localAdmin is the caller identity for CLI operations. Anyone who can
// open the database file already holds full control over it.
func localAdmin() *auth.Context {
	return &auth.Context{
		PrincipalID:   "local-admin",
		PrincipalType: store.PrincipalTypeUser,
		Privileges:    []string{privilege.Admin},
	}
}

// cmdPrincipals handles principal subcommands
func cmdPrincipals(args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdPrincipalsList(args)
	case "create", "add":
		return cmdPrincipalsCreate(args)
	case "show", "get":
		return cmdPrincipalsShow(args)
	case "delete", "rm", "remove":
		return cmdPrincipalsDelete(args)
	default:
		return fmt.Errorf("unknown principals subcommand: %s (use list, create, show, delete)", subcmd)
	}
}

func cmdPrincipalsList(args []string) error {
	var typeFilter string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--type", "-t":
			if i+1 < len(args) {
				typeFilter = args[i+1]
				i++
			}
		}
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	svc := principal.NewService(s)
	ctx := context.Background()

	var pType *store.PrincipalType
	if typeFilter != "" {
		t := store.PrincipalType(typeFilter)
		pType = &t
	}

	principals, err := svc.FindAll(ctx, pType)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Principals")
	cyan.Println("  ----------")

	if len(principals) == 0 {
		fmt.Println("  (no principals)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTYPE\tNICKNAME\tACTIVE\tCREATED")
	fmt.Fprintln(w, "  --\t----\t--------\t------\t-------")

	for _, p := range principals {
		active := "yes"
		if !p.Active {
			active = "no"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			truncate(p.ID, 36), p.Type, truncate(p.Nickname, 24), active,
			p.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdPrincipalsCreate(args []string) error {
	var pType, nickname, identity string
	verified := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--type", "-t":
			if i+1 < len(args) {
				pType = args[i+1]
				i++
			}
		case "--nickname", "-n":
			if i+1 < len(args) {
				nickname = args[i+1]
				i++
			}
		case "--identity", "-i":
			if i+1 < len(args) {
				identity = args[i+1]
				i++
			}
		case "--verified":
			verified = true
		}
	}

	if pType == "" || nickname == "" {
		return fmt.Errorf("usage: principals create --type <user|app|group> --nickname <name> [--identity <uri>] [--verified]")
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	svc := principal.NewService(s)
	p, err := svc.CreateWithIdentity(context.Background(), localAdmin(), &principal.Draft{
		Type:     store.PrincipalType(pType),
		Nickname: nickname,
		Active:   true,
	}, identity, verified)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Created principal: %s\n", p.ID)
	fmt.Printf("  Type:     %s\n", p.Type)
	fmt.Printf("  Nickname: %s\n", p.Nickname)

	return nil
}

func cmdPrincipalsShow(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: principals show <principal-id>")
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	svc := principal.NewService(s)
	ids := principal.NewIdentityService(s)

	p, err := svc.FindByID(ctx, args[0])
	if err != nil {
		return err
	}
	identities, err := ids.List(ctx, p.ID)
	if err != nil {
		return err
	}
	grants, err := s.ListGrants(ctx, p.ID)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Principal")
	cyan.Println("  ---------")
	fmt.Printf("  ID:       %s\n", p.ID)
	fmt.Printf("  Type:     %s\n", p.Type)
	fmt.Printf("  Nickname: %s\n", p.Nickname)
	fmt.Printf("  Active:   %t\n", p.Active)
	fmt.Printf("  Created:  %s\n", p.CreatedAt.Format(time.RFC3339))

	fmt.Println()
	cyan.Println("  Identities")
	cyan.Println("  ----------")
	if len(identities) == 0 {
		fmt.Println("  (none)")
	}
	for _, ident := range identities {
		marker := " "
		if ident.IsPrimary {
			marker = "*"
		}
		verified := ""
		if ident.VerifiedAt != nil {
			verified = " (verified)"
		}
		fmt.Printf("  %s %s%s\n", marker, ident.URI, verified)
	}

	fmt.Println()
	cyan.Println("  Grants")
	cyan.Println("  ------")
	if len(grants) == 0 {
		fmt.Println("  (none)")
	}
	for _, g := range grants {
		scope := ""
		if g.ScopeTarget != "" {
			scope = " on " + g.ScopeTarget
		}
		fmt.Printf("  %s%s\n", g.Privilege, scope)
	}
	fmt.Println()

	return nil
}

func cmdPrincipalsDelete(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: principals delete <principal-id>")
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	svc := principal.NewService(s)
	if err := svc.Delete(context.Background(), localAdmin(), args[0]); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Deleted principal: %s\n", args[0])
	return nil
}

// cmdIdentities handles identity subcommands
func cmdIdentities(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: identities <add|verify> ...")
	}
	subcmd := args[0]
	args = args[1:]

	switch subcmd {
	case "add", "create":
		return cmdIdentitiesAdd(args)
	case "verify":
		return cmdIdentitiesVerify(args)
	default:
		return fmt.Errorf("unknown identities subcommand: %s (use add, verify)", subcmd)
	}
}

func cmdIdentitiesAdd(args []string) error {
	var principalID, uri, label string
	primary := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--principal", "-p":
			if i+1 < len(args) {
				principalID = args[i+1]
				i++
			}
		case "--uri", "-u":
			if i+1 < len(args) {
				uri = args[i+1]
				i++
			}
		case "--label", "-l":
			if i+1 < len(args) {
				label = args[i+1]
				i++
			}
		case "--primary":
			primary = true
		}
	}

	if principalID == "" || uri == "" {
		return fmt.Errorf("usage: identities add --principal <id> --uri <uri> [--label <text>] [--primary]")
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ids := principal.NewIdentityService(s)
	ident, err := ids.Create(context.Background(), localAdmin(), principal.CreateIdentityParams{
		PrincipalID: principalID,
		URI:         uri,
		IsPrimary:   primary,
		Label:       label,
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Attached identity: %s\n", ident.URI)
	return nil
}

func cmdIdentitiesVerify(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: identities verify <uri>")
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ids := principal.NewIdentityService(s)
	if err := ids.MarkVerified(context.Background(), args[0]); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Verified identity: %s\n", args[0])
	return nil
}

// cmdGrants handles grant subcommands
func cmdGrants(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: grants <add|remove|list|check> ...")
	}
	subcmd := args[0]
	args = args[1:]

	switch subcmd {
	case "add", "create":
		return cmdGrantsAdd(args)
	case "remove", "rm", "delete":
		return cmdGrantsRemove(args)
	case "list", "ls":
		return cmdGrantsList(args)
	case "check":
		return cmdGrantsCheck(args)
	default:
		return fmt.Errorf("unknown grants subcommand: %s (use add, remove, list, check)", subcmd)
	}
}

func parseGrantArgs(args []string) (principalID, priv, scope string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--principal", "-p":
			if i+1 < len(args) {
				principalID = args[i+1]
				i++
			}
		case "--privilege", "-r":
			if i+1 < len(args) {
				priv = args[i+1]
				i++
			}
		case "--scope", "-s":
			if i+1 < len(args) {
				scope = args[i+1]
				i++
			}
		}
	}
	return principalID, priv, scope
}

func cmdGrantsAdd(args []string) error {
	principalID, priv, scope := parseGrantArgs(args)
	if principalID == "" || priv == "" {
		return fmt.Errorf("usage: grants add --principal <id> --privilege <name> [--scope <target>]")
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	err = s.AddGrant(context.Background(), &store.Grant{
		PrincipalID: principalID,
		Privilege:   priv,
		ScopeTarget: scope,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Granted %s to %s\n", priv, principalID)
	return nil
}

func cmdGrantsRemove(args []string) error {
	principalID, priv, scope := parseGrantArgs(args)
	if principalID == "" || priv == "" {
		return fmt.Errorf("usage: grants remove --principal <id> --privilege <name> [--scope <target>]")
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.RemoveGrant(context.Background(), principalID, priv, scope); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Revoked %s from %s\n", priv, principalID)
	return nil
}

func cmdGrantsList(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: grants list <principal-id>")
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	grants, err := s.ListGrants(context.Background(), args[0])
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Grants")
	cyan.Println("  ------")

	if len(grants) == 0 {
		fmt.Println("  (none)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  PRIVILEGE\tSCOPE\tCREATED")
	fmt.Fprintln(w, "  ---------\t-----\t-------")
	for _, g := range grants {
		scope := g.ScopeTarget
		if scope == "" {
			scope = "(unscoped)"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", g.Privilege, scope, g.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdGrantsCheck(args []string) error {
	principalID, priv, scope := parseGrantArgs(args)
	if principalID == "" || priv == "" {
		return fmt.Errorf("usage: grants check --principal <id> --privilege <name> [--scope <target>]")
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	eval := privilege.NewEvaluator(s)
	var has bool
	if scope != "" {
		has, err = eval.HasPrivilegeOn(context.Background(), principalID, priv, scope)
	} else {
		has, err = eval.HasPrivilege(context.Background(), principalID, priv)
	}
	if err != nil {
		return err
	}

	if has {
		color.Green("✓ %s has %s\n", principalID, priv)
	} else {
		color.Yellow("✗ %s does not have %s\n", principalID, priv)
	}
	return nil
}

// cmdGroups handles group membership subcommands
func cmdGroups(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: groups <add|remove> <group-id> <member-id>")
	}
	subcmd, groupID, memberID := args[0], args[1], args[2]

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	green := color.New(color.FgGreen)

	switch subcmd {
	case "add":
		if err := s.AddGroupMember(ctx, groupID, memberID); err != nil {
			return err
		}
		green.Printf("✓ Added %s to group %s\n", memberID, groupID)
	case "remove", "rm":
		if err := s.RemoveGroupMember(ctx, groupID, memberID); err != nil {
			return err
		}
		green.Printf("✓ Removed %s from group %s\n", memberID, groupID)
	default:
		return fmt.Errorf("unknown groups subcommand: %s (use add, remove)", subcmd)
	}
	return nil
}

// cmdDevices handles WebAuthn device subcommands
func cmdDevices(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: devices <list|delete> ...")
	}
	subcmd := args[0]
	args = args[1:]

	switch subcmd {
	case "list", "ls":
		return cmdDevicesList(args)
	case "delete", "rm", "remove":
		return cmdDevicesDelete(args)
	default:
		return fmt.Errorf("unknown devices subcommand: %s (use list, delete)", subcmd)
	}
}

func cmdDevicesList(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: devices list <principal-id>")
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	devices, err := s.ListDevices(context.Background(), args[0])
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  WebAuthn Devices")
	cyan.Println("  ----------------")

	if len(devices) == 0 {
		fmt.Println("  (no devices)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tATTESTATION\tCOUNTER\tFLAGGED\tCREATED")
	fmt.Fprintln(w, "  --\t-----------\t-------\t-------\t-------")
	for _, d := range devices {
		flagged := ""
		if d.FlaggedAt != nil {
			flagged = d.FlaggedAt.Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "  %s\t%s\t%d\t%s\t%s\n",
			truncate(d.ID, 36), d.AttestationType, d.Counter, flagged,
			d.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdDevicesDelete(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: devices delete <device-id>")
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteDevice(context.Background(), args[0]); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Deleted device: %s\n", args[0])
	return nil
}

// cmdChallenges handles ceremony challenge maintenance
func cmdChallenges(args []string) error {
	if len(args) < 1 || args[0] != "prune" {
		return fmt.Errorf("usage: challenges prune")
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteExpiredChallenges(context.Background()); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Println("✓ Expired challenges pruned")
	return nil
}

// cmdPassword handles password subcommands
func cmdPassword(args []string) error {
	if len(args) < 2 || args[0] != "set" {
		return fmt.Errorf("usage: password set <principal-id>")
	}
	principalID := args[1]

	password := os.Getenv("LANTERN_PASSWORD")
	if password == "" {
		return fmt.Errorf("set the password in the LANTERN_PASSWORD environment variable")
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	svc := principal.NewService(s)
	if err := svc.SetPassword(context.Background(), localAdmin(), principalID, password); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Password set for %s\n", principalID)
	return nil
}

// cmdToken issues a JWT for a principal using the configured secret
func cmdToken(args []string) error {
	if len(args) < 1 || args[0] != "create" {
		return fmt.Errorf("usage: token create --principal <id> [--ttl <duration>]")
	}
	args = args[1:]

	var principalID string
	ttl := 30 * 24 * time.Hour

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--principal", "-p":
			if i+1 < len(args) {
				principalID = args[i+1]
				i++
			}
		case "--ttl", "-t":
			if i+1 < len(args) {
				parsed, err := time.ParseDuration(args[i+1])
				if err != nil {
					return fmt.Errorf("invalid ttl: %w", err)
				}
				ttl = parsed
				i++
			}
		}
	}

	if principalID == "" {
		return fmt.Errorf("usage: token create --principal <id> [--ttl <duration>]")
	}

	s, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	secret := os.Getenv("LANTERN_JWT_SECRET")
	if secret == "" && cfg != nil {
		secret = cfg.Auth.JWTSecret
	}
	if secret == "" {
		return fmt.Errorf("no JWT secret: set auth.jwt_secret in config or LANTERN_JWT_SECRET")
	}

	ctx := context.Background()
	p, err := s.GetPrincipal(ctx, principalID)
	if err != nil {
		return err
	}

	issuer := auth.NewJWTIssuer([]byte(secret))
	token, err := issuer.Issue(p, ttl)
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(ttl)

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	fmt.Println()
	green.Println("  Token created successfully")
	fmt.Println()
	cyan.Println("  Principal:  " + principalID)
	cyan.Println("  Expires:    " + expiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  Token (keep this secret!):")
	fmt.Println()
	fmt.Println("  " + token)
	fmt.Println()

	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

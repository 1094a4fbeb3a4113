// Admin CLI tree (spec §6): direct database access for bootstrapping and
// day-two operator tasks, grounded on the teacher's cmd/eph/admin.go and
// admin_user.go — a loadAdminContext-style helper opening the store
// directly rather than going through the HTTP API.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bantamhq/cutman/internal/store"
)

// Exit codes per spec §6.
const (
	exitOK             = 0
	exitUsageError     = 2
	exitNotFound       = 3
	exitConflict       = 1
	exitInternal       = 1
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Server administration commands (direct database access)",
	}

	cmd.AddCommand(
		newAdminInitCmd(),
		newAdminUserCmd(),
		newAdminNamespaceCmd(),
		newAdminPermissionCmd(),
	)

	return cmd
}

func newAdminInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and write the admin token (first-time setup)",
		RunE:  runAdminInit,
	}
	cmd.Flags().Bool("non-interactive", false, "skip the confirmation prompt (required when stdout is not a terminal)")
	return cmd
}

func runAdminInit(cmd *cobra.Command, args []string) error {
	nonInteractive, _ := cmd.Flags().GetBool("non-interactive")

	if !nonInteractive && !term.IsTerminal(int(os.Stdout.Fd())) {
		return withExit(exitUsageError, fmt.Errorf("interactive terminal required for setup (use --non-interactive to skip the confirmation prompt)"))
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return withExit(exitUsageError, err)
	}

	st, err := initStore(cfg.Storage.DataDir)
	if err != nil {
		return withExit(exitInternal, err)
	}
	defer st.Close()

	hasAdmin, err := st.HasAdminToken(cmd.Context())
	if err != nil {
		return withExit(exitInternal, err)
	}
	if hasAdmin {
		return withExit(exitConflict, fmt.Errorf("server already initialized; refusing to clobber the existing admin token"))
	}

	if !nonInteractive {
		fmt.Printf("Initialize server at %s? [y/N] ", cfg.Storage.DataDir)
		var response string
		fmt.Scanln(&response)
		if strings.ToLower(strings.TrimSpace(response)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	_, secret, err := st.CreateToken(cmd.Context(), nil, "admin-root")
	if err != nil {
		return withExit(exitInternal, fmt.Errorf("create admin token: %w", err))
	}

	tokenPath := cfg.Storage.DataDir + adminTokenFileName
	if err := os.WriteFile(tokenPath, []byte(secret+"\n"), 0o600); err != nil {
		return withExit(exitInternal, fmt.Errorf("write admin token: %w", err))
	}

	fmt.Println("Server initialized.")
	fmt.Printf("Admin token written to %s (save it, it will not be shown again)\n", tokenPath)
	return nil
}

func newAdminUserCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage users"}
	cmd.AddCommand(
		&cobra.Command{Use: "add <username>", Short: "Create a user and their personal namespace", Args: cobra.ExactArgs(1), RunE: runAdminUserAdd},
		&cobra.Command{Use: "list", Short: "List users", RunE: runAdminUserList},
		&cobra.Command{Use: "remove <username>", Short: "Delete a user and their personal namespace", Args: cobra.ExactArgs(1), RunE: runAdminUserRemove},
		&cobra.Command{Use: "token <username>", Short: "Issue a new token for a user", Args: cobra.ExactArgs(1), RunE: runAdminUserToken},
	)
	cmd.PersistentFlags().Bool("admin", false, "grant the new user admin privileges")
	return cmd
}

func runAdminUserAdd(cmd *cobra.Command, args []string) error {
	ctx, close, err := openAdminContext(cmd)
	if err != nil {
		return err
	}
	defer close()

	isAdmin, _ := cmd.Flags().GetBool("admin")
	user, ns, err := ctx.CreateUser(cmd.Context(), args[0], isAdmin)
	if err != nil {
		if errors.Is(err, store.ErrNameConflict) {
			return withExit(exitConflict, fmt.Errorf("user %q already exists", args[0]))
		}
		return withExit(exitInternal, err)
	}

	_, secret, err := ctx.CreateToken(cmd.Context(), &user.ID, "initial token")
	if err != nil {
		return withExit(exitInternal, fmt.Errorf("issue token: %w", err))
	}

	fmt.Printf("Created user %q (namespace %s)\n", ns.Name, ns.ID)
	fmt.Printf("Token: %s\n", secret)
	return nil
}

func runAdminUserList(cmd *cobra.Command, args []string) error {
	ctx, close, err := openAdminContext(cmd)
	if err != nil {
		return err
	}
	defer close()

	namespaces, _, err := ctx.ListNamespaces(cmd.Context(), 1, 1000)
	if err != nil {
		return withExit(exitInternal, err)
	}
	for _, ns := range namespaces {
		if ns.Kind != store.NamespacePersonal {
			continue
		}
		fmt.Println(ns.Name)
	}
	return nil
}

func runAdminUserRemove(cmd *cobra.Command, args []string) error {
	ctx, close, err := openAdminContext(cmd)
	if err != nil {
		return err
	}
	defer close()

	ns, err := ctx.GetNamespaceByName(cmd.Context(), args[0])
	if err != nil {
		return withExit(exitNotFound, fmt.Errorf("user %q not found", args[0]))
	}
	if ns.OwnerUserID == nil {
		return withExit(exitUsageError, fmt.Errorf("%q is not a personal namespace", args[0]))
	}

	if err := ctx.DeleteUser(cmd.Context(), *ns.OwnerUserID); err != nil {
		return withExit(exitInternal, err)
	}
	if err := ctx.DeleteNamespace(cmd.Context(), ns.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return withExit(exitInternal, err)
	}

	fmt.Printf("Deleted user %q\n", args[0])
	return nil
}

func runAdminUserToken(cmd *cobra.Command, args []string) error {
	ctx, close, err := openAdminContext(cmd)
	if err != nil {
		return err
	}
	defer close()

	ns, err := ctx.GetNamespaceByName(cmd.Context(), args[0])
	if err != nil || ns.OwnerUserID == nil {
		return withExit(exitNotFound, fmt.Errorf("user %q not found", args[0]))
	}

	_, secret, err := ctx.CreateToken(cmd.Context(), ns.OwnerUserID, "admin-issued")
	if err != nil {
		return withExit(exitInternal, err)
	}

	fmt.Printf("Token: %s\n", secret)
	return nil
}

func newAdminNamespaceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "namespace", Short: "Manage shared namespaces"}
	cmd.AddCommand(
		&cobra.Command{Use: "create <name>", Short: "Create a shared namespace", Args: cobra.ExactArgs(1), RunE: runAdminNamespaceCreate},
		&cobra.Command{Use: "list", Short: "List namespaces", RunE: runAdminNamespaceList},
		&cobra.Command{Use: "remove <name>", Short: "Delete a shared namespace", Args: cobra.ExactArgs(1), RunE: runAdminNamespaceRemove},
	)
	cmd.PersistentFlags().Int("repo-limit", 0, "cap the number of repos in this namespace (0 = unlimited)")
	return cmd
}

func runAdminNamespaceCreate(cmd *cobra.Command, args []string) error {
	ctx, close, err := openAdminContext(cmd)
	if err != nil {
		return err
	}
	defer close()

	var limit *int
	if v, _ := cmd.Flags().GetInt("repo-limit"); v > 0 {
		limit = &v
	}

	ns, err := ctx.CreateSharedNamespace(cmd.Context(), args[0], limit)
	if err != nil {
		if errors.Is(err, store.ErrNameConflict) {
			return withExit(exitConflict, fmt.Errorf("namespace %q already exists", args[0]))
		}
		return withExit(exitInternal, err)
	}

	fmt.Printf("Created namespace %q (%s)\n", ns.Name, ns.ID)
	return nil
}

func runAdminNamespaceList(cmd *cobra.Command, args []string) error {
	ctx, close, err := openAdminContext(cmd)
	if err != nil {
		return err
	}
	defer close()

	namespaces, _, err := ctx.ListNamespaces(cmd.Context(), 1, 1000)
	if err != nil {
		return withExit(exitInternal, err)
	}
	for _, ns := range namespaces {
		fmt.Printf("%s\t%s\t%s\n", ns.Name, ns.Kind, ns.ID)
	}
	return nil
}

func runAdminNamespaceRemove(cmd *cobra.Command, args []string) error {
	ctx, close, err := openAdminContext(cmd)
	if err != nil {
		return err
	}
	defer close()

	ns, err := ctx.GetNamespaceByName(cmd.Context(), args[0])
	if err != nil {
		return withExit(exitNotFound, fmt.Errorf("namespace %q not found", args[0]))
	}
	if err := ctx.DeleteNamespace(cmd.Context(), ns.ID); err != nil {
		return withExit(exitInternal, err)
	}

	fmt.Printf("Deleted namespace %q\n", args[0])
	return nil
}

func newAdminPermissionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "permission", Short: "Manage namespace grants"}
	cmd.AddCommand(
		&cobra.Command{Use: "grant <username> <namespace> <scopes...>", Short: "Grant a user scopes on a namespace", Args: cobra.MinimumNArgs(3), RunE: runAdminPermissionGrant},
		&cobra.Command{Use: "revoke <username> <namespace>", Short: "Revoke a user's grant on a namespace", Args: cobra.ExactArgs(2), RunE: runAdminPermissionRevoke},
	)
	return cmd
}

func runAdminPermissionGrant(cmd *cobra.Command, args []string) error {
	ctx, close, err := openAdminContext(cmd)
	if err != nil {
		return err
	}
	defer close()

	userNS, err := ctx.GetNamespaceByName(cmd.Context(), args[0])
	if err != nil || userNS.OwnerUserID == nil {
		return withExit(exitNotFound, fmt.Errorf("user %q not found", args[0]))
	}
	targetNS, err := ctx.GetNamespaceByName(cmd.Context(), args[1])
	if err != nil {
		return withExit(exitNotFound, fmt.Errorf("namespace %q not found", args[1]))
	}

	scopes := store.ScopeSet{}
	for _, raw := range args[2:] {
		if !store.IsValidScope(raw) {
			return withExit(exitUsageError, fmt.Errorf("invalid scope %q", raw))
		}
		scopes[store.Scope(raw)] = true
	}

	if _, err := ctx.UpsertNamespaceGrant(cmd.Context(), *userNS.OwnerUserID, targetNS.ID, scopes); err != nil {
		return withExit(exitInternal, err)
	}

	fmt.Printf("Granted %v to %q on %q\n", args[2:], args[0], args[1])
	return nil
}

func runAdminPermissionRevoke(cmd *cobra.Command, args []string) error {
	ctx, close, err := openAdminContext(cmd)
	if err != nil {
		return err
	}
	defer close()

	userNS, err := ctx.GetNamespaceByName(cmd.Context(), args[0])
	if err != nil || userNS.OwnerUserID == nil {
		return withExit(exitNotFound, fmt.Errorf("user %q not found", args[0]))
	}
	targetNS, err := ctx.GetNamespaceByName(cmd.Context(), args[1])
	if err != nil {
		return withExit(exitNotFound, fmt.Errorf("namespace %q not found", args[1]))
	}

	if err := ctx.DeleteNamespaceGrant(cmd.Context(), *userNS.OwnerUserID, targetNS.ID); err != nil {
		return withExit(exitInternal, err)
	}

	fmt.Printf("Revoked grant on %q from %q\n", args[1], args[0])
	return nil
}

// openAdminContext opens the store directly against the configured data
// directory; admin commands bypass the HTTP API and its scope checks
// entirely, per spec §6.
func openAdminContext(cmd *cobra.Command) (*store.SQLiteStore, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, withExit(exitUsageError, err)
	}

	st, err := initStore(cfg.Storage.DataDir)
	if err != nil {
		return nil, nil, withExit(exitInternal, err)
	}

	return st, func() { st.Close() }, nil
}

// exitError carries a process exit code alongside its message, per spec
// §6's 0/1/2/3/4 exit code contract.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func withExit(code int, err error) error {
	return &exitError{code: code, err: err}
}

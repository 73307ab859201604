package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

type user struct {
	ID        int64  `json:"id"`
	TenantID  int64  `json:"tenantId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	IsActive  bool   `json:"isActive"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type tenant struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Subdomain string   `json:"subdomain"`
	Modules   []string `json:"modules"`
	IsActive  bool     `json:"isActive"`
}

type deviation struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	Priority   string    `json:"priority"`
	AssigneeID *int64    `json:"assigneeId"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "qualityhub",
		Short:        "Command line client for the QualityHub API",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.AddCommand(
		newLoginCmd(),
		newWhoamiCmd(),
		newLogoutCmd(),
		newTenantsCmd(),
		newUsersCmd(),
		newDeviationsCmd(),
	)
	return root
}

func authedClient() (*apiClient, error) {
	s, err := loadSession()
	if err != nil {
		return nil, err
	}
	return newAPIClient(s), nil
}

func newLoginCmd() *cobra.Command {
	var server, tenantName, email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to a tenant and store the session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("QUALITYHUB_PASSWORD")
			}
			if tenantName == "" || email == "" || password == "" {
				return errors.New("--tenant, --email and a password (--password or QUALITYHUB_PASSWORD) are required")
			}
			if _, err := url.ParseRequestURI(server); err != nil {
				return fmt.Errorf("invalid --server: %w", err)
			}
			c := newAPIClient(session{Server: strings.TrimRight(server, "/"), Tenant: tenantName})
			var res struct {
				Token     string    `json:"token"`
				ExpiresAt time.Time `json:"expiresAt"`
				User      user      `json:"user"`
			}
			in := map[string]string{"email": email, "password": password}
			if err := c.do(cmd.Context(), http.MethodPost, "/api/auth/login", in, &res); err != nil {
				return err
			}
			if err := saveSession(session{Server: c.server, Tenant: tenantName, Token: res.Token}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s (%s), session expires %s\n",
				tenantName, res.User.Email, res.User.Role, res.ExpiresAt.Local().Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", envOr("QUALITYHUB_SERVER", defaultServer), "API base URL")
	cmd.Flags().StringVar(&tenantName, "tenant", "", "tenant subdomain")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in principal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			var me user
			if err := c.do(cmd.Context(), http.MethodGet, "/api/auth/me", nil, &me); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nrole:   %s\ntenant: %s (id %d)\n", me.Email, me.Role, c.tenant, me.TenantID)
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := sessionPath()
			if err != nil {
				return err
			}
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newTenantsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tenants", Short: "Manage tenants (superadmin)"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all tenants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			var tenants []tenant
			if err := c.do(cmd.Context(), http.MethodGet, "/api/admin/tenants", nil, &tenants); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSUBDOMAIN\tNAME\tMODULES\tACTIVE")
			for _, t := range tenants {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n", t.ID, t.Subdomain, t.Name, strings.Join(t.Modules, ","), t.IsActive)
			}
			return w.Flush()
		},
	}

	var name, subdomain, adminEmail, adminPassword string
	var modules []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant, optionally with its first admin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			in := map[string]any{
				"name":          name,
				"subdomain":     subdomain,
				"modules":       modules,
				"adminEmail":    adminEmail,
				"adminPassword": adminPassword,
			}
			var res struct {
				Tenant tenant `json:"tenant"`
				Admin  *user  `json:"admin"`
			}
			if err := c.do(cmd.Context(), http.MethodPost, "/api/admin/tenants", in, &res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created tenant %s (id %d)\n", res.Tenant.Subdomain, res.Tenant.ID)
			if res.Admin != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Admin: %s\n", res.Admin.Email)
			}
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&subdomain, "subdomain", "", "unique subdomain")
	create.Flags().StringSliceVar(&modules, "modules", nil, "enabled modules, comma separated")
	create.Flags().StringVar(&adminEmail, "admin-email", "", "first admin email")
	create.Flags().StringVar(&adminPassword, "admin-password", "", "first admin password")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("subdomain")

	cmd.AddCommand(list, create)
	return cmd
}

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "Manage users of the current tenant (admin)"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			var users []user
			if err := c.do(cmd.Context(), http.MethodGet, "/api/users", nil, &users); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tROLE\tACTIVE")
			for _, u := range users {
				fmt.Fprintf(w, "%d\t%s\t%s\t%t\n", u.ID, u.Email, u.Role, u.IsActive)
			}
			return w.Flush()
		},
	}

	var email, password, role, first, last string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			in := map[string]string{"email": email, "password": password, "role": role, "firstName": first, "lastName": last}
			var u user
			if err := c.do(cmd.Context(), http.MethodPost, "/api/users", in, &u); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (id %d, role %s)\n", u.Email, u.ID, u.Role)
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "email")
	create.Flags().StringVar(&password, "password", "", "initial password")
	create.Flags().StringVar(&role, "role", "user", "user, admin or superadmin")
	create.Flags().StringVar(&first, "first-name", "", "first name")
	create.Flags().StringVar(&last, "last-name", "", "last name")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(list, create)
	return cmd
}

func newDeviationsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "deviations", Short: "Work with deviations"}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List deviations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			path := "/api/deviations"
			if status != "" {
				path += "?status=" + url.QueryEscape(status)
			}
			var list []deviation
			if err := c.do(cmd.Context(), http.MethodGet, path, nil, &list); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tASSIGNEE\tTITLE")
			for _, d := range list {
				assignee := "-"
				if d.AssigneeID != nil {
					assignee = fmt.Sprint(*d.AssigneeID)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", d.ID, d.Status, d.Priority, assignee, d.Title)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status")

	cmd.AddCommand(list)
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

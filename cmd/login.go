package cmd

import (
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/streamzone/sz/internal/account"
	"github.com/streamzone/sz/internal/config"
	"github.com/streamzone/sz/internal/output"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	Short:   "Log in with email and password",
	Long:    `Checks the credentials against the local store. An account created on another device is fetched from the cloud first.`,
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, err := passwordFlag(cmd)
		if err != nil {
			return err
		}

		if (email == "" || password == "") && output.IsInteractive() {
			var fields []huh.Field
			if email == "" {
				fields = append(fields, huh.NewInput().Title("Email").Value(&email).Validate(notBlank))
			}
			if password == "" {
				fields = append(fields, huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&password))
			}
			if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
				return err
			}
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		rec, closeRec := optionalReconciler(cmd.Context(), store)
		defer closeRec()

		u, err := account.Login(cmd.Context(), store, rec, email, password)
		if err != nil {
			return err
		}

		if err := config.SaveSession(&config.Session{
			UserID:     u.ID,
			Email:      u.Email,
			Name:       u.Name,
			FirebaseID: u.RemoteID(),
			LoggedInAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		output.Success("Logged in as %s", u.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "Forget the logged-in user",
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ClearSession(); err != nil {
			return err
		}
		output.Success("Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	Short:   "Show the logged-in user and their roles",
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		u, err := currentUser(store)
		if err != nil {
			if errors.Is(err, config.ErrNotLoggedIn) {
				output.Info("not logged in")
			}
			return err
		}
		roles, err := store.RolesForUser(u.ID)
		if err != nil {
			return err
		}
		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = r.Name
		}
		admin, err := account.IsAdmin(store, u.ID)
		if err != nil {
			return err
		}

		jsonOut, _ := cmd.Flags().GetBool("json")
		if jsonOut {
			return output.JSON(map[string]any{"user": u, "roles": names, "admin": admin})
		}
		output.Info("%s <%s>  #%d", u.Name, u.Email, u.ID)
		output.Info("Roles: %s", strings.Join(names, ", "))
		if admin {
			output.Info("Admin: yes")
		}
		output.Info("Sync:  %s", output.SyncMark(u.SyncMeta))
		last, _ := store.LastLogin(u.ID)
		output.Info("Last login: %s", output.FormatTimeAgo(last))
		return nil
	},
}

func init() {
	loginCmd.Flags().String("email", "", "email address")
	loginCmd.Flags().String("password", "", "password, - for stdin or @file (prompted when omitted)")
	whoamiCmd.Flags().Bool("json", false, "JSON output")
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

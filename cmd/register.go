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

var errRequired = errors.New("required")

func notBlank(s string) error {
	if strings.TrimSpace(s) == "" {
		return errRequired
	}
	return nil
}

// promptRegister asks for the fields missing from in
func promptRegister(in *account.RegisterInput) error {
	var fields []huh.Field
	if in.Name == "" {
		fields = append(fields, huh.NewInput().Title("Name").Value(&in.Name).Validate(notBlank))
	}
	if in.Email == "" {
		fields = append(fields, huh.NewInput().Title("Email").Value(&in.Email).Validate(notBlank))
	}
	if in.Password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			Description("At least 6 characters").
			EchoMode(huh.EchoModePassword).
			Value(&in.Password).
			Validate(func(s string) error {
				if len(s) < account.MinPasswordLength {
					return errors.New("too short")
				}
				return nil
			}))
	}
	if in.Phone == "" {
		fields = append(fields, huh.NewInput().Title("Phone").Placeholder("optional").Value(&in.Phone))
	}
	if len(fields) == 0 {
		return nil
	}
	return huh.NewForm(huh.NewGroup(fields...).Title("Create a StreamZone account")).Run()
}

var registerCmd = &cobra.Command{
	Use:     "register",
	Short:   "Create an account and log in",
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		var in account.RegisterInput
		in.Name, _ = cmd.Flags().GetString("name")
		in.Email, _ = cmd.Flags().GetString("email")
		in.Phone, _ = cmd.Flags().GetString("phone")
		var err error
		if in.Password, err = passwordFlag(cmd); err != nil {
			return err
		}

		if output.IsInteractive() {
			if err := promptRegister(&in); err != nil {
				return err
			}
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		u, err := account.Register(cmd.Context(), store, in)
		if err != nil {
			return err
		}

		if err := config.SaveSession(&config.Session{
			UserID:     u.ID,
			Email:      u.Email,
			Name:       u.Name,
			LoggedInAt: time.Now().UTC(),
		}); err != nil {
			return err
		}

		output.Success("REGISTERED %s (#%d)", u.Email, u.ID)
		return nil
	},
}

func init() {
	registerCmd.Flags().String("name", "", "full name")
	registerCmd.Flags().String("email", "", "email address")
	registerCmd.Flags().String("password", "", "password, - for stdin or @file (prompted when omitted)")
	registerCmd.Flags().String("phone", "", "phone number")
	rootCmd.AddCommand(registerCmd)
}

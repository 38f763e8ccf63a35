package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streamzone/sz/internal/output"
	"github.com/streamzone/sz/internal/shop"
)

var buyCmd = &cobra.Command{
	Use:     "buy <service-id>",
	Short:   "Request a service, optionally through an offer",
	Long:    `Creates a pending purchase. An admin approves or rejects it; you get a notification either way.`,
	GroupID: "shop",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serviceID, err := parseID(args[0], "service")
		if err != nil {
			return err
		}
		offerID, _ := cmd.Flags().GetInt64("offer")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		u, err := currentUser(store)
		if err != nil {
			return err
		}
		p, err := shop.Buy(store, u.ID, serviceID, offerID)
		if err != nil {
			return err
		}
		output.Success("PURCHASE #%d %s  %s", p.ID, output.Money(p.AmountCents), output.FormatPurchaseStatus(p.Status))
		return nil
	},
}

var purchasesCmd = &cobra.Command{
	Use:     "purchases",
	Short:   "List your purchases",
	GroupID: "shop",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		u, err := currentUser(store)
		if err != nil {
			return err
		}
		purchases, err := store.ListPurchasesByUser(u.ID)
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(purchases)
		}
		if len(purchases) == 0 {
			output.Info("No purchases")
			return nil
		}
		names := serviceNames(store)
		for i := range purchases {
			fmt.Fprintln(output.Stdout, output.FormatPurchase(&purchases[i], names[purchases[i].ServiceID]))
		}
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:     "cancel <purchase-id>",
	Short:   "Cancel one of your pending purchases",
	GroupID: "shop",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "purchase")
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		u, err := currentUser(store)
		if err != nil {
			return err
		}
		p, err := shop.Cancel(store, u.ID, id)
		if err != nil {
			return err
		}
		output.Success("PURCHASE #%d %s", p.ID, output.FormatPurchaseStatus(p.Status))
		return nil
	},
}

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"inbox"},
	Short:   "List your notifications",
	GroupID: "shop",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		u, err := currentUser(store)
		if err != nil {
			return err
		}
		unread, _ := cmd.Flags().GetBool("unread")
		notes, err := store.ListNotifications(u.ID, unread)
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(notes)
		}
		if len(notes) == 0 {
			output.Info("No notifications")
			return nil
		}
		for i := range notes {
			fmt.Fprintln(output.Stdout, output.FormatNotification(&notes[i]))
		}
		return nil
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "notification")
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		u, err := currentUser(store)
		if err != nil {
			return err
		}
		if err := store.MarkNotificationRead(u.ID, id); err != nil {
			return fmt.Errorf("notification %d: %w", id, err)
		}
		output.Success("READ #%d", id)
		return nil
	},
}

func init() {
	buyCmd.Flags().Int64("offer", 0, "offer id to buy through")
	purchasesCmd.Flags().Bool("json", false, "JSON output")
	notificationsCmd.Flags().Bool("unread", false, "only unread notifications")
	notificationsCmd.Flags().Bool("json", false, "JSON output")

	notificationsCmd.AddCommand(notificationsReadCmd)
	rootCmd.AddCommand(buyCmd, purchasesCmd, cancelCmd, notificationsCmd)
}

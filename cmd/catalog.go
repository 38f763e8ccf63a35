package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/streamzone/sz/internal/db"
	"github.com/streamzone/sz/internal/models"
	"github.com/streamzone/sz/internal/output"
)

// categoryNames maps category IDs to names for display
func categoryNames(store *db.DB) (map[int64]string, error) {
	cats, err := store.ListCategories()
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names, nil
}

var servicesCmd = &cobra.Command{
	Use:     "services",
	Aliases: []string{"catalog"},
	Short:   "List services in the catalog",
	GroupID: "shop",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		var categoryID int64
		if name, _ := cmd.Flags().GetString("category"); name != "" {
			cat, err := store.GetCategoryByName(name)
			if err != nil {
				return fmt.Errorf("category %q: %w", name, err)
			}
			categoryID = cat.ID
		}
		all, _ := cmd.Flags().GetBool("all")

		services, err := store.ListServices(categoryID, !all)
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(services)
		}
		if len(services) == 0 {
			output.Info("No services")
			return nil
		}

		names, err := categoryNames(store)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(services))
		for _, s := range services {
			status := "active"
			if !s.Active {
				status = "inactive"
			}
			rows = append(rows, []string{
				fmt.Sprintf("%d", s.ID), s.Name, names[s.CategoryID],
				output.Money(s.PriceCents), status, output.SyncMark(s.SyncMeta),
			})
		}
		fmt.Fprintln(output.Stdout, output.Table([]string{"ID", "SERVICE", "CATEGORY", "PRICE", "STATUS", "SYNC"}, rows))
		return nil
	},
}

var categoriesCmd = &cobra.Command{
	Use:     "categories",
	Short:   "List catalog categories",
	GroupID: "shop",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		cats, err := store.ListCategories()
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(cats)
		}
		for _, c := range cats {
			line := fmt.Sprintf("#%d  %s", c.ID, c.Name)
			if c.Description != "" {
				line += "  " + c.Description
			}
			output.Info("%s", line)
		}
		return nil
	},
}

var offersCmd = &cobra.Command{
	Use:     "offers",
	Short:   "List offers that apply right now",
	GroupID: "shop",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		offers, err := store.ListLiveOffers(time.Now().UTC())
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(offers)
		}
		if len(offers) == 0 {
			output.Info("No live offers")
			return nil
		}
		for i := range offers {
			fmt.Fprintln(output.Stdout, output.FormatOffer(&offers[i]))
		}
		return nil
	},
}

var serviceCmd = &cobra.Command{
	Use:     "service",
	Short:   "Inspect one service",
	GroupID: "shop",
}

var serviceShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a service with its live offers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "service")
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		svc, err := store.GetService(id)
		if err != nil {
			return fmt.Errorf("service %d: %w", id, err)
		}
		live, err := store.ListLiveOffers(time.Now().UTC())
		if err != nil {
			return err
		}
		var offers []models.Offer
		for _, o := range live {
			if o.ServiceID == svc.ID {
				offers = append(offers, o)
			}
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(map[string]any{"service": svc, "offers": offers})
		}
		names, err := categoryNames(store)
		if err != nil {
			return err
		}
		fmt.Fprint(output.Stdout, output.FormatServiceLong(svc, names[svc.CategoryID], offers))
		return nil
	},
}

var serviceImageCmd = &cobra.Command{
	Use:   "image <id>",
	Short: "Download a service's image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "service")
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		svc, err := store.GetService(id)
		if err != nil {
			return fmt.Errorf("service %d: %w", id, err)
		}
		if svc.ImageKey == "" {
			return fmt.Errorf("service %d has no image", id)
		}

		blobs, err := openBlobs(cmd.Context())
		if err != nil {
			return err
		}
		info, rc, err := blobs.Get(cmd.Context(), svc.ImageKey)
		if err != nil {
			return err
		}
		defer rc.Close()

		dest, _ := cmd.Flags().GetString("output")
		if dest == "" {
			return fmt.Errorf("--output is required")
		}
		f, err := os.Create(dest)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, rc); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		output.Success("Saved %s (%d bytes, %s)", dest, info.Size, info.ContentType)
		return nil
	},
}

func init() {
	servicesCmd.Flags().String("category", "", "only services in this category")
	servicesCmd.Flags().Bool("all", false, "include inactive services")
	for _, c := range []*cobra.Command{servicesCmd, categoriesCmd, offersCmd, serviceShowCmd} {
		c.Flags().Bool("json", false, "JSON output")
	}
	serviceImageCmd.Flags().StringP("output", "o", "", "file to write")

	serviceCmd.AddCommand(serviceShowCmd, serviceImageCmd)
	rootCmd.AddCommand(servicesCmd, categoriesCmd, offersCmd, serviceCmd)
}

// serviceNames maps service IDs to names for display
func serviceNames(store *db.DB) map[int64]string {
	names := map[int64]string{}
	services, err := store.ListServices(0, false)
	if err != nil {
		return names
	}
	for _, s := range services {
		names[s.ID] = s.Name
	}
	return names
}

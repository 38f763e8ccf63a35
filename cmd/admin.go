package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/streamzone/sz/internal/blob"
	"github.com/streamzone/sz/internal/dateparse"
	"github.com/streamzone/sz/internal/db"
	"github.com/streamzone/sz/internal/models"
	"github.com/streamzone/sz/internal/output"
	"github.com/streamzone/sz/internal/shop"
)

// withAdmin opens the store and checks that the session user holds perm
func withAdmin(perm string, fn func(store *db.DB, admin *models.User) error) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	u, err := requirePermission(store, perm)
	if err != nil {
		return err
	}
	return fn(store, u)
}

var adminCmd = &cobra.Command{
	Use:     "admin",
	Short:   "Manage roles, catalog, offers and purchases",
	GroupID: "admin",
}

// Roles and permissions

var adminRoleCmd = &cobra.Command{Use: "role", Short: "Manage roles"}

var adminRoleAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		descr, err := descriptionFlag(cmd)
		if err != nil {
			return err
		}
		return withAdmin(models.PermManageRoles, func(store *db.DB, _ *models.User) error {
			r := &models.Role{Name: strings.TrimSpace(args[0]), Description: descr}
			if err := store.CreateRole(r); err != nil {
				return err
			}
			output.Success("CREATED role %s (#%d)", r.Name, r.ID)
			return nil
		})
	},
}

var adminRoleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List roles with their permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(models.PermViewAdmin, func(store *db.DB, _ *models.User) error {
			roles, err := store.ListRoles()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(roles))
			for _, r := range roles {
				perms, err := store.PermissionsForRole(r.ID)
				if err != nil {
					return err
				}
				names := make([]string, len(perms))
				for i, p := range perms {
					names[i] = p.Name
				}
				rows = append(rows, []string{fmt.Sprintf("%d", r.ID), r.Name, strings.Join(names, ", "), output.SyncMark(r.SyncMeta)})
			}
			fmt.Fprintln(output.Stdout, output.Table([]string{"ID", "ROLE", "PERMISSIONS", "SYNC"}, rows))
			return nil
		})
	},
}

// roleAndPermission resolves a role name and a permission name
func roleAndPermission(store *db.DB, role, perm string) (*models.Role, *models.Permission, error) {
	r, err := store.GetRoleByName(role)
	if err != nil {
		return nil, nil, fmt.Errorf("role %q: %w", role, err)
	}
	p, err := store.GetPermissionByName(perm)
	if err != nil {
		return nil, nil, fmt.Errorf("permission %q: %w", perm, err)
	}
	return r, p, nil
}

var adminRoleGrantCmd = &cobra.Command{
	Use:   "grant <role> <permission>",
	Short: "Grant a permission to a role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(models.PermManageRoles, func(store *db.DB, _ *models.User) error {
			r, p, err := roleAndPermission(store, args[0], args[1])
			if err != nil {
				return err
			}
			if _, err := store.GrantPermission(r.ID, p.ID); err != nil {
				return err
			}
			output.Success("GRANTED %s to %s", p.Name, r.Name)
			return nil
		})
	},
}

var adminRoleRevokeCmd = &cobra.Command{
	Use:   "revoke <role> <permission>",
	Short: "Revoke a permission from a role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(models.PermManageRoles, func(store *db.DB, _ *models.User) error {
			r, p, err := roleAndPermission(store, args[0], args[1])
			if err != nil {
				return err
			}
			if err := store.RevokePermission(r.ID, p.ID); err != nil {
				return err
			}
			output.Success("REVOKED %s from %s", p.Name, r.Name)
			return nil
		})
	},
}

var adminPermissionCmd = &cobra.Command{Use: "permission", Short: "Manage permissions"}

var adminPermissionAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a permission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		descr, err := descriptionFlag(cmd)
		if err != nil {
			return err
		}
		return withAdmin(models.PermManagePermissions, func(store *db.DB, _ *models.User) error {
			p := &models.Permission{Name: strings.TrimSpace(args[0]), Description: descr}
			if err := store.CreatePermission(p); err != nil {
				return err
			}
			output.Success("CREATED permission %s (#%d)", p.Name, p.ID)
			return nil
		})
	},
}

var adminPermissionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(models.PermViewAdmin, func(store *db.DB, _ *models.User) error {
			perms, err := store.ListPermissions()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(perms))
			for _, p := range perms {
				rows = append(rows, []string{fmt.Sprintf("%d", p.ID), p.Name, p.Description, output.SyncMark(p.SyncMeta)})
			}
			fmt.Fprintln(output.Stdout, output.Table([]string{"ID", "PERMISSION", "DESCRIPTION", "SYNC"}, rows))
			return nil
		})
	},
}

// Users

var adminUserCmd = &cobra.Command{Use: "user", Short: "Manage users"}

var adminUserListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users with their roles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(models.PermViewAdmin, func(store *db.DB, _ *models.User) error {
			users, err := store.ListUsers()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(users))
			for _, u := range users {
				roles, err := store.RolesForUser(u.ID)
				if err != nil {
					return err
				}
				names := make([]string, len(roles))
				for i, r := range roles {
					names[i] = r.Name
				}
				rows = append(rows, []string{fmt.Sprintf("%d", u.ID), u.Name, u.Email, strings.Join(names, ", "), output.SyncMark(u.SyncMeta)})
			}
			fmt.Fprintln(output.Stdout, output.Table([]string{"ID", "NAME", "EMAIL", "ROLES", "SYNC"}, rows))
			return nil
		})
	},
}

var adminUserAssignRoleCmd = &cobra.Command{
	Use:   "assign-role <email> <role>",
	Short: "Give a user a role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		remove, _ := cmd.Flags().GetBool("remove")
		return withAdmin(models.PermManageRoles, func(store *db.DB, _ *models.User) error {
			u, err := store.GetUserByEmail(strings.ToLower(strings.TrimSpace(args[0])))
			if err != nil {
				return fmt.Errorf("user %q: %w", args[0], err)
			}
			r, err := store.GetRoleByName(args[1])
			if err != nil {
				return fmt.Errorf("role %q: %w", args[1], err)
			}
			if remove {
				if err := store.RemoveRole(u.ID, r.ID); err != nil {
					return err
				}
				output.Success("REMOVED %s from %s", r.Name, u.Email)
				return nil
			}
			if _, err := store.AssignRole(u.ID, r.ID); err != nil {
				return err
			}
			output.Success("ASSIGNED %s to %s", r.Name, u.Email)
			return nil
		})
	},
}

// Catalog

var adminCategoryCmd = &cobra.Command{Use: "category", Short: "Manage categories"}

var adminCategoryAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		descr, err := descriptionFlag(cmd)
		if err != nil {
			return err
		}
		return withAdmin(models.PermManageCatalog, func(store *db.DB, _ *models.User) error {
			c := &models.Category{Name: strings.TrimSpace(args[0]), Description: descr}
			if err := store.CreateCategory(c); err != nil {
				return err
			}
			output.Success("CREATED category %s (#%d)", c.Name, c.ID)
			return nil
		})
	},
}

var adminServiceCmd = &cobra.Command{Use: "service", Short: "Manage services"}

var adminServiceAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a service to the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		priceStr, _ := cmd.Flags().GetString("price")
		category, _ := cmd.Flags().GetString("category")
		inactive, _ := cmd.Flags().GetBool("inactive")
		descr, err := descriptionFlag(cmd)
		if err != nil {
			return err
		}

		price, err := parseMoney(priceStr)
		if err != nil {
			return err
		}
		return withAdmin(models.PermManageCatalog, func(store *db.DB, _ *models.User) error {
			s := &models.Service{
				Name:        strings.TrimSpace(args[0]),
				Description: descr,
				PriceCents:  price,
				Active:      !inactive,
			}
			if category != "" {
				c, err := store.GetCategoryByName(category)
				if err != nil {
					return fmt.Errorf("category %q: %w", category, err)
				}
				s.CategoryID = c.ID
			}
			if err := store.CreateService(s); err != nil {
				return err
			}
			output.Success("CREATED service #%d %s", s.ID, output.Money(s.PriceCents))
			return nil
		})
	},
}

var adminServiceImageCmd = &cobra.Command{
	Use:   "image <service-id> <file>",
	Short: "Upload a service's image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "service")
		if err != nil {
			return err
		}
		return withAdmin(models.PermManageCatalog, func(store *db.DB, _ *models.User) error {
			svc, err := store.GetService(id)
			if err != nil {
				return fmt.Errorf("service %d: %w", id, err)
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			blobs, err := openBlobs(cmd.Context())
			if err != nil {
				return err
			}
			name := filepath.Base(args[1])
			key := blob.ServiceImageKey(svc.ID, name, time.Now())
			info, err := blobs.Put(cmd.Context(), key, f, blob.ContentTypeFor(name))
			if err != nil {
				return err
			}
			if err := store.SetServiceImage(svc.ID, info.Key); err != nil {
				return err
			}
			output.Success("IMAGE %s (%d bytes) stored in %s", info.Key, info.Size, blobs.Driver())
			return nil
		})
	},
}

var adminServiceToggleCmd = &cobra.Command{
	Use:   "toggle <service-id>",
	Short: "Show or hide a service in the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "service")
		if err != nil {
			return err
		}
		return withAdmin(models.PermManageCatalog, func(store *db.DB, _ *models.User) error {
			svc, err := store.GetService(id)
			if err != nil {
				return fmt.Errorf("service %d: %w", id, err)
			}
			if err := store.SetServiceActive(svc.ID, !svc.Active); err != nil {
				return err
			}
			state := "active"
			if svc.Active {
				state = "inactive"
			}
			output.Success("SERVICE #%d is now %s", svc.ID, state)
			return nil
		})
	},
}

// Offers

var adminOfferCmd = &cobra.Command{Use: "offer", Short: "Manage offers"}

var adminOfferAddCmd = &cobra.Command{
	Use:   "add <service-id>",
	Short: "Create a discount on a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "service")
		if err != nil {
			return err
		}
		discount, _ := cmd.Flags().GetInt("discount")
		title, _ := cmd.Flags().GetString("title")
		ends, _ := cmd.Flags().GetString("ends")

		in := shop.OfferInput{ServiceID: id, Title: title, DiscountPercent: discount}
		if ends != "" {
			in.StartsAt = shop.Clock()
			end, err := dateparse.Until(ends, in.StartsAt.Local())
			if err != nil {
				return fmt.Errorf("--ends: %w", err)
			}
			in.EndsAt = end.UTC()
		}
		return withAdmin(models.PermManageOffers, func(store *db.DB, admin *models.User) error {
			o, err := shop.CreateOffer(store, admin.ID, in)
			if err != nil {
				return err
			}
			output.Success("CREATED offer %s", output.FormatOffer(o))
			return nil
		})
	},
}

var adminOfferDeactivateCmd = &cobra.Command{
	Use:   "deactivate <offer-id>",
	Short: "End an offer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "offer")
		if err != nil {
			return err
		}
		return withAdmin(models.PermManageOffers, func(store *db.DB, _ *models.User) error {
			if err := store.DeactivateOffer(id); err != nil {
				return fmt.Errorf("offer %d: %w", id, err)
			}
			output.Success("ENDED offer #%d", id)
			return nil
		})
	},
}

var adminOfferListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all offers, live or not",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(models.PermViewAdmin, func(store *db.DB, _ *models.User) error {
			offers, err := store.ListOffers()
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			for i := range offers {
				line := output.FormatOffer(&offers[i])
				if !offers[i].Live(now) {
					line += "  (ended)"
				}
				fmt.Fprintln(output.Stdout, line)
			}
			return nil
		})
	},
}

// Purchases

var adminPurchaseCmd = &cobra.Command{Use: "purchase", Short: "Review purchases"}

var adminPurchaseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List purchases, pending by default",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		st := models.PurchaseStatus(status)
		if status == "all" {
			st = ""
		} else if !models.IsValidPurchaseStatus(st) {
			return fmt.Errorf("unknown status %q", status)
		}
		return withAdmin(models.PermManagePurchases, func(store *db.DB, _ *models.User) error {
			purchases, err := store.ListPurchases(st)
			if err != nil {
				return err
			}
			if len(purchases) == 0 {
				output.Info("No purchases")
				return nil
			}
			names := serviceNames(store)
			for i := range purchases {
				buyer := ""
				if u, err := store.GetUser(purchases[i].UserID); err == nil {
					buyer = "  " + u.Email
				}
				fmt.Fprintln(output.Stdout, output.FormatPurchase(&purchases[i], names[purchases[i].ServiceID])+buyer)
			}
			return nil
		})
	},
}

func decideCmd(use, short string, approve bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <purchase-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "purchase")
			if err != nil {
				return err
			}
			return withAdmin(models.PermManagePurchases, func(store *db.DB, admin *models.User) error {
				p, err := shop.Decide(store, admin.ID, id, approve)
				if err != nil {
					return err
				}
				output.Success("PURCHASE #%d %s", p.ID, output.FormatPurchaseStatus(p.Status))
				return nil
			})
		},
	}
}

func init() {
	for _, c := range []*cobra.Command{adminRoleAddCmd, adminPermissionAddCmd, adminCategoryAddCmd, adminServiceAddCmd} {
		c.Flags().String("description", "", "description (- for stdin, @file to read a file)")
	}
	adminServiceAddCmd.Flags().String("price", "0", "price in dollars, e.g. 12.99")
	adminServiceAddCmd.Flags().String("category", "", "category name")
	adminServiceAddCmd.Flags().Bool("inactive", false, "create hidden")
	adminUserAssignRoleCmd.Flags().Bool("remove", false, "remove the role instead")
	adminOfferAddCmd.Flags().Int("discount", 0, "discount percent (1-99)")
	adminOfferAddCmd.Flags().String("title", "", "offer title (default: derived)")
	adminOfferAddCmd.Flags().String("ends", "", "when the offer ends: +7d, friday, 2026-12-31 (default: open ended)")
	adminPurchaseListCmd.Flags().String("status", string(models.PurchasePending), "pending, approved, rejected, cancelled or all")

	adminRoleCmd.AddCommand(adminRoleAddCmd, adminRoleListCmd, adminRoleGrantCmd, adminRoleRevokeCmd)
	adminPermissionCmd.AddCommand(adminPermissionAddCmd, adminPermissionListCmd)
	adminUserCmd.AddCommand(adminUserListCmd, adminUserAssignRoleCmd)
	adminCategoryCmd.AddCommand(adminCategoryAddCmd)
	adminServiceCmd.AddCommand(adminServiceAddCmd, adminServiceImageCmd, adminServiceToggleCmd)
	adminOfferCmd.AddCommand(adminOfferAddCmd, adminOfferDeactivateCmd, adminOfferListCmd)
	adminPurchaseCmd.AddCommand(adminPurchaseListCmd,
		decideCmd("approve", "Approve a pending purchase", true),
		decideCmd("reject", "Reject a pending purchase", false),
	)

	adminCmd.AddCommand(adminRoleCmd, adminPermissionCmd, adminUserCmd, adminCategoryCmd,
		adminServiceCmd, adminOfferCmd, adminPurchaseCmd)
	rootCmd.AddCommand(adminCmd)
}

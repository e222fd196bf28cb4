package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tillpoint/patron/internal/remote"
	"github.com/tillpoint/patron/internal/schema"
	"github.com/tillpoint/patron/internal/store"
	"github.com/tillpoint/patron/internal/ui"
)

var (
	customerFirst   string
	customerLast    string
	customerPhone   string
	customerEmail   string
	customerLoyalty bool
)

var customerCmd = &cobra.Command{
	Use:   "customer",
	Short: "Create or update customers in the remote directory",
}

var customerAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a customer in the remote directory",
	Long: `Create a customer in the remote directory for the selected venue.

The stored record returned by the remote is written into the local cache
immediately, so lookups see it without waiting for the next sync pass.
Unlike check-ins, customer writes have no offline fallback: the remote is
authoritative for identity and must assign the record its id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		venue, err := activeVenue(cmd)
		if err != nil {
			return err
		}
		client := remoteClient()
		if client == nil {
			return fmt.Errorf("no remote configured: set remote_url in config")
		}
		if customerFirst == "" && customerLast == "" {
			return fmt.Errorf("--first or --last is required")
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := client.CreateCustomer(context.Background(), venue, customerFields())
		if err != nil {
			return err
		}
		if err := cacheRecord(st, rec, venue); err != nil {
			return err
		}

		fmt.Printf("%s Created customer %s %s (remote id %d)\n",
			ui.RenderPass("✓"), rec.FirstName, rec.LastName, rec.RemoteID)
		return nil
	},
}

var customerUpdateCmd = &cobra.Command{
	Use:   "update <remote-id>",
	Short: "Update a customer in the remote directory",
	Long: `Replace a customer's fields in the remote directory and refresh the
cached copy with the remote's stored record.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		venue, err := activeVenue(cmd)
		if err != nil {
			return err
		}
		client := remoteClient()
		if client == nil {
			return fmt.Errorf("no remote configured: set remote_url in config")
		}

		var remoteID int64
		if _, err := fmt.Sscanf(args[0], "%d", &remoteID); err != nil || remoteID <= 0 {
			return fmt.Errorf("invalid remote id %q", args[0])
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := client.UpdateCustomer(context.Background(), venue, remoteID, customerFields())
		if err != nil {
			return err
		}
		if err := cacheRecord(st, rec, venue); err != nil {
			return err
		}

		fmt.Printf("%s Updated customer %d\n", ui.RenderPass("✓"), rec.RemoteID)
		return nil
	},
}

func customerFields() remote.CustomerFields {
	return remote.CustomerFields{
		FirstName:     customerFirst,
		LastName:      customerLast,
		Phone:         customerPhone,
		Email:         customerEmail,
		LoyaltyMember: customerLoyalty,
	}
}

// cacheRecord mirrors the remote's stored record locally so the write is
// visible to lookups before the next sync pass.
func cacheRecord(st *store.Store, rec *schema.CustomerRecord, venue string) error {
	if _, err := st.UpsertBatch([]*schema.CustomerRecord{rec}, venue); err != nil {
		return fmt.Errorf("remote write succeeded but caching failed: %w", err)
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{customerAddCmd, customerUpdateCmd} {
		c.Flags().StringVar(&customerFirst, "first", "", "first name")
		c.Flags().StringVar(&customerLast, "last", "", "last name")
		c.Flags().StringVar(&customerPhone, "phone", "", "phone number")
		c.Flags().StringVar(&customerEmail, "email", "", "email address")
		c.Flags().BoolVar(&customerLoyalty, "loyalty", false, "loyalty member")
	}
	customerCmd.AddCommand(customerAddCmd)
	customerCmd.AddCommand(customerUpdateCmd)
	rootCmd.AddCommand(customerCmd)
}

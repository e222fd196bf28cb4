package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tillpoint/patron/internal/schema"
	"github.com/tillpoint/patron/internal/ui"
)

var (
	lookupPhone string
	lookupFirst string
	lookupLast  string
)

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Look up a customer in the local cache",
	Long: `Find a cached customer for the selected venue by phone or by name.

Phone lookup normalizes the input to its trailing 10 digits, so any of
"+1 (509) 555-0182", "509-555-0182" and "5095550182" match the same
record. Name lookup is a case-insensitive exact match on first and last
name. Lookups never touch the network.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		venue, err := activeVenue(cmd)
		if err != nil {
			return err
		}

		byPhone := lookupPhone != ""
		byName := lookupFirst != "" || lookupLast != ""
		if byPhone == byName {
			return fmt.Errorf("pass either --phone or --first/--last")
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		var rec *schema.CustomerRecord
		if byPhone {
			rec, err = st.FindByPhone(lookupPhone, venue)
		} else {
			rec, err = st.FindByName(lookupFirst, lookupLast, venue)
		}
		if err != nil {
			return err
		}

		if rec == nil {
			fmt.Println(ui.RenderDim("No match"))
			return nil
		}

		fmt.Printf("%s %s %s\n", ui.RenderPass("✓"), rec.FirstName, rec.LastName)
		fmt.Printf("   Remote ID: %d\n", rec.RemoteID)
		if rec.Phone != "" {
			fmt.Printf("   Phone:     %s\n", rec.Phone)
		}
		if rec.Email != "" {
			fmt.Printf("   Email:     %s\n", rec.Email)
		}
		if rec.LoyaltyMember {
			fmt.Printf("   Loyalty:   %s\n", ui.RenderAccent("member"))
		}
		return nil
	},
}

func init() {
	lookupCmd.Flags().StringVar(&lookupPhone, "phone", "", "phone number")
	lookupCmd.Flags().StringVar(&lookupFirst, "first", "", "first name")
	lookupCmd.Flags().StringVar(&lookupLast, "last", "", "last name")
	rootCmd.AddCommand(lookupCmd)
}

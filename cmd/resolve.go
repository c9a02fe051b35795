package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/coverpoint/identity-cli/internal/identity"
)

var resolveInput identity.ResolveInput

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a single lead to a contact",
	Long:  "Runs the contact resolver once with the given fields and prints the resulting contact. Intended for admin spot checks.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if resolveInput.AgencyID == 0 {
			return eris.New("resolve: --agency is required")
		}
		if strings.TrimSpace(resolveInput.LastName) == "" {
			return eris.New("resolve: --last-name is required")
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		contact, created, err := env.resolver.Resolve(ctx, resolveInput)
		if err != nil {
			return err
		}

		verb := "matched"
		if created {
			verb = "created"
		}
		fmt.Printf("Contact %d (%s)\n", contact.ID, verb)
		fmt.Printf("  Name:   %s %s\n", contact.FirstName, contact.LastName)
		fmt.Printf("  Key:    %s\n", contact.HouseholdKey)
		fmt.Printf("  Phones: %s\n", strings.Join(contact.Phones, ", "))
		fmt.Printf("  Emails: %s\n", strings.Join(contact.Emails, ", "))
		return nil
	},
}

func init() {
	resolveCmd.Flags().Int64Var(&resolveInput.AgencyID, "agency", 0, "agency id (required)")
	resolveCmd.Flags().StringVar(&resolveInput.FirstName, "first-name", "", "first name")
	resolveCmd.Flags().StringVar(&resolveInput.LastName, "last-name", "", "last name (required)")
	resolveCmd.Flags().StringVar(&resolveInput.PostalCode, "zip", "", "postal code")
	resolveCmd.Flags().StringVar(&resolveInput.Phone, "phone", "", "phone in any format")
	resolveCmd.Flags().StringVar(&resolveInput.Email, "email", "", "email address")
	resolveCmd.Flags().StringVar(&resolveInput.Street, "street", "", "street address")
	resolveCmd.Flags().StringVar(&resolveInput.City, "city", "", "city")
	resolveCmd.Flags().StringVar(&resolveInput.State, "state", "", "state")
	rootCmd.AddCommand(resolveCmd)
}

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/isey69/sale-forces-crm-sub000"
)

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return context.WithTimeout(cmd.Context(), timeout)
}

func customerRequest(cmd *cobra.Command) crm.CustomerRequest {
	name, _ := cmd.Flags().GetString("name")
	customerType, _ := cmd.Flags().GetString("type")
	email, _ := cmd.Flags().GetString("email")
	phone, _ := cmd.Flags().GetString("phone")
	company, _ := cmd.Flags().GetString("company")
	notes, _ := cmd.Flags().GetString("notes")
	labels, _ := cmd.Flags().GetStringSlice("label")
	return crm.CustomerRequest{
		Name:    name,
		Type:    customerType,
		Email:   email,
		Phone:   phone,
		Company: company,
		Notes:   notes,
		Labels:  labels,
	}
}

func addCustomerFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "customer name")
	cmd.Flags().String("type", "CPA", "customer type (CPA or NonCPA)")
	cmd.Flags().String("email", "", "email address")
	cmd.Flags().String("phone", "", "phone number")
	cmd.Flags().String("company", "", "company")
	cmd.Flags().String("notes", "", "free-form notes")
	cmd.Flags().StringSlice("label", nil, "label, repeatable")
}

func customerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customer",
		Short: "Manage customers",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a customer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			customer, err := newClient(cmd).CreateCustomer(ctx, customerRequest(cmd))
			if err != nil {
				return err
			}
			return printJSON(cmd, customer)
		},
	}
	addCustomerFlags(createCmd)
	cmd.AddCommand(createCmd)

	updateCmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Replace the fields of a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			customer, err := newClient(cmd).UpdateCustomer(ctx, args[0], customerRequest(cmd))
			if err != nil {
				return err
			}
			return printJSON(cmd, customer)
		},
	}
	addCustomerFlags(updateCmd)
	cmd.AddCommand(updateCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "get [id]",
		Short: "Show a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			customer, err := newClient(cmd).GetCustomer(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, customer)
		},
	})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List customers",
		RunE: func(cmd *cobra.Command, args []string) error {
			customerType, _ := cmd.Flags().GetString("type")
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			customers, err := newClient(cmd).ListCustomers(ctx, customerType)
			if err != nil {
				return err
			}
			return printJSON(cmd, customers)
		},
	}
	listCmd.Flags().String("type", "", "only customers of this type")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a customer and every relationship it takes part in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			return newClient(cmd).DeleteCustomer(ctx, args[0])
		},
	})

	return cmd
}

package main

import (
	"github.com/spf13/cobra"
)

func relationshipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "relationship",
		Aliases: []string{"rel"},
		Short:   "Manage relationships between customers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add [customerA] [customerB]",
		Short: "Link two customers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			return newClient(cmd).AddRelationship(ctx, args[0], args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove [customerA] [customerB]",
		Short: "Unlink two customers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			return newClient(cmd).RemoveRelationship(ctx, args[0], args[1])
		},
	})

	listCmd := &cobra.Command{
		Use:   "list [customer]",
		Short: "List the partners of a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, _ := cmd.Flags().GetBool("ids")
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			c := newClient(cmd)
			if ids {
				rc, err := c.RelationshipCache(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, rc)
			}
			partners, err := c.GetRelationships(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, partners)
		},
	}
	listCmd.Flags().Bool("ids", false, "print the rebuilt partner id list only")
	cmd.AddCommand(listCmd)

	return cmd
}

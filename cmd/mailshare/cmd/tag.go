package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robfisher/mailshare/internal/query"
	"github.com/spf13/cobra"
)

var tagCreateAuto bool

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Create tags and tag mails",
}

var tagAddCmd = &cobra.Command{
	Use:   "add <mail-id> <tag>",
	Short: "Add a tag to a mail, creating the tag if needed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mailID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || mailID <= 0 {
			return fmt.Errorf("invalid mail id %q", args[0])
		}
		name := strings.TrimSpace(args[1])
		if name == "" {
			return fmt.Errorf("tag name is empty")
		}

		st, err := openLocalStore()
		if err != nil {
			return err
		}
		defer st.Close()

		mail, err := query.NewSQLiteEngine(st.DB()).GetMail(cmd.Context(), mailID)
		if err != nil {
			return fmt.Errorf("get mail: %w", err)
		}
		if mail == nil {
			return fmt.Errorf("mail %d not found", mailID)
		}

		tag, err := st.GetOrCreateTag(name)
		if err != nil {
			return fmt.Errorf("get tag: %w", err)
		}
		if err := st.AddTag(mailID, tag.ID); err != nil {
			return fmt.Errorf("add tag: %w", err)
		}
		fmt.Printf("Tagged mail %d with %s (tag %d)\n", mailID, tag.Name, tag.ID)
		return nil
	},
}

var tagCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a tag",
	Long: `Create a tag. With --auto the tag is applied at import to every mail
whose subject or body contains the tag name, ignoring case.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		if name == "" {
			return fmt.Errorf("tag name is empty")
		}

		st, err := openLocalStore()
		if err != nil {
			return err
		}
		defer st.Close()

		tag, err := st.CreateTag(name, tagCreateAuto)
		if err != nil {
			return fmt.Errorf("create tag: %w", err)
		}
		kind := "tag"
		if tag.Auto {
			kind = "auto tag"
		}
		fmt.Printf("Created %s %s (id %d)\n", kind, tag.Name, tag.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tagCmd)
	tagCmd.AddCommand(tagAddCmd)
	tagCmd.AddCommand(tagCreateCmd)
	tagCreateCmd.Flags().BoolVar(&tagCreateAuto, "auto", false, "Apply the tag automatically at import")
}

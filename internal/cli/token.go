package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ministore/recordstore/internal/api"
)

func newTokenCommand(a *app) *cobra.Command {
	var (
		collection string
		id         string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a record",
		Long: `Issue an HS256 bearer token signed with auth.secret. A token for the
superuser collection bypasses every rule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, restore, err := a.load(cmd)
			if err != nil {
				return err
			}
			defer restore()

			if cfg.Auth.Secret == "" {
				return errors.New("auth.secret is not configured")
			}
			if collection == "" {
				collection = cfg.Auth.SuperuserCollection
			}

			tok, err := api.IssueToken([]byte(cfg.Auth.Secret), collection, id, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&collection, "collection", "", "collection of the record (default: the superuser collection)")
	fs.StringVar(&id, "id", "", "record id")
	fs.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

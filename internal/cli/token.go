package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sharing/internal/auth"
)

// TokenOptions holds flags for the token command
type TokenOptions struct {
	*RootOptions
	Secret     string
	UserID     string
	Domain     string
	ClassHash  string
	OfferingID string
	UserType   string
	TTL        time.Duration
}

// NewTokenCommand signs a portal-style token for local classrooms and testing
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a portal token signed with the server secret",
		Long: `Issues a token carrying the portal claims a session needs. The secret must
match the server's auth token secret (SHARESTORE_AUTH_TOKEN_SECRET).

Examples:
  sharectl token --secret s3cret --user s1 --domain https://learn.concord.org/ \
    --class-hash abc --offering 101`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.NewAuthenticator(opts.Secret).IssueToken(opts.UserID, &auth.PortalClaims{
				Domain:     opts.Domain,
				UserType:   opts.UserType,
				UserID:     opts.UserID,
				ClassHash:  opts.ClassHash,
				OfferingID: opts.OfferingID,
			}, opts.TTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Secret, "secret", "", "signing secret (required)")
	_ = cmd.MarkFlagRequired("secret")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "student user id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "portal domain (required)")
	_ = cmd.MarkFlagRequired("domain")
	cmd.Flags().StringVar(&opts.ClassHash, "class-hash", "", "class hash (required)")
	_ = cmd.MarkFlagRequired("class-hash")
	cmd.Flags().StringVar(&opts.OfferingID, "offering", "", "offering id (required)")
	_ = cmd.MarkFlagRequired("offering")
	cmd.Flags().StringVar(&opts.UserType, "user-type", "learner", "portal user type")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime (0 = no expiry)")

	return cmd
}

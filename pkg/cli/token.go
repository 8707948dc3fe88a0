package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/restwire/pkg/auth"
	"github.com/getmockd/restwire/pkg/cli/internal/parse"
)

// TokenOutput is the result of restwire token issue.
type TokenOutput struct {
	Token     string `json:"access_token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
	Algorithm string `json:"algorithm"`
}

// IntrospectOutput is the result of restwire token introspect.
type IntrospectOutput struct {
	Active    bool           `json:"active" yaml:"active"`
	Subject   string         `json:"sub,omitempty" yaml:"sub,omitempty"`
	Scope     string         `json:"scope,omitempty" yaml:"scope,omitempty"`
	ExpiresAt int64          `json:"exp,omitempty" yaml:"exp,omitempty"`
	IssuedAt  int64          `json:"iat,omitempty" yaml:"iat,omitempty"`
	Issuer    string         `json:"iss,omitempty" yaml:"iss,omitempty"`
	TokenID   string         `json:"jti,omitempty" yaml:"jti,omitempty"`
	Claims    map[string]any `json:"claims,omitempty" yaml:"claims,omitempty"`
}

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and inspect tokens with the configured authorization server",
	}
	cmd.AddCommand(newTokenIssueCmd(a), newTokenIntrospectCmd(a))
	return cmd
}

func (a *app) authProvider() (*auth.Provider, func(), error) {
	c, err := a.container()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = c.Close() }
	if c.Auth == nil {
		closeFn()
		return nil, nil, ErrAuthDisabled
	}
	return c.Auth, closeFn, nil
}

func newTokenIssueCmd(a *app) *cobra.Command {
	var (
		subject string
		scope   string
		claims  []string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed token",
		Long: `Issue a signed token. Tokens signed with a generated RS256 key are only
valid for the lifetime of this process; configure oauth2.secret for tokens that
can be handed to later commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := parse.Claims(claims)
			if err != nil {
				return err
			}
			if subject != "" {
				extra["sub"] = subject
			}
			if scope != "" {
				extra["scope"] = scope
			}

			provider, done, err := a.authProvider()
			if err != nil {
				return err
			}
			defer done()

			token, err := provider.Issue(extra)
			if err != nil {
				return err
			}
			out := TokenOutput{
				Token:     token,
				TokenType: "Bearer",
				ExpiresIn: int64(provider.TokenExpiry().Seconds()),
				Algorithm: provider.Algorithm(),
			}
			return a.printResult(out, func() { fmt.Fprintln(a.stdout, out.Token) })
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "Subject claim")
	cmd.Flags().StringVar(&scope, "scope", "", "Space-separated scopes")
	cmd.Flags().StringArrayVar(&claims, "claim", nil, "Extra claim key=value; JSON values are decoded (repeatable)")
	return cmd
}

func newTokenIntrospectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "introspect TOKEN",
		Short: "Describe a token (RFC 7662 style)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, done, err := a.authProvider()
			if err != nil {
				return err
			}
			defer done()

			token := args[0]
			if bearer, ok := auth.BearerToken(token); ok {
				token = bearer
			}
			info := provider.Introspect(token)
			return a.printYAML(IntrospectOutput{
				Active:    info.Active,
				Subject:   info.Subject,
				Scope:     info.Scope,
				ExpiresAt: info.ExpiresAt,
				IssuedAt:  info.IssuedAt,
				Issuer:    info.Issuer,
				TokenID:   info.TokenID,
				Claims:    info.Claims,
			})
		},
	}
}

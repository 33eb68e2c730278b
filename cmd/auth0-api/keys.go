package main

import (
	"crypto/rsa"

	"github.com/spf13/cobra"
	"github.com/upb/auth0-api/app"
)

type keyInfo struct {
	KeyID     string `json:"kid"`
	Algorithm string `json:"alg,omitempty"`
	Use       string `json:"use,omitempty"`
	Bits      int    `json:"bits,omitempty"`
}

func newKeysCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect the tenant signing keys",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Short:   "Fetch the JWKS and list the signing keys tokens may use",
		Example: "  auth0-api keys list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load(cmd)
			if err != nil {
				return err
			}

			deps, err := app.NewDependencies(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = deps.Close(cmd.Context()) }()

			keys, err := deps.Resolver.FetchKeySet(cmd.Context())
			if err != nil {
				return err
			}

			out := make([]keyInfo, 0, len(keys))
			for _, k := range keys {
				info := keyInfo{KeyID: k.KeyID, Algorithm: k.Algorithm, Use: k.Use}
				if pub, ok := k.Key.(*rsa.PublicKey); ok {
					info.Bits = pub.N.BitLen()
				}
				out = append(out, info)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	})
	return cmd
}

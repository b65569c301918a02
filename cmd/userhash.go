package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clarity-dx/referral-portal/internal/auth"
)

var userHashSalt string

// user-hash produces the salt and password hash for an auth.users config
// entry, so plaintext passwords never land in config files.
var userHashCmd = &cobra.Command{
	Use:   "user-hash <password>",
	Short: "Generate a salted password hash for the users config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		salt := userHashSalt
		if salt == "" {
			buf := make([]byte, 16)
			if _, err := rand.Read(buf); err != nil {
				return err
			}
			salt = hex.EncodeToString(buf)
		}

		fmt.Printf("salt: %s\npassword_sha256: %s\n", salt, auth.HashPassword(salt, args[0]))
		return nil
	},
}

func init() {
	userHashCmd.Flags().StringVar(&userHashSalt, "salt", "", "salt to use (random when empty)")
	rootCmd.AddCommand(userHashCmd)
}

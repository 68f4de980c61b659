package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var loginPassword string

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Authenticate against the data-sync service",
	Long: `Authenticate with the service and save the session to the profile.

The password is hashed locally before it is sent; the plaintext never
leaves this machine.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password (prompted when omitted)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	username := args[0]

	password := loginPassword
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	client, prof, err := newClient()
	if err != nil {
		return err
	}

	user, err := client.Login(cmd.Context(), username, password)
	if err != nil {
		return err
	}

	prof.Username = user.Username
	prof.AccessToken, prof.RefreshToken = client.Tokens()
	if err := saveProfile(prof); err != nil {
		return err
	}

	fmt.Printf("Logged in as %s\n", user.Username)
	return nil
}

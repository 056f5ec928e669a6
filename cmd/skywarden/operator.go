package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Manage operator credentials",
}

var operatorAddCmd = &cobra.Command{
	Use:   "add <operator-id>",
	Short: "Register a new operator credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runOperatorAdd,
}

func init() {
	rootCmd.AddCommand(operatorCmd)
	operatorCmd.AddCommand(operatorAddCmd)
}

func runOperatorAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	operatorID := args[0]
	if operatorID == "" {
		return errors.New("operator id must not be empty")
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return err
	}
	secretHex := hex.EncodeToString(secret)
	if err := a.identity.AddOperator(operatorID, secretHex); err != nil {
		return err
	}
	if _, err := a.auditor.Log("operator_added", map[string]any{"operator_id": operatorID}); err != nil {
		return err
	}

	fmt.Printf("Operator ID:     %s\n", operatorID)
	fmt.Printf("Operator secret: %s\n", secretHex)
	fmt.Println()
	fmt.Println("Store the operator secret now. It is not saved and cannot be recovered.")
	return nil
}

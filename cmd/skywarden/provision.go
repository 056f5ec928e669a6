package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zypherlabs/skywarden/internal/identity"
	"github.com/zypherlabs/skywarden/internal/ids"
)

var provisionFlags struct {
	orgID string
}

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Generate the drone's identity",
	Long: `Generate the device keypair, hardware fingerprint, and initial
operator credential. Fails if an identity already exists.`,
	RunE: runProvision,
}

func init() {
	rootCmd.AddCommand(provisionCmd)

	provisionCmd.Flags().StringVar(&provisionFlags.orgID, "org", "", "organization id to bind the identity to")
}

func runProvision(cmd *cobra.Command, args []string) error {
	orgID := provisionFlags.orgID
	if orgID == "" {
		orgID = cfg.Drone.OrgID
	}
	if orgID == "" {
		return errors.New("organization id required: pass --org or set drone.org_id")
	}

	id, err := identity.Open(cfg.Drone.IdentityDir, ids.NewGenerator())
	if err != nil {
		return err
	}
	res, err := id.Provision(orgID)
	if err != nil {
		if errors.Is(err, identity.ErrAlreadyProvisioned) {
			return fmt.Errorf("identity already exists in %s, refusing to overwrite", cfg.Drone.IdentityDir)
		}
		return err
	}

	fmt.Printf("Drone ID:     %s\n", res.DroneID)
	fmt.Printf("Organization: %s\n", res.OrgID)
	fmt.Printf("Fingerprint:  %s\n", res.HardwareFingerprint)
	fmt.Println()
	fmt.Printf("Operator ID:     %s\n", res.OperatorID)
	fmt.Printf("Operator secret: %s\n", res.OperatorSecret)
	fmt.Println()
	fmt.Println("Store the operator secret now. It is not saved and cannot be recovered.")
	return nil
}

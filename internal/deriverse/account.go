package deriverse

import (
	"fmt"

	"deriverse-analytics/internal/solana"
)

// clientSeed is the PDA seed prefix for per-wallet client accounts.
const clientSeed = "client"

// ClientAccountAddress derives the trading (client) account address for
// a wallet under the given program. Every Deriverse user has at most
// one such account; a wallet without one has never traded.
func ClientAccountAddress(wallet, programID string) (string, error) {
	if programID == "" {
		programID = ProgramID
	}

	walletBytes, err := solana.DecodePubkey(wallet)
	if err != nil {
		return "", fmt.Errorf("wallet %s: %w", wallet, err)
	}
	programBytes, err := solana.DecodePubkey(programID)
	if err != nil {
		return "", fmt.Errorf("program %s: %w", programID, err)
	}

	return solana.DerivePDA([][]byte{[]byte(clientSeed), walletBytes}, programBytes)
}

// ReportTypeLabel names a report tag for the raw-log endpoint.
func ReportTypeLabel(tag int) string {
	switch tag {
	case 19, 25:
		return "perpFillOrder"
	case 11, 16:
		return "spotFillOrder"
	case 10:
		return "spotPlaceOrder"
	case 14, 18:
		return "perpPlaceOrder"
	case 15, 23:
		return "perpFees"
	case 20:
		return "perpOpenOrder"
	case 21:
		return "perpOrderCancel"
	case 24:
		return "perpFunding"
	case 27:
		return "perpSocLoss"
	}
	return fmt.Sprintf("unknown_%d", tag)
}

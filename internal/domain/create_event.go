package domain

// CreateEvent represents a pump.fun token creation observed on-chain.
// Instances are immutable after classification and are copied by value to
// every subscriber; the JSON tags are the external wire contract for the
// event stream.
type CreateEvent struct {
	Signature      string `json:"signature"`       // base-58 transaction signature
	MintAddress    string `json:"mint_address"`    // base-58 mint of the created token
	CreatorAddress string `json:"creator_address"` // base-58 first account key (fee payer)
	Slot           uint64 `json:"slot"`            // ledger slot the transaction landed in
}

package geyser

// SubscribeFilter selects which transactions the upstream streams.
type SubscribeFilter struct {
	// AccountInclude lists program/account addresses a transaction must
	// mention to be streamed.
	AccountInclude []string
	// Vote includes vote transactions when true.
	Vote bool
	// Failed includes failed transactions when true.
	Failed bool
	// Commitment is the confirmation level required before a transaction is
	// reported ("processed", "confirmed" or "finalized").
	Commitment string
}

// Update is one notification from the upstream stream. Only the transaction
// variant is produced by this client; other update kinds arrive as frames
// the client skips.
type Update struct {
	Transaction *TransactionUpdate
}

// TransactionUpdate carries one transaction notification.
type TransactionUpdate struct {
	Slot        uint64
	Transaction *TransactionInfo
}

// TransactionInfo is the transaction envelope plus execution metadata.
type TransactionInfo struct {
	// Signature is the primary transaction signature. May be empty; the
	// embedded signature list is the fallback.
	Signature   []byte
	Transaction *Transaction
	Meta        *TransactionMeta
}

// Transaction is the signed transaction envelope.
type Transaction struct {
	Signatures [][]byte
	Message    *Message
}

// Message is the transaction message. The first account key is the fee
// payer.
type Message struct {
	AccountKeys [][]byte
}

// TransactionMeta is the post-execution metadata attached to a transaction
// notification.
type TransactionMeta struct {
	Failed            bool
	Fee               uint64
	LogMessages       []string
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TokenBalance is one entry of the pre/post token balance lists.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
}

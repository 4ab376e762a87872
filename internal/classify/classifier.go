// Package classify turns raw transaction updates into create events.
package classify

import (
	"strings"
	"unicode/utf8"

	"github.com/mr-tron/base58"

	"pumpfeed/internal/domain"
	"pumpfeed/internal/geyser"
)

const (
	// PumpFunProgram is the pump.fun bonding curve program ID.
	PumpFunProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

	// systemPlaceholder is the all-ones system program address; token
	// balance entries carrying it are native SOL bookkeeping, never a
	// created mint.
	systemPlaceholder = "11111111111111111111111111111111"

	// vanitySuffix: pump.fun grinds mint addresses to end with this.
	vanitySuffix = "pump"

	createMarker   = "Instruction: Create"
	createV2Marker = "Instruction: CreateV2"
)

// Classifier decides whether a transaction update is a token creation on
// the target program and extracts the event fields. It holds no mutable
// state and performs no I/O; Classify is safe for concurrent use.
type Classifier struct {
	programID string
}

// New creates a classifier for the pump.fun program.
func New() *Classifier {
	return NewForProgram(PumpFunProgram)
}

// NewForProgram creates a classifier targeting a specific program ID.
func NewForProgram(programID string) *Classifier {
	return &Classifier{programID: programID}
}

// Classify returns the create event represented by the update, or nil when
// the update is not a creation transaction. Partial or malformed updates
// yield nil, never a partially filled event.
func (c *Classifier) Classify(u *geyser.Update) *domain.CreateEvent {
	if u == nil || u.Transaction == nil {
		return nil
	}
	txu := u.Transaction
	info := txu.Transaction
	if info == nil {
		return nil
	}

	if !c.isCreate(info) {
		return nil
	}

	signature := extractSignature(info)
	if signature == "" {
		return nil
	}

	creator := extractCreator(info)
	if creator == "" {
		return nil
	}

	mint := extractMint(info.Meta)
	if mint == "" {
		return nil
	}

	return &domain.CreateEvent{
		Signature:      signature,
		MintAddress:    mint,
		CreatorAddress: creator,
		Slot:           txu.Slot,
	}
}

// isCreate reports whether the transaction logs show a create instruction
// on the target program. Plain Create only counts when the V2 marker is
// absent from the same log batch, so a CreateV2 transaction is matched
// once, on the V2 branch.
func (c *Classifier) isCreate(info *geyser.TransactionInfo) bool {
	if info.Meta == nil || len(info.Meta.LogMessages) == 0 {
		return false
	}

	logText := strings.Join(info.Meta.LogMessages, "\n")
	if !utf8.ValidString(logText) {
		return false
	}

	if !strings.Contains(logText, c.programID) {
		return false
	}

	isCreateV2 := strings.Contains(logText, createV2Marker)
	isCreate := strings.Contains(logText, createMarker) && !isCreateV2

	return isCreate || isCreateV2
}

// extractSignature prefers the direct signature field, falling back to the
// first entry of the envelope's signature list.
func extractSignature(info *geyser.TransactionInfo) string {
	if len(info.Signature) > 0 {
		return base58.Encode(info.Signature)
	}
	if info.Transaction != nil && len(info.Transaction.Signatures) > 0 {
		if first := info.Transaction.Signatures[0]; len(first) > 0 {
			return base58.Encode(first)
		}
	}
	return ""
}

// extractCreator returns the first account key of the message: the fee
// payer, which pump.fun requires to be the token creator.
func extractCreator(info *geyser.TransactionInfo) string {
	if info.Transaction == nil || info.Transaction.Message == nil {
		return ""
	}
	keys := info.Transaction.Message.AccountKeys
	if len(keys) == 0 || len(keys[0]) == 0 {
		return ""
	}
	return base58.Encode(keys[0])
}

// extractMint infers the created mint by diffing the post-execution token
// balances against the pre-execution set: the created mint is the one that
// appears only after execution. Among new mints the first carrying the
// pump.fun vanity suffix wins, else the first in encounter order.
func extractMint(meta *geyser.TransactionMeta) string {
	if meta == nil {
		return ""
	}

	preMints := make(map[string]struct{}, len(meta.PreTokenBalances))
	for _, tb := range meta.PreTokenBalances {
		if tb.Mint != "" {
			preMints[tb.Mint] = struct{}{}
		}
	}

	var candidates []string
	for _, tb := range meta.PostTokenBalances {
		mint := tb.Mint
		if mint == "" {
			continue
		}
		if _, seen := preMints[mint]; seen {
			continue
		}
		if strings.Contains(mint, systemPlaceholder) {
			continue
		}
		candidates = append(candidates, mint)
	}

	for _, mint := range candidates {
		if strings.HasSuffix(mint, vanitySuffix) {
			return mint
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

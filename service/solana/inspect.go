package solana

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// System Program instruction types
const (
	SystemProgramTransferInstruction = uint32(2)
)

// Token Program instruction types
const (
	TokenProgramTransferInstruction        = uint8(3)
	TokenProgramTransferCheckedInstruction = uint8(12)
)

// Associated Token Account program instruction types. The original Create
// instruction carries no data at all.
const (
	AssociatedTokenCreateInstruction           = uint8(0)
	AssociatedTokenCreateIdempotentInstruction = uint8(1)
)

// InstructionKind names a decoded instruction.
type InstructionKind string

const (
	KindSystemTransfer          InstructionKind = "system_transfer"
	KindTokenTransfer           InstructionKind = "token_transfer"
	KindTokenTransferChecked    InstructionKind = "token_transfer_checked"
	KindCreateAssociatedAccount InstructionKind = "create_associated_account"
	KindUnknown                 InstructionKind = "unknown"
)

// InstructionSummary is a readable view of one compiled instruction.
// Fields that do not apply to Kind are left empty.
type InstructionSummary struct {
	Kind        InstructionKind `json:"kind"`
	Program     string          `json:"program"`
	Amount      uint64          `json:"amount,omitempty"`
	Decimals    *uint8          `json:"decimals,omitempty"`
	Source      string          `json:"source,omitempty"`
	Destination string          `json:"destination,omitempty"`
	Mint        string          `json:"mint,omitempty"`
	Authority   string          `json:"authority,omitempty"`
	Payer       string          `json:"payer,omitempty"`
}

// InspectInstructions decodes the instructions of tx that a distribution
// builds: system transfers, SPL token transfers and associated account
// creation. Anything else is reported as KindUnknown.
func InspectInstructions(tx *solana.Transaction) ([]InstructionSummary, error) {
	if tx == nil {
		return nil, fmt.Errorf("nil transaction")
	}

	accountKeys := tx.Message.AccountKeys
	out := make([]InstructionSummary, 0, len(tx.Message.Instructions))
	for i, instruction := range tx.Message.Instructions {
		if int(instruction.ProgramIDIndex) >= len(accountKeys) {
			return nil, fmt.Errorf("instruction %d: program index out of bounds", i)
		}
		programID := accountKeys[instruction.ProgramIDIndex]

		var (
			summary InstructionSummary
			err     error
		)
		switch {
		case programID.Equals(solana.SystemProgramID):
			summary, err = inspectSystemTransfer(instruction, accountKeys)
		case programID.Equals(solana.TokenProgramID):
			summary, err = inspectTokenTransfer(instruction, accountKeys)
		case programID.Equals(solana.SPLAssociatedTokenAccountProgramID):
			summary, err = inspectCreateAssociatedAccount(instruction, accountKeys)
		default:
			summary = InstructionSummary{Kind: KindUnknown}
		}
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		summary.Program = programID.String()
		out = append(out, summary)
	}
	return out, nil
}

func accountAt(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey, pos int) (string, error) {
	if pos >= len(instruction.Accounts) {
		return "", fmt.Errorf("missing account %d", pos)
	}
	idx := instruction.Accounts[pos]
	if int(idx) >= len(accountKeys) {
		return "", fmt.Errorf("account index %d out of bounds", idx)
	}
	return accountKeys[idx].String(), nil
}

func accountsAt(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey, positions ...int) ([]string, error) {
	out := make([]string, len(positions))
	for i, pos := range positions {
		a, err := accountAt(instruction, accountKeys, pos)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// inspectSystemTransfer decodes a System Program Transfer.
func inspectSystemTransfer(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey) (InstructionSummary, error) {
	// System Transfer instruction format:
	// [0..4]  = instruction type (u32, should be 2 for Transfer)
	// [4..12] = lamports (u64)
	// accounts: [from, to]
	if len(instruction.Data) < 12 ||
		binary.LittleEndian.Uint32(instruction.Data[0:4]) != SystemProgramTransferInstruction {
		return InstructionSummary{Kind: KindUnknown}, nil
	}

	accts, err := accountsAt(instruction, accountKeys, 0, 1)
	if err != nil {
		return InstructionSummary{}, err
	}
	return InstructionSummary{
		Kind:        KindSystemTransfer,
		Amount:      binary.LittleEndian.Uint64(instruction.Data[4:12]),
		Source:      accts[0],
		Destination: accts[1],
		Authority:   accts[0],
	}, nil
}

// inspectTokenTransfer decodes SPL Transfer and TransferChecked.
func inspectTokenTransfer(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey) (InstructionSummary, error) {
	if len(instruction.Data) == 0 {
		return InstructionSummary{}, fmt.Errorf("empty token instruction data")
	}

	switch instruction.Data[0] {
	case TokenProgramTransferInstruction:
		// [0] type, [1..9] amount; accounts: [source, destination, authority]
		if len(instruction.Data) < 9 {
			return InstructionSummary{}, fmt.Errorf("transfer instruction data too short")
		}
		accts, err := accountsAt(instruction, accountKeys, 0, 1, 2)
		if err != nil {
			return InstructionSummary{}, err
		}
		return InstructionSummary{
			Kind:        KindTokenTransfer,
			Amount:      binary.LittleEndian.Uint64(instruction.Data[1:9]),
			Source:      accts[0],
			Destination: accts[1],
			Authority:   accts[2],
		}, nil

	case TokenProgramTransferCheckedInstruction:
		// [0] type, [1..9] amount, [9] decimals
		// accounts: [source, mint, destination, authority]
		if len(instruction.Data) < 10 {
			return InstructionSummary{}, fmt.Errorf("transferChecked instruction data too short")
		}
		accts, err := accountsAt(instruction, accountKeys, 0, 1, 2, 3)
		if err != nil {
			return InstructionSummary{}, err
		}
		decimals := instruction.Data[9]
		return InstructionSummary{
			Kind:        KindTokenTransferChecked,
			Amount:      binary.LittleEndian.Uint64(instruction.Data[1:9]),
			Decimals:    &decimals,
			Source:      accts[0],
			Mint:        accts[1],
			Destination: accts[2],
			Authority:   accts[3],
		}, nil

	default:
		return InstructionSummary{Kind: KindUnknown}, nil
	}
}

// inspectCreateAssociatedAccount decodes an associated token account creation.
func inspectCreateAssociatedAccount(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey) (InstructionSummary, error) {
	if len(instruction.Data) > 0 &&
		instruction.Data[0] != AssociatedTokenCreateInstruction &&
		instruction.Data[0] != AssociatedTokenCreateIdempotentInstruction {
		return InstructionSummary{Kind: KindUnknown}, nil
	}

	// accounts: [payer, associated account, wallet, mint, system program, token program, ...]
	accts, err := accountsAt(instruction, accountKeys, 0, 1, 2, 3)
	if err != nil {
		return InstructionSummary{}, err
	}
	return InstructionSummary{
		Kind:        KindCreateAssociatedAccount,
		Payer:       accts[0],
		Destination: accts[1],
		Authority:   accts[2],
		Mint:        accts[3],
	}, nil
}

package solana

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// SPL token instruction tags. Token-2022 shares the layout, so these are built
// by hand against whichever program owns the mint.
const (
	tokenIxBurn            = 8
	tokenIxCloseAccount    = 9
	tokenIxTransferChecked = 12
	tokenIxSyncNative      = 17

	ataIxCreateIdempotent = 1
)

var Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

// PDAResult is a derived address with its bump seed.
type PDAResult struct {
	Address solana.PublicKey `json:"address"`
	Bump    uint8            `json:"bump"`
}

// GetAssociatedTokenAddress derives the ATA of owner for mint under tokenProgram.
func GetAssociatedTokenAddress(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindProgramAddress(
		[][]byte{owner[:], tokenProgram[:], mint[:]},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to find associated token address: %w", err)
	}
	return address, nil
}

func encodeTokenData(tag uint8, amount *uint64, decimals *uint8) []byte {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	_ = enc.WriteUint8(tag)
	if amount != nil {
		_ = enc.WriteUint64(*amount, binary.LittleEndian)
	}
	if decimals != nil {
		_ = enc.WriteUint8(*decimals)
	}
	return buf.Bytes()
}

func transferCheckedInstruction(program, source, mint, dest, owner solana.PublicKey, amount uint64, decimals uint8) solana.Instruction {
	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(source).WRITE(),
		solana.Meta(mint),
		solana.Meta(dest).WRITE(),
		solana.Meta(owner).SIGNER(),
	}, encodeTokenData(tokenIxTransferChecked, &amount, &decimals))
}

func burnInstruction(program, account, mint, owner solana.PublicKey, amount uint64) solana.Instruction {
	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(account).WRITE(),
		solana.Meta(mint).WRITE(),
		solana.Meta(owner).SIGNER(),
	}, encodeTokenData(tokenIxBurn, &amount, nil))
}

func syncNativeInstruction(account solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(solana.TokenProgramID, solana.AccountMetaSlice{
		solana.Meta(account).WRITE(),
	}, encodeTokenData(tokenIxSyncNative, nil, nil))
}

func closeAccountInstruction(program, account, dest, owner solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(account).WRITE(),
		solana.Meta(dest).WRITE(),
		solana.Meta(owner).SIGNER(),
	}, encodeTokenData(tokenIxCloseAccount, nil, nil))
}

func createATAIdempotentInstruction(payer, owner, mint, tokenProgram solana.PublicKey) (solana.Instruction, solana.PublicKey, error) {
	ata, err := GetAssociatedTokenAddress(owner, mint, tokenProgram)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	ix := solana.NewInstruction(solana.SPLAssociatedTokenAccountProgramID, solana.AccountMetaSlice{
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(ata).WRITE(),
		solana.Meta(owner),
		solana.Meta(mint),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(tokenProgram),
	}, []byte{ataIxCreateIdempotent})
	return ix, ata, nil
}

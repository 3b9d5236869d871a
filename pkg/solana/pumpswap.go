package solana

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// PumpSwap (PumpAMM) program constants
var (
	PumpAmmProgramID = solana.MustPublicKeyFromBase58("pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA")
	WSolMint         = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

// PumpSwap PDA seeds
var (
	SeedGlobalConfig           = []byte("global_config")
	SeedPool                   = []byte("pool")
	SeedPoolLpMint             = []byte("pool_lp_mint")
	SeedEventAuthorityPumpSwap = []byte("__event_authority")
)

var depositDiscriminator = anchorDiscriminator("global", "deposit")

// anchorDiscriminator is the first 8 bytes of sha256("<namespace>:<name>").
func anchorDiscriminator(namespace, name string) []byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	return sum[:8]
}

func findPDA(programID solana.PublicKey, what string, seeds ...[]byte) (PDAResult, error) {
	address, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return PDAResult{}, fmt.Errorf("failed to find %s PDA: %w", what, err)
	}
	return PDAResult{Address: address, Bump: bump}, nil
}

func GetGlobalConfigPDA() (PDAResult, error) {
	return findPDA(PumpAmmProgramID, "global config", SeedGlobalConfig)
}

func GetEventAuthorityPumpSwapPDA() (PDAResult, error) {
	return findPDA(PumpAmmProgramID, "event authority", SeedEventAuthorityPumpSwap)
}

// GetPoolPDA derives a pool address; index is a little-endian u16 seed.
func GetPoolPDA(index uint16, creator, baseMint, quoteMint solana.PublicKey) (PDAResult, error) {
	indexBuffer := make([]byte, 2)
	binary.LittleEndian.PutUint16(indexBuffer, index)
	return findPDA(PumpAmmProgramID, "pool", SeedPool, indexBuffer, creator[:], baseMint[:], quoteMint[:])
}

func GetPoolLpMintPDA(pool solana.PublicKey) (PDAResult, error) {
	return findPDA(PumpAmmProgramID, "pool LP mint", SeedPoolLpMint, pool[:])
}

// CanonicalPoolAddress returns the pool a bonding curve migrates into:
// index 0, created by the pump pool authority of mint, quoted in WSOL.
func CanonicalPoolAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	authority, err := GetPoolAuthorityPDA(mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	pool, err := GetPoolPDA(0, authority.Address, mint, WSolMint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return pool.Address, nil
}

// PoolState is the decoded PumpSwap pool account.
type PoolState struct {
	Bump                  uint8
	Index                 uint16
	Creator               solana.PublicKey
	BaseMint              solana.PublicKey
	QuoteMint             solana.PublicKey
	LpMint                solana.PublicKey
	PoolBaseTokenAccount  solana.PublicKey
	PoolQuoteTokenAccount solana.PublicKey
	LpSupply              uint64
}

// DecodePoolState decodes a pool account, discriminator included.
func DecodePoolState(data []byte) (*PoolState, error) {
	if len(data) < 8 {
		return nil, errors.New("pool account too short")
	}
	dec := bin.NewBinDecoder(data[8:])

	var (
		s   PoolState
		err error
	)
	if s.Bump, err = dec.ReadUint8(); err != nil {
		return nil, fmt.Errorf("read pool bump: %w", err)
	}
	if s.Index, err = dec.ReadUint16(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("read pool index: %w", err)
	}
	keys := []*solana.PublicKey{
		&s.Creator, &s.BaseMint, &s.QuoteMint, &s.LpMint,
		&s.PoolBaseTokenAccount, &s.PoolQuoteTokenAccount,
	}
	for _, k := range keys {
		if *k, err = readPublicKey(dec); err != nil {
			return nil, fmt.Errorf("read pool key: %w", err)
		}
	}
	if s.LpSupply, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("read lp supply: %w", err)
	}
	return &s, nil
}

func readPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadNBytes(32)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(raw), nil
}

// DepositAccounts lists the accounts of a PumpSwap deposit.
type DepositAccounts struct {
	Pool                  solana.PublicKey
	User                  solana.PublicKey
	BaseMint              solana.PublicKey
	QuoteMint             solana.PublicKey
	LpMint                solana.PublicKey
	UserBaseTokenAccount  solana.PublicKey
	UserQuoteTokenAccount solana.PublicKey
	UserPoolTokenAccount  solana.PublicKey
	PoolBaseTokenAccount  solana.PublicKey
	PoolQuoteTokenAccount solana.PublicKey
	TokenProgram          solana.PublicKey
}

// NewDepositInstruction builds a deposit for exactly lpOut LP tokens, bounded by the max inputs.
func NewDepositInstruction(a DepositAccounts, lpOut, maxBaseIn, maxQuoteIn uint64) (solana.Instruction, error) {
	globalConfig, err := GetGlobalConfigPDA()
	if err != nil {
		return nil, err
	}
	eventAuthority, err := GetEventAuthorityPumpSwapPDA()
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	_ = enc.WriteBytes(depositDiscriminator, false)
	_ = enc.WriteUint64(lpOut, binary.LittleEndian)
	_ = enc.WriteUint64(maxBaseIn, binary.LittleEndian)
	_ = enc.WriteUint64(maxQuoteIn, binary.LittleEndian)

	return solana.NewInstruction(PumpAmmProgramID, solana.AccountMetaSlice{
		solana.Meta(a.Pool).WRITE(),
		solana.Meta(globalConfig.Address),
		solana.Meta(a.User).WRITE().SIGNER(),
		solana.Meta(a.BaseMint),
		solana.Meta(a.QuoteMint),
		solana.Meta(a.LpMint).WRITE(),
		solana.Meta(a.UserBaseTokenAccount).WRITE(),
		solana.Meta(a.UserQuoteTokenAccount).WRITE(),
		solana.Meta(a.UserPoolTokenAccount).WRITE(),
		solana.Meta(a.PoolBaseTokenAccount).WRITE(),
		solana.Meta(a.PoolQuoteTokenAccount).WRITE(),
		solana.Meta(a.TokenProgram),
		solana.Meta(Token2022ProgramID),
		solana.Meta(eventAuthority.Address),
		solana.Meta(PumpAmmProgramID),
	}, buf.Bytes()), nil
}

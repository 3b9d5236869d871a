package solana

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var PumpFunProgramID = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

// Seeds for PDAs
var (
	SeedBondingCurve  = []byte("bonding-curve")
	SeedPoolAuthority = []byte("pool-authority")
)

var tradeEventDiscriminator = anchorDiscriminator("event", "TradeEvent")

func GetBondingCurvePDA(mint solana.PublicKey) (PDAResult, error) {
	return findPDA(PumpFunProgramID, "bonding curve", SeedBondingCurve, mint[:])
}

// GetPoolAuthorityPDA is the creator of the AMM pool a completed bonding curve migrates to.
func GetPoolAuthorityPDA(mint solana.PublicKey) (PDAResult, error) {
	return findPDA(PumpFunProgramID, "pool authority", SeedPoolAuthority, mint[:])
}

// TradeEvent is the bonding-curve trade event emitted in program logs.
type TradeEvent struct {
	Mint        solana.PublicKey
	SolAmount   uint64
	TokenAmount uint64
	IsBuy       bool
	User        solana.PublicKey
	Timestamp   time.Time
}

var errNotTradeEvent = errors.New("not a trade event")

// DecodeTradeEvent decodes an event payload, discriminator included.
func DecodeTradeEvent(data []byte) (*TradeEvent, error) {
	if len(data) < 8 || string(data[:8]) != string(tradeEventDiscriminator) {
		return nil, errNotTradeEvent
	}
	dec := bin.NewBinDecoder(data[8:])

	var (
		ev  TradeEvent
		err error
	)
	if ev.Mint, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("read mint: %w", err)
	}
	if ev.SolAmount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("read sol amount: %w", err)
	}
	if ev.TokenAmount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("read token amount: %w", err)
	}
	isBuy, err := dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("read side: %w", err)
	}
	ev.IsBuy = isBuy != 0
	if ev.User, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("read user: %w", err)
	}
	ts, err := dec.ReadInt64(binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("read timestamp: %w", err)
	}
	ev.Timestamp = time.Unix(ts, 0).UTC()
	return &ev, nil
}

// TradeEventsFromLogs extracts every trade event from "Program data:" log lines.
func TradeEventsFromLogs(logs []string) []*TradeEvent {
	var events []*TradeEvent
	for _, line := range logs {
		payload, ok := strings.CutPrefix(line, "Program data: ")
		if !ok {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
		if err != nil {
			continue
		}
		if ev, err := DecodeTradeEvent(raw); err == nil {
			events = append(events, ev)
		}
	}
	return events
}

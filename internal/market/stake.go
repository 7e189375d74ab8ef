package market

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/xerrors"

	"github.com/jackiewangjingchun-cpu/wattcoin/constants"
)

// StakeVerdict is the black-box answer from the stake ledger. Reason is
// set when Valid is false.
type StakeVerdict struct {
	Valid  bool
	Amount int64
	Reason string
}

// StakeVerifier checks that a stake proof reference represents a real,
// fresh, sufficiently large deposit by the owner.
type StakeVerifier interface {
	Verify(ctx context.Context, ownerAddress, stakeTx string) (StakeVerdict, error)
}

// erc20TransferTopic is keccak256("Transfer(address,address,uint256)").
const erc20TransferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// ChainStakeVerifier resolves a stake proof against the token ledger
// over JSON-RPC: the referenced transaction must transfer at least the
// minimum stake of the marketplace token from the owner to the treasury,
// and must be younger than the freshness window.
type ChainStakeVerifier struct {
	rpcUrl   string
	token    common.Address
	treasury common.Address
	minStake int64
	maxAge   time.Duration
}

func NewChainStakeVerifier(rpcUrl, tokenContract, treasuryAddress string, minStake int64, maxAge time.Duration) *ChainStakeVerifier {
	if minStake <= 0 {
		minStake = constants.MinStakeAmount
	}
	if maxAge <= 0 {
		maxAge = constants.StakeMaxAge
	}
	return &ChainStakeVerifier{
		rpcUrl:   rpcUrl,
		token:    common.HexToAddress(tokenContract),
		treasury: common.HexToAddress(treasuryAddress),
		minStake: minStake,
		maxAge:   maxAge,
	}
}

func (v *ChainStakeVerifier) Verify(ctx context.Context, ownerAddress, stakeTx string) (StakeVerdict, error) {
	client, err := rpc.DialContext(ctx, v.rpcUrl)
	if err != nil {
		return StakeVerdict{}, xerrors.Errorf("dial chain rpc: %w", err)
	}
	defer client.Close()

	var receipt *types.Receipt
	if err := client.CallContext(ctx, &receipt, "eth_getTransactionReceipt", common.HexToHash(stakeTx)); err != nil {
		return StakeVerdict{}, xerrors.Errorf("get stake transaction: %w", err)
	}
	if receipt == nil {
		return StakeVerdict{Reason: "transaction not found"}, nil
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return StakeVerdict{Reason: "transaction reverted"}, nil
	}

	var header struct {
		Timestamp hexutil.Uint64 `json:"timestamp"`
	}
	if err := client.CallContext(ctx, &header, "eth_getBlockByNumber", hexutil.EncodeBig(receipt.BlockNumber), false); err != nil {
		return StakeVerdict{}, xerrors.Errorf("get stake block: %w", err)
	}
	if time.Since(time.Unix(int64(header.Timestamp), 0)) > v.maxAge {
		return StakeVerdict{Reason: "stake transaction too old (>24h)"}, nil
	}

	owner := common.HexToAddress(ownerAddress)
	received := v.transferredToTreasury(receipt.Logs, owner)
	amount := new(big.Int).Div(received, big.NewInt(pow10(constants.TokenDecimals))).Int64()
	if amount < v.minStake {
		return StakeVerdict{Reason: "insufficient stake"}, nil
	}

	return StakeVerdict{Valid: true, Amount: amount}, nil
}

// transferredToTreasury sums the token Transfer events sent by owner to
// the treasury within the transaction.
func (v *ChainStakeVerifier) transferredToTreasury(logs []*types.Log, owner common.Address) *big.Int {
	transferTopic := common.HexToHash(erc20TransferTopic)
	ownerTopic := common.BytesToHash(common.LeftPadBytes(owner.Bytes(), 32))
	treasuryTopic := common.BytesToHash(common.LeftPadBytes(v.treasury.Bytes(), 32))

	total := new(big.Int)
	for _, entry := range logs {
		if entry.Address != v.token || len(entry.Topics) != 3 {
			continue
		}
		if entry.Topics[0] != transferTopic || entry.Topics[1] != ownerTopic || entry.Topics[2] != treasuryTopic {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(entry.Data))
	}
	return total
}

func pow10(n int) int64 {
	result := int64(1)
	for i := 0; i < n; i++ {
		result *= 10
	}
	return result
}

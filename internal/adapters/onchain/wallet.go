package onchain

// wallet.go: Lecturas y aprobaciones on-chain de la wallet que replica.
//
// Antes de operar en live:
//   - saldo USDC.e del funder (preflight)
//   - allowance USDC.e para los exchanges (BUY)
//   - setApprovalForAll ERC1155 sobre el CTF (SELL de posiciones replicadas)

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	polygonChainID = int64(137)

	// USDC.e collateral on Polygon
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	// CTF contract (ERC1155 de los outcome tokens)
	ctfAddress = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"

	normalExchange  = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	negRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
	negRiskAdapter  = "0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296"

	approvalGasLimit       = uint64(80_000)
	gasPriceUpdateInterval = 5 * time.Minute
	receiptTimeout         = 30 * time.Second
)

var (
	erc20ABI   abi.ABI
	erc1155ABI abi.ABI
)

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{"name":"balanceOf","type":"function",
		 "inputs":[{"name":"account","type":"address"}],
		 "outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function",
		 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
		 "outputs":[{"name":"","type":"bool"}]},
		{"name":"allowance","type":"function",
		 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
		 "outputs":[{"name":"","type":"uint256"}]}
	]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}

	erc1155ABI, err = abi.JSON(strings.NewReader(`[
		{"name":"setApprovalForAll","type":"function",
		 "inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],
		 "outputs":[]},
		{"name":"isApprovedForAll","type":"function",
		 "inputs":[{"name":"account","type":"address"},{"name":"operator","type":"address"}],
		 "outputs":[{"name":"","type":"bool"}]}
	]`))
	if err != nil {
		panic("erc1155 abi parse: " + err.Error())
	}
}

// Wallet implements ports.BalanceChecker over a Polygon RPC.
type Wallet struct {
	client *ethclient.Client
	key    *ecdsa.PrivateKey
	signer common.Address
	funder common.Address

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// NewWallet dials rpcURL. funder is the address holding the collateral; if
// empty the signer's own address is used.
func NewWallet(rpcURL, privateKeyHex, funder string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("onchain.NewWallet: invalid private key: %w", err)
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewWallet: dial rpc: %w", err)
	}

	signer := crypto.PubkeyToAddress(key.PublicKey)
	w := &Wallet{client: client, key: key, signer: signer, funder: signer}
	if funder != "" {
		if !common.IsHexAddress(funder) {
			client.Close()
			return nil, fmt.Errorf("onchain.NewWallet: invalid funder address %q", funder)
		}
		w.funder = common.HexToAddress(funder)
	}
	return w, nil
}

// Close releases the RPC connection.
func (w *Wallet) Close() {
	w.client.Close()
}

// Address returns the funder address.
func (w *Wallet) Address() string {
	return w.funder.Hex()
}

// USDCBalance returns the funder's USDC.e balance in dollars.
func (w *Wallet) USDCBalance(ctx context.Context) (float64, error) {
	callData, err := erc20ABI.Pack("balanceOf", w.funder)
	if err != nil {
		return 0, fmt.Errorf("onchain.USDCBalance: pack: %w", err)
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := w.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: callData}, nil)
	if err != nil {
		return 0, fmt.Errorf("onchain.USDCBalance: rpc call: %w", err)
	}

	vals, err := erc20ABI.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("onchain.USDCBalance: unpack: %w", err)
	}
	return microToUSDC(vals[0].(*big.Int)), nil
}

// EnsureApprovals sets the allowances the exchanges need to trade on behalf
// of the signer. Only meaningful when signer and funder are the same EOA.
func (w *Wallet) EnsureApprovals(ctx context.Context) error {
	if w.signer != w.funder {
		slog.Info("onchain: funder is a proxy wallet, approvals managed by Polymarket", "funder", w.funder.Hex())
		return nil
	}

	for _, op := range []string{normalExchange, negRiskExchange, negRiskAdapter} {
		ok, err := w.isApprovedForAll(ctx, common.HexToAddress(op))
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: check ERC1155 %s: %w", op, err)
		}
		if ok {
			continue
		}
		slog.Info("onchain: setting ERC1155 approval", "operator", op)
		data, err := erc1155ABI.Pack("setApprovalForAll", common.HexToAddress(op), true)
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: pack: %w", err)
		}
		if err := w.send(ctx, common.HexToAddress(ctfAddress), data); err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: ERC1155 %s: %w", op, err)
		}
	}

	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	minAllowance := new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000)) // 1M USDC.e
	token := common.HexToAddress(usdcEAddress)

	for _, ex := range []string{normalExchange, negRiskExchange} {
		allowance, err := w.allowance(ctx, token, common.HexToAddress(ex))
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: allowance %s: %w", ex, err)
		}
		if allowance.Cmp(minAllowance) >= 0 {
			continue
		}
		slog.Info("onchain: setting USDC.e approval", "exchange", ex)
		data, err := erc20ABI.Pack("approve", common.HexToAddress(ex), maxUint256)
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: pack: %w", err)
		}
		if err := w.send(ctx, token, data); err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: USDC.e %s: %w", ex, err)
		}
	}
	return nil
}

func (w *Wallet) isApprovedForAll(ctx context.Context, operator common.Address) (bool, error) {
	callData, err := erc1155ABI.Pack("isApprovedForAll", w.signer, operator)
	if err != nil {
		return false, err
	}
	ctf := common.HexToAddress(ctfAddress)
	result, err := w.client.CallContract(ctx, ethereum.CallMsg{To: &ctf, Data: callData}, nil)
	if err != nil {
		return false, err
	}
	vals, err := erc1155ABI.Unpack("isApprovedForAll", result)
	if err != nil || len(vals) == 0 {
		return false, err
	}
	return vals[0].(bool), nil
}

func (w *Wallet) allowance(ctx context.Context, token, spender common.Address) (*big.Int, error) {
	callData, err := erc20ABI.Pack("allowance", w.signer, spender)
	if err != nil {
		return nil, err
	}
	result, err := w.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: callData}, nil)
	if err != nil {
		return nil, err
	}
	vals, err := erc20ABI.Unpack("allowance", result)
	if err != nil || len(vals) == 0 {
		return big.NewInt(0), err
	}
	return vals[0].(*big.Int), nil
}

// send firma y envía una tx sin valor y espera el receipt.
func (w *Wallet) send(ctx context.Context, to common.Address, data []byte) error {
	nonce, err := w.client.PendingNonceAt(ctx, w.signer)
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := w.gasPrice(ctx)
	if err != nil {
		return fmt.Errorf("gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), approvalGasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(polygonChainID)), w.key)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	rctx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()
	receipt, err := w.waitForReceipt(rctx, signed.Hash())
	if err != nil {
		return fmt.Errorf("wait receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("tx %s reverted", signed.Hash().Hex())
	}
	return nil
}

// gasPrice cachea SuggestGasPrice con un 10% extra.
func (w *Wallet) gasPrice(ctx context.Context) (*big.Int, error) {
	w.mu.RLock()
	cached, at := w.cachedGasWei, w.gasUpdatedAt
	w.mu.RUnlock()
	if cached != nil && time.Since(at) < gasPriceUpdateInterval {
		return cached, nil
	}

	price, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return big.NewInt(30_000_000_000), nil // 30 gwei
	}
	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	w.mu.Lock()
	w.cachedGasWei = buffered
	w.gasUpdatedAt = time.Now()
	w.mu.Unlock()
	return buffered, nil
}

func (w *Wallet) waitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := w.client.TransactionReceipt(ctx, hash)
			if err != nil {
				continue // todavía no minada
			}
			return receipt, nil
		}
	}
}

// microToUSDC convierte unidades de 6 decimales a dólares.
func microToUSDC(raw *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1e6)).Float64()
	return f
}

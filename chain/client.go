// Package chain provides the production runner.ChainClient implementation,
// wrapping go-ethereum's ethclient/accounts/abi/bind stack around the task
// contract's six methods.
package chain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	runner "github.com/crynux-network/taskrunner"
)

// taskContractABI covers only the calls this package makes. It is hand
// written rather than abigen-generated: the contract this binds to is
// external to this module and versioned independently of it.
const taskContractABI = `[
  {"name":"getTask","type":"function","stateMutability":"view",
   "inputs":[{"name":"taskId","type":"uint256"}],
   "outputs":[{"name":"id","type":"uint256"},{"name":"timeout","type":"uint256"},
              {"name":"selectedNodes","type":"address[]"},{"name":"commitments","type":"bytes32[]"},
              {"name":"resultNode","type":"address"},{"name":"aborted","type":"bool"}]},
  {"name":"submitTaskResultCommitment","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"taskId","type":"uint256"},{"name":"round","type":"uint256"},
             {"name":"commitment","type":"bytes32"},{"name":"nonce","type":"bytes32"}],"outputs":[]},
  {"name":"discloseTaskResult","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"taskId","type":"uint256"},{"name":"round","type":"uint256"},
             {"name":"result","type":"bytes"}],"outputs":[]},
  {"name":"reportResultsUploaded","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"taskId","type":"uint256"},{"name":"round","type":"uint256"}],"outputs":[]},
  {"name":"reportTaskError","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"taskId","type":"uint256"},{"name":"round","type":"uint256"}],"outputs":[]},
  {"name":"cancelTask","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"taskId","type":"uint256"}],"outputs":[]}
]`

// Client is the production runner.ChainClient.
type Client struct {
	eth      *ethclient.Client
	contract *bind.BoundContract
	opts     *bind.TransactOpts
	self     common.Address
}

// New builds a Client calling contractAddr on eth, signing transactions
// with opts. self is this node's address, used to answer runner.ChainClient.Self.
func New(eth *ethclient.Client, contractAddr common.Address, opts *bind.TransactOpts, self common.Address) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(taskContractABI))
	if err != nil {
		return nil, err
	}
	return &Client{
		eth:      eth,
		contract: bind.NewBoundContract(contractAddr, parsed, eth, eth, eth),
		opts:     opts,
		self:     self,
	}, nil
}

func (c *Client) Self() common.Address { return c.self }

func (c *Client) txOpts(ctx context.Context) *bind.TransactOpts {
	opts := *c.opts
	opts.Context = ctx
	return &opts
}

func (c *Client) GetTask(ctx context.Context, taskID uint64) (*runner.ChainTask, error) {
	out := make([]interface{}, 6)
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getTask", new(big.Int).SetUint64(taskID)); err != nil {
		return nil, err
	}

	id := out[0].(*big.Int)
	timeout := out[1].(*big.Int)
	selected := out[2].([]common.Address)
	commitmentsRaw := out[3].([][32]byte)
	resultNode := out[4].(common.Address)
	aborted := out[5].(bool)

	// A task that was never written on-chain decodes as the contract's
	// zero value: id 0 rather than taskID. Report it the same way a
	// not-found record would be, so Runner.Init can force the task to
	// Aborted instead of proceeding against a nonexistent record.
	if id.Uint64() != taskID {
		return nil, runner.ErrTaskNotFound
	}

	commitments := make([][]byte, len(commitmentsRaw))
	for i, c32 := range commitmentsRaw {
		commitments[i] = append([]byte(nil), c32[:]...)
	}

	return &runner.ChainTask{
		ID:            id.Uint64(),
		Timeout:       time.Unix(timeout.Int64(), 0).UTC(),
		SelectedNodes: selected,
		Commitments:   commitments,
		ResultNode:    resultNode,
		Aborted:       aborted,
	}, nil
}

func (c *Client) SubmitTaskResultCommitment(ctx context.Context, taskID uint64, round uint32, commitment, nonce []byte) (runner.TxWaiter, error) {
	var commitment32, nonce32 [32]byte
	copy(commitment32[:], commitment)
	copy(nonce32[:], nonce)

	tx, err := c.contract.Transact(c.txOpts(ctx), "submitTaskResultCommitment",
		new(big.Int).SetUint64(taskID), new(big.Int).SetUint64(uint64(round)), commitment32, nonce32)
	if err != nil {
		return nil, err
	}
	return newWaiter(c.eth, "submitTaskResultCommitment", tx.Hash()), nil
}

func (c *Client) DiscloseTaskResult(ctx context.Context, taskID uint64, round uint32, result []byte) (runner.TxWaiter, error) {
	tx, err := c.contract.Transact(c.txOpts(ctx), "discloseTaskResult",
		new(big.Int).SetUint64(taskID), new(big.Int).SetUint64(uint64(round)), result)
	if err != nil {
		return nil, err
	}
	return newWaiter(c.eth, "discloseTaskResult", tx.Hash()), nil
}

func (c *Client) ReportResultsUploaded(ctx context.Context, taskID uint64, round uint32) (runner.TxWaiter, error) {
	tx, err := c.contract.Transact(c.txOpts(ctx), "reportResultsUploaded",
		new(big.Int).SetUint64(taskID), new(big.Int).SetUint64(uint64(round)))
	if err != nil {
		return nil, err
	}
	return newWaiter(c.eth, "reportResultsUploaded", tx.Hash()), nil
}

func (c *Client) ReportTaskError(ctx context.Context, taskID uint64, round uint32) (runner.TxWaiter, error) {
	tx, err := c.contract.Transact(c.txOpts(ctx), "reportTaskError",
		new(big.Int).SetUint64(taskID), new(big.Int).SetUint64(uint64(round)))
	if err != nil {
		return nil, err
	}
	return newWaiter(c.eth, "reportTaskError", tx.Hash()), nil
}

func (c *Client) CancelTask(ctx context.Context, taskID uint64) (runner.TxWaiter, error) {
	tx, err := c.contract.Transact(c.txOpts(ctx), "cancelTask", new(big.Int).SetUint64(taskID))
	if err != nil {
		return nil, err
	}
	return newWaiter(c.eth, "cancelTask", tx.Hash()), nil
}

// NewWaiter reconstructs a waiter for a transaction already submitted in a
// prior process, identified only by its hash.
func (c *Client) NewWaiter(method string, txHash []byte) runner.TxWaiter {
	var h common.Hash
	copy(h[:], txHash)
	return newWaiter(c.eth, method, h)
}
